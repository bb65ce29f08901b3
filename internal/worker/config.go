package worker

import "time"

type Config struct {
	DBDSN           string        `envconfig:"HATCHERY_DB_DSN" required:"true"`
	DBMaxConns      int32         `envconfig:"HATCHERY_DB_MAX_CONNS" default:"10"`
	MetricsAddr     string        `envconfig:"HATCHERY_METRICS_ADDR" default:"0.0.0.0:9091"`
	LogLevel        string        `envconfig:"HATCHERY_LOG_LEVEL" default:"info"`
	IdleBackoff     time.Duration `envconfig:"WORKER_IDLE_BACKOFF" default:"5s"`
	RetryBackoff    time.Duration `envconfig:"WORKER_RETRY_BACKOFF" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"120s"`
}
