package api

import "time"

type Config struct {
	HTTPAddr        string        `envconfig:"HATCHERY_HTTP_ADDR" default:"0.0.0.0:8080"`
	DBDSN           string        `envconfig:"HATCHERY_DB_DSN" required:"true"`
	DBMaxConns      int32         `envconfig:"HATCHERY_DB_MAX_CONNS" default:"20"`
	MetricsAddr     string        `envconfig:"HATCHERY_METRICS_ADDR" default:"0.0.0.0:9090"`
	LogLevel        string        `envconfig:"HATCHERY_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"HATCHERY_SHUTDOWN_TIMEOUT" default:"30s"`
	NamePrefix      string        `envconfig:"HATCHERY_NAME_PREFIX" default:"hatch"`
	Domain          string        `envconfig:"TUNNEL_DOMAIN"`
}
