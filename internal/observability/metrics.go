package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// hatchery-api metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hatchery_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hatchery_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hatchery_active_requests",
		Help: "Current in-flight requests",
	})

	// hatchery-worker metrics
	TaskTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hatchery_task_total",
		Help: "Task completion count",
	}, []string{"op", "status"})

	TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hatchery_task_duration_seconds",
		Help:    "Task end-to-end duration",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"op"})

	TaskQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hatchery_task_queue_depth",
		Help: "Pending + retryable FAILED tasks",
	})

	TaskRetryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hatchery_task_retry_total",
		Help: "Task retry count",
	}, []string{"op"})

	DequeueEmptyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hatchery_dequeue_empty_total",
		Help: "Empty poll count",
	})

	WorkloadStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hatchery_workload_state_transitions_total",
		Help: "Workload state transition count",
	}, []string{"from", "to"})

	// provisioning metrics
	ProvisionStepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hatchery_provision_step_duration_seconds",
		Help:    "Duration of each provisioning step",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"step"})

	ProviderCallTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hatchery_provider_call_total",
		Help: "Cloud provider API call count",
	}, []string{"provider", "op", "outcome"})

	SSHWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hatchery_ssh_wait_seconds",
		Help:    "Time until a new server accepts SSH",
		Buckets: []float64{5, 15, 30, 60, 120, 240, 480},
	})

	// remote execution metrics
	SSHConnectFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hatchery_ssh_connect_fail_total",
		Help: "SSH connection failures (distinct from remote command failures)",
	})

	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hatchery_command_duration_seconds",
		Help:    "Remote command wall time",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
	}, []string{"kind"})

	CommandLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hatchery_command_lines_total",
		Help: "Persisted command log lines",
	}, []string{"stream"})

	// tunnel metrics
	TunnelOpTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hatchery_tunnel_op_total",
		Help: "Tunnel setup/teardown operation count",
	}, []string{"op", "outcome"})

	// session metrics
	SessionRunTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hatchery_session_run_total",
		Help: "AI session run count",
	}, []string{"outcome"})

	DiffCaptureFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hatchery_diff_capture_fail_total",
		Help: "Swallowed diff capture failures",
	})

	LogSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hatchery_log_subscribers",
		Help: "Connected log fan-out subscribers",
	})
)

func RegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, ActiveRequests,
		TaskTotal, TaskDuration, TaskQueueDepth, TaskRetryTotal,
		DequeueEmptyTotal, WorkloadStateTransitions,
		ProvisionStepDuration, ProviderCallTotal, SSHWaitSeconds,
		SSHConnectFailTotal, CommandDuration, CommandLinesTotal,
		TunnelOpTotal, SessionRunTotal, DiffCaptureFailTotal, LogSubscribers,
	)
}
