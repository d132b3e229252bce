package metrics

const (
	ExecutionTimeMetric    = "execution_time"
	ExecutionSuccessMetric = "execution_success"
	ExecutionErrorMetric   = "execution_error"

	CommandsSentMetric  = "commands_sent"
	FetchAttemptsMetric = "fetch_attempts"
	FetchRetriesMetric  = "fetch_retries"

	DeploySuccessMetric  = "success"
	DeployFailureMetric  = "failure"
	DeployLatencyMetric  = "latency"
	EnvUploadErrorMetric = "env_upload_error"

	FrameworkTag = "framework"
	OutcomeTag   = "outcome"
)
