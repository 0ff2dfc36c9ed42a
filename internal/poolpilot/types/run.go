package types

// Skip reasons reported in RunSummary.SkipReasons.
const (
	ReasonNoRoute        = "no_route"
	ReasonDeliveryFailed = "delivery_failed"
	ReasonClaimLost      = "claim_lost"
)

// Trigger sources recorded in the run log.
const (
	SourceHTTP     = "http"
	SourceSchedule = "schedule"
	SourceCLI      = "cli"
)

// RunSummary is the result of one dispatch cycle.  The first three fields
// keep the response shape existing schedulers already parse.
type RunSummary struct {
	Sent         int            `json:"alerts_sent"`
	Skipped      int            `json:"alerts_skipped"`
	DryRun       bool           `json:"dry_run"`
	Failed       int            `json:"alerts_failed"`
	Acknowledged int64          `json:"alerts_acknowledged"`
	RunID        string         `json:"run_id"`
	SkipReasons  map[string]int `json:"skip_reasons,omitempty"`
}

// RunLogEntry is the API view of a recorded run.
type RunLogEntry struct {
	RunID        string `json:"run_id"`
	Source       string `json:"source"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at"`
	Sent         int    `json:"alerts_sent"`
	Skipped      int    `json:"alerts_skipped"`
	Failed       int    `json:"alerts_failed"`
	Acknowledged int64  `json:"alerts_acknowledged"`
	DryRun       bool   `json:"dry_run"`
	Error        string `json:"error,omitempty"`
}

type RunLogResponse struct {
	Runs []RunLogEntry `json:"runs"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}
