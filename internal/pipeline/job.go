package pipeline

import "time"

// ── Job ────────────────────────────────────────────────────
// A Job binds a reader to a pipeline config and a trigger. Jobs are
// persisted by the storage layer and executed by the job service; the
// pipeline itself only sees the compiled Config.

// Trigger types.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"   // TriggerConfig holds a cron expression
	TriggerFileWatch = "file_watch" // TriggerConfig holds a file path
)

// Job is one stored cleaning job definition.
type Job struct {
	ID            string         `json:"id" yaml:"id,omitempty"`
	Name          string         `json:"name" yaml:"name"`
	ReaderType    string         `json:"readerType" yaml:"reader"`
	ReaderConfig  map[string]any `json:"readerConfig" yaml:"readerConfig"`
	Pipeline      Config         `json:"pipeline" yaml:"pipeline"`
	TriggerType   string         `json:"triggerType" yaml:"trigger,omitempty"`
	TriggerConfig string         `json:"triggerConfig" yaml:"triggerConfig,omitempty"`
	Enabled       bool           `json:"enabled" yaml:"enabled,omitempty"`
	LastRunAt     time.Time      `json:"lastRunAt" yaml:"-"`
	LastStatus    string         `json:"lastStatus" yaml:"-"` // "success" | "aborted" | "running" | ""
	LastError     string         `json:"lastError" yaml:"-"`
	CreatedAt     time.Time      `json:"createdAt" yaml:"-"`
	UpdatedAt     time.Time      `json:"updatedAt" yaml:"-"`
}
