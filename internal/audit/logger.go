package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Config defines audit logging configuration
type Config struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	FilePath string `json:"file_path" yaml:"file"`
}

// Logger interface for pluggable audit implementations
type Logger interface {
	Log(action string, success bool, metadata map[string]any) error
	Query(options QueryOptions) ([]Event, error)
	Close() error
}

// Event represents an audit log event
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	SessionID string         `json:"session_id"`
}

// QueryOptions for filtering audit logs
type QueryOptions struct {
	Since   *time.Time
	Action  string
	Success *bool // nil = all
	Limit   int   // newest N events; 0 = all
}

// NewLogger creates an appropriate logger based on configuration
func NewLogger(config *Config) (Logger, error) {
	if config == nil || !config.Enabled {
		return NewNoOpLogger(), nil
	}
	if config.FilePath == "" {
		return nil, fmt.Errorf("audit file path is required when auditing is enabled")
	}
	return NewFileLogger(config.FilePath)
}

func generateEventID() string {
	return uuid.NewString()
}

func (o QueryOptions) matches(e Event) bool {
	if o.Since != nil && e.Timestamp.Before(*o.Since) {
		return false
	}
	if o.Action != "" && e.Action != o.Action {
		return false
	}
	if o.Success != nil && e.Success != *o.Success {
		return false
	}
	return true
}
