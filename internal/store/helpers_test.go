package store

import (
	"fmt"

	"github.com/illarion/fincrypt/internal/audit"
)

type recordingAudit struct {
	actions []string
	success []bool
	meta    []map[string]any
}

func (r *recordingAudit) Log(action string, success bool, metadata map[string]any) error {
	r.actions = append(r.actions, action)
	r.success = append(r.success, success)
	r.meta = append(r.meta, metadata)
	return nil
}

func (r *recordingAudit) Query(audit.QueryOptions) ([]audit.Event, error) { return nil, nil }

func (r *recordingAudit) Close() error { return nil }

type recordingLogger struct {
	warnings []string
}

func (*recordingLogger) Debugf(string, ...any) {}
func (*recordingLogger) Infof(string, ...any)  {}

func (l *recordingLogger) Warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}
