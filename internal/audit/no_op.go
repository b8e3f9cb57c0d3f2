package audit

// NoOpLogger is a no-op implementation for when auditing is disabled
type NoOpLogger struct{}

func NewNoOpLogger() Logger {
	return new(NoOpLogger)
}

func (n *NoOpLogger) Log(action string, success bool, metadata map[string]any) error {
	return nil
}

func (n *NoOpLogger) Query(options QueryOptions) ([]Event, error) {
	return nil, nil
}

func (n *NoOpLogger) Close() error {
	return nil
}
