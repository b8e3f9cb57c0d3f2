package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileLogger appends events to a JSON lines file.
type FileLogger struct {
	path      string
	sessionID string
	file      *os.File
	mu        sync.Mutex
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileLogger{path: path, sessionID: generateEventID(), file: file}, nil
}

// Log implements the Logger interface
func (fl *FileLogger) Log(action string, success bool, metadata map[string]any) error {
	event := Event{
		ID:        generateEventID(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Success:   success,
		Metadata:  metadata,
		SessionID: fl.sessionID,
	}
	if msg, ok := metadata["error"].(string); ok {
		event.Error = msg
		delete(event.Metadata, "error")
	}

	return fl.writeEvent(event)
}

func (fl *FileLogger) writeEvent(event Event) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file == nil {
		return fmt.Errorf("audit log is closed")
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}

	if _, err := fl.file.Write(append(eventJSON, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	if err := fl.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}
	return nil
}

// Query reads events back from the log file, oldest first.
func (fl *FileLogger) Query(options QueryOptions) ([]Event, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	f, err := os.Open(fl.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			// skip torn lines left by a crash mid-write
			continue
		}
		if options.matches(e) {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	if options.Limit > 0 && len(events) > options.Limit {
		events = events[len(events)-options.Limit:]
	}
	return events, nil
}

func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file == nil {
		return nil
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}
