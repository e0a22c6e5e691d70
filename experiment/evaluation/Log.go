package evaluation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Status summarizes how many episodes of an evaluation succeeded
type Status string

const (
	// StatusOK means every episode completed
	StatusOK Status = "ok"

	// StatusPartial means some, but not all, episodes failed
	StatusPartial Status = "partial"

	// StatusFailed means every episode failed and no mean exists
	StatusFailed Status = "failed"
)

// LogEntry is one line of the evaluation log. MeanReward and StdReward
// are null when every episode failed, and Best is null until a best
// model exists.
type LogEntry struct {
	Step       int      `json:"step"`
	MeanReward *float64 `json:"mean_reward"`
	StdReward  *float64 `json:"std_reward"`
	Episodes   int      `json:"episodes"`
	Failed     int      `json:"failed"`
	Status     Status   `json:"status"`
	Errors     []string `json:"errors,omitempty"`
	Best       *float64 `json:"best"`
}

// Log is an append-only evaluation log holding one JSON object per
// line
type Log struct {
	path string
	f    *os.File
	enc  *json.Encoder
}

// OpenLog opens the log at path for appending, creating it if needed
func OpenLog(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("openLog: %w", err)
	}
	return &Log{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

// Append writes an entry to the end of the log
func (l *Log) Append(e LogEntry) error {
	if err := l.enc.Encode(e); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	return l.f.Sync()
}

// Path returns the path of the log
func (l *Log) Path() string {
	return l.path
}

// Close closes the log
func (l *Log) Close() error {
	return l.f.Close()
}

// LoadLog reads every entry of the log at path
func LoadLog(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loadLog: %w", err)
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var e LogEntry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("loadLog: line %v: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loadLog: %w", err)
	}
	return entries, nil
}
