package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"store-sentinel/internal/models"
)

// FileSink writes the alert stream twice: events.jsonl gets one record per
// line as alerts arrive (append-only), events.json gets the full array on
// Close. Both carry the same records.
type FileSink struct {
	dir    string
	jsonl  *os.File
	events []models.AlertEvent
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open events.jsonl: %w", err)
	}
	return &FileSink{dir: dir, jsonl: f}, nil
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Emit(ev models.AlertEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", ev.EventID, err)
	}
	if _, err := s.jsonl.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append alert %s: %w", ev.EventID, err)
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *FileSink) Close() error {
	events := s.events
	if events == nil {
		events = []models.AlertEvent{}
	}
	blob, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events array: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "events.json"), blob, 0644); err != nil {
		return fmt.Errorf("write events.json: %w", err)
	}
	return s.jsonl.Close()
}
