package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"store-sentinel/internal/models"
)

// FileSource replays a JSONL capture, for offline runs and tests.
type FileSource struct {
	Path     string
	Counters *Counters
	Logger   *logrus.Logger
}

func NewFileSource(path string, counters *Counters, logger *logrus.Logger) *FileSource {
	return &FileSource{Path: path, Counters: counters, Logger: logger}
}

func (s *FileSource) Run(ctx context.Context, out chan<- models.SensorRecord) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()
	return scanLines(ctx, f, out, s.Counters, s.Logger)
}
