package ingest

import (
	"bufio"
	"context"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"store-sentinel/internal/models"
)

// Source feeds normalized records into the pipeline. Run blocks until the
// underlying stream ends, the reconnect budget is exhausted, or ctx is
// cancelled; it never closes out.
type Source interface {
	Run(ctx context.Context, out chan<- models.SensorRecord) error
}

// Counters tracks recoverable ingest faults across sources.
type Counters struct {
	Malformed atomic.Int64
}

// scanLines decodes newline-delimited records from r, skipping malformed
// lines, until EOF or ctx cancellation.
func scanLines(ctx context.Context, r io.Reader, out chan<- models.SensorRecord, counters *Counters, logger *logrus.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := Decode(line)
		if err != nil {
			counters.Malformed.Add(1)
			logger.Warnf("Skipping record: %v", err)
			continue
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
