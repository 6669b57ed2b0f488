package ingest

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"store-sentinel/internal/models"
)

// TCPSource consumes newline-delimited JSON from a streaming server,
// reconnecting with capped exponential backoff up to a budget. Once the
// budget is exhausted the source returns; stations then fall out via the
// heartbeat timeout.
type TCPSource struct {
	Addr          string
	MaxReconnects int
	ReconnectWait time.Duration
	Counters      *Counters
	Logger        *logrus.Logger
}

func NewTCPSource(addr string, maxReconnects int, wait time.Duration, counters *Counters, logger *logrus.Logger) *TCPSource {
	return &TCPSource{
		Addr:          addr,
		MaxReconnects: maxReconnects,
		ReconnectWait: wait,
		Counters:      counters,
		Logger:        logger,
	}
}

func (s *TCPSource) Run(ctx context.Context, out chan<- models.SensorRecord) error {
	var lastErr error
	wait := s.ReconnectWait
	for attempt := 0; attempt <= s.MaxReconnects; attempt++ {
		if attempt > 0 {
			s.Logger.Infof("Reconnecting to %s in %s (attempt %d/%d)", s.Addr, wait, attempt, s.MaxReconnects)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			if wait < 30*time.Second {
				wait *= 2
			}
		}

		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", s.Addr)
		if err != nil {
			lastErr = err
			s.Logger.Warnf("Connect to %s failed: %v", s.Addr, err)
			continue
		}
		s.Logger.Infof("Connected to streaming server %s", s.Addr)

		// Unblock the scanner when the run is cancelled.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		err = scanLines(ctx, conn, out, s.Counters, s.Logger)
		close(done)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// Clean EOF: the server closed the stream.
			return nil
		}
		lastErr = err
		wait = s.ReconnectWait
		s.Logger.Warnf("Stream from %s broken: %v", s.Addr, err)
	}
	return fmt.Errorf("upstream %s unreachable after %d reconnects: %w", s.Addr, s.MaxReconnects, lastErr)
}
