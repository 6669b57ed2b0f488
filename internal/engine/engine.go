// Package engine wires the pipeline together: source → correlator →
// deduplicator → sinks, with a periodic tick and a graceful drain on
// shutdown.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"store-sentinel/internal/catalog"
	"store-sentinel/internal/config"
	"store-sentinel/internal/correlator"
	"store-sentinel/internal/dedup"
	"store-sentinel/internal/detectors"
	"store-sentinel/internal/ingest"
	"store-sentinel/internal/models"
	"store-sentinel/internal/sink"
	"store-sentinel/internal/store"
	"store-sentinel/internal/utils"
)

// Summary is the end-of-run report. It is also served live by the ops API.
type Summary struct {
	RunID            string           `json:"run_id"`
	StartedAt        time.Time        `json:"started_at"`
	DurationSeconds  float64          `json:"duration_seconds"`
	RecordsProcessed int64            `json:"records_processed"`
	TotalAlerts      int64            `json:"total_alerts"`
	AlertsByName     map[string]int64 `json:"alerts_by_name"`
	HighSeverity     int64            `json:"high_severity_alerts"`
	Successes        int64            `json:"success_operations"`
	Suppressed       int64            `json:"suppressed_alerts"`
	Malformed        int64            `json:"malformed_records"`
	OutOfOrder       int64            `json:"out_of_order_records"`
	CatalogMisses    int64            `json:"catalog_misses"`
	LostAlerts       int64            `json:"lost_alerts"`
}

// Engine owns the run.
type Engine struct {
	cfg     config.Config
	logger  *logrus.Logger
	catalog *catalog.Catalog
	store   *store.Store
	runID   string
	clock   func() time.Time

	IngestCounters ingest.Counters
	corrStats      correlator.Stats
	records        atomic.Int64
	catalogMisses  atomic.Int64
	lost           atomic.Int64

	mu           sync.Mutex
	dedup        *dedup.Deduplicator
	sinks        []sink.Sink
	byName       map[string]int64
	totalAlerts  int64
	highSeverity int64
	recent       []models.AlertEvent
	subs         []func(models.AlertEvent)
	startedAt    time.Time
	finishedAt   time.Time
}

func New(cfg config.Config, logger *logrus.Logger, cat *catalog.Catalog) *Engine {
	det := cfg.Detection
	return &Engine{
		cfg:     cfg,
		logger:  logger,
		catalog: cat,
		store:   store.New(),
		runID:   uuid.New().String(),
		clock:   time.Now,
		dedup:   dedup.New(det.Cooldown, det.WeightCriticalG, det.BarcodeCriticalPrice),
		byName:  make(map[string]int64),
	}
}

// AddSink registers a delivery target. Must be called before Run.
func (e *Engine) AddSink(s sink.Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// OnAlert registers a callback invoked for every emitted alert. Used by the
// websocket feed. Must be called before Run.
func (e *Engine) OnAlert(fn func(models.AlertEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// Run consumes the source until it ends or ctx is cancelled, then drains:
// in-flight candidates flush through the deduplicator to every sink before
// Run returns.
func (e *Engine) Run(ctx context.Context, src ingest.Source) error {
	e.mu.Lock()
	e.startedAt = e.clock()
	e.mu.Unlock()
	e.logger.Infof("Run %s started", e.runID)

	records := make(chan models.SensorRecord, e.cfg.Engine.QueueSize)
	candidates := make(chan models.AlertCandidate, e.cfg.Engine.QueueSize)

	registry := detectors.NewRegistry(detectors.Config{
		WeightToleranceG:   e.cfg.Detection.WeightToleranceG,
		ScanGrace:          e.cfg.Detection.ScanGrace,
		QueueThreshold:     e.cfg.Detection.QueueThreshold,
		DwellThreshold:     e.cfg.Detection.DwellThreshold,
		InventoryTolerance: e.cfg.Detection.InventoryTolerance,
		HeartbeatTimeout:   e.cfg.Detection.HeartbeatTimeout,
	}, func(sku string) {
		e.catalogMisses.Add(1)
		e.logger.Debugf("SKU %s not in catalog, check skipped", sku)
	})

	corr := correlator.New(e.store, registry, e.catalog, candidates,
		e.cfg.Detection.OrderGrace, e.cfg.Engine.StationQueueSize,
		&e.corrStats, e.logger)

	srcErr := make(chan error, 1)
	go func() {
		srcErr <- src.Run(ctx, records)
		close(records)
	}()

	tickerStop := make(chan struct{})
	var tickerWG sync.WaitGroup
	tickerWG.Add(1)
	go func() {
		defer tickerWG.Done()
		t := time.NewTicker(e.cfg.Detection.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-tickerStop:
				return
			case <-t.C:
				corr.Tick(e.clock())
			}
		}
	}()

	var emitWG sync.WaitGroup
	emitWG.Add(1)
	go func() {
		defer emitWG.Done()
		for cand := range candidates {
			e.process(cand)
		}
	}()

	for rec := range records {
		e.records.Add(1)
		corr.Offer(rec)
	}
	err := <-srcErr
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	// Graceful drain: stop the tick, flush per-station pipelines, then let
	// the emit loop finish everything already produced.
	close(tickerStop)
	tickerWG.Wait()
	corr.Drain()
	if err != nil {
		// Losing the upstream feed silences every heartbeat at once; the
		// surviving stations are unobservable and get reported now rather
		// than after a timeout that can no longer be measured.
		e.logger.Errorf("Source failed, marking remaining stations offline: %v", err)
		corr.Disconnect(e.clock())
	}
	close(candidates)
	emitWG.Wait()

	e.mu.Lock()
	for _, s := range e.sinks {
		if err := s.Close(); err != nil {
			e.logger.Errorf("Closing sink %s failed: %v", s.Name(), err)
		}
	}
	e.finishedAt = e.clock()
	e.mu.Unlock()

	summary := e.Summary()
	e.logger.Infof("Run %s finished: %d records, %d alerts (%d critical), %d suppressed, %d malformed, %d out-of-order, %d lost",
		summary.RunID, summary.RecordsProcessed, summary.TotalAlerts, summary.HighSeverity,
		summary.Suppressed, summary.Malformed, summary.OutOfOrder, summary.LostAlerts)
	return err
}

// process pushes one candidate through dedup/classification and fans the
// resulting alert to every sink, with bounded retries per sink.
func (e *Engine) process(cand models.AlertCandidate) {
	e.mu.Lock()
	ev, ok := e.dedup.Process(cand)
	if !ok {
		e.mu.Unlock()
		return
	}
	e.totalAlerts++
	e.byName[ev.EventName]++
	if ev.Severity == models.SeverityCritical {
		e.highSeverity++
	}
	e.recent = append(e.recent, ev)
	if max := e.cfg.Engine.RecentAlerts; max > 0 && len(e.recent) > max {
		e.recent = e.recent[len(e.recent)-max:]
	}
	sinks := e.sinks
	subs := e.subs
	e.mu.Unlock()

	e.logger.Infof("Alert %s: %s at %s (%s)", ev.EventID, ev.EventName, ev.StationID, ev.Severity)
	for _, s := range sinks {
		err := utils.Retry(e.logger, e.cfg.Sink.RetryAttempts, e.cfg.Sink.RetryDelay, func() error {
			return s.Emit(ev)
		})
		if err != nil {
			e.lost.Add(1)
			e.logger.Errorf("Alert %s lost on sink %s: %v", ev.EventID, s.Name(), err)
		}
	}
	for _, fn := range subs {
		fn(ev)
	}
}

// Summary reports the run counters so far.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	end := e.finishedAt
	if end.IsZero() {
		end = e.clock()
	}
	var duration float64
	if !e.startedAt.IsZero() {
		duration = end.Sub(e.startedAt).Seconds()
	}
	byName := make(map[string]int64, len(e.byName))
	for k, v := range e.byName {
		byName[k] = v
	}
	var successes int64
	for _, n := range e.dedup.Successes() {
		successes += n
	}
	return Summary{
		RunID:            e.runID,
		StartedAt:        e.startedAt,
		DurationSeconds:  duration,
		RecordsProcessed: e.records.Load(),
		TotalAlerts:      e.totalAlerts,
		AlertsByName:     byName,
		HighSeverity:     e.highSeverity,
		Successes:        successes,
		Suppressed:       e.dedup.Suppressed(),
		Malformed:        e.IngestCounters.Malformed.Load(),
		OutOfOrder:       e.corrStats.OutOfOrder.Load(),
		CatalogMisses:    e.catalogMisses.Load(),
		LostAlerts:       e.lost.Load(),
	}
}

// Recent returns the newest alerts, most recent last.
func (e *Engine) Recent() []models.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.AlertEvent(nil), e.recent...)
}

// Stations returns snapshots of all station states.
func (e *Engine) Stations() []models.StationState {
	return e.store.Snapshots()
}
