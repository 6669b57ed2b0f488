// Package correlator routes normalized records to the detectors in
// per-station timestamp order. Each station gets its own goroutine and
// channel, so stations never block each other while one station's records
// stay strictly serialized.
package correlator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"store-sentinel/internal/catalog"
	"store-sentinel/internal/detectors"
	"store-sentinel/internal/models"
	"store-sentinel/internal/store"
)

// Stats counts recoverable correlation faults.
type Stats struct {
	OutOfOrder atomic.Int64
}

type work struct {
	rec  *models.SensorRecord
	tick bool
	now  time.Time
}

type pipeline struct {
	ch chan work
}

// Correlator fans records out to per-station pipelines and dispatches
// detection contexts to the subscribed rules in fixed registry order.
type Correlator struct {
	store     *store.Store
	registry  []detectors.Detector
	byKind    map[models.RecordKind][]detectors.Detector
	catalog   *catalog.Catalog
	out       chan<- models.AlertCandidate
	grace     time.Duration
	queueSize int
	logger    *logrus.Logger
	stats     *Stats

	mu        sync.Mutex
	pipelines map[string]*pipeline
	draining  bool
	wg        sync.WaitGroup
}

func New(st *store.Store, registry []detectors.Detector, cat *catalog.Catalog,
	out chan<- models.AlertCandidate, grace time.Duration, queueSize int,
	stats *Stats, logger *logrus.Logger) *Correlator {

	byKind := make(map[models.RecordKind][]detectors.Detector)
	for _, det := range registry {
		for _, kind := range det.Kinds() {
			byKind[kind] = append(byKind[kind], det)
		}
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Correlator{
		store:     st,
		registry:  registry,
		byKind:    byKind,
		catalog:   cat,
		out:       out,
		grace:     grace,
		queueSize: queueSize,
		logger:    logger,
		stats:     stats,
		pipelines: make(map[string]*pipeline),
	}
}

// Offer hands a record to its station's pipeline, starting one on first
// sighting. Blocks when the pipeline is full. No-op once draining.
func (c *Correlator) Offer(rec models.SensorRecord) {
	p := c.pipelineFor(rec.StationID)
	if p == nil {
		return
	}
	p.ch <- work{rec: &rec, now: rec.Timestamp}
}

// Tick enqueues a time-based evaluation on every known station. Sends are
// non-blocking: a station drowning in records will be ticked next round.
func (c *Correlator) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining {
		return
	}
	for _, p := range c.pipelines {
		select {
		case p.ch <- work{tick: true, now: now}:
		default:
		}
	}
}

// Drain closes all pipelines and waits for in-flight work to flush through.
// No records are accepted afterwards.
func (c *Correlator) Drain() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		c.wg.Wait()
		return
	}
	c.draining = true
	for _, p := range c.pipelines {
		close(p.ch)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Disconnect reports a crash for every station still Active and marks it
// Offline. Used when the upstream feed is lost for good: every heartbeat
// goes silent at once, so waiting out the timeout would only delay the same
// alerts. Call after Drain, while the candidate channel is still open.
func (c *Correlator) Disconnect(now time.Time) {
	for _, snap := range c.store.Snapshots() {
		if snap.Status != models.StatusActive {
			continue
		}
		cand := &models.AlertCandidate{
			EventName: models.EventSystemCrash,
			StationID: snap.StationID,
			Timestamp: now,
			Metrics: map[string]any{
				"duration_seconds": now.Sub(snap.LastHeartbeat).Seconds(),
			},
		}
		c.applySideEffects(cand)
		c.out <- *cand
	}
}

func (c *Correlator) pipelineFor(stationID string) *pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining {
		return nil
	}
	p, ok := c.pipelines[stationID]
	if !ok {
		p = &pipeline{ch: make(chan work, c.queueSize)}
		c.pipelines[stationID] = p
		c.wg.Add(1)
		go c.run(stationID, p)
	}
	return p
}

func (c *Correlator) run(stationID string, p *pipeline) {
	defer c.wg.Done()
	for w := range p.ch {
		if w.tick {
			c.evaluateTick(stationID, w.now)
		} else {
			c.apply(w.rec)
		}
	}
}

// apply mutates station state for one record and dispatches it to the
// subscribed detectors. Records older than lastApplied minus the grace
// window are dropped as stale.
func (c *Correlator) apply(rec *models.SensorRecord) {
	var stale bool
	c.store.Update(rec.StationID, rec.Timestamp, func(s *models.StationState) {
		if !s.LastApplied.IsZero() && rec.Timestamp.Before(s.LastApplied.Add(-c.grace)) {
			stale = true
			return
		}
		if rec.Timestamp.After(s.LastApplied) {
			s.LastApplied = rec.Timestamp
		}
		applyRecord(s, rec)
	})
	if stale {
		c.stats.OutOfOrder.Add(1)
		c.logger.Debugf("Dropped stale %s record for %s at %s", rec.Kind, rec.StationID, rec.Timestamp)
		return
	}

	snap, _ := c.store.Snapshot(rec.StationID)
	for _, det := range c.byKind[rec.Kind] {
		cand := det.Evaluate(detectors.Context{
			Record:  rec,
			State:   snap,
			Catalog: c.catalog,
			Now:     rec.Timestamp,
		})
		if cand != nil {
			c.applySideEffects(cand)
			c.out <- *cand
		}
	}

	// A scale reading completes the open transaction.
	if rec.Kind == models.KindWeightScale {
		c.store.Update(rec.StationID, rec.Timestamp, func(s *models.StationState) {
			s.OpenTransaction = nil
		})
	}
}

func (c *Correlator) evaluateTick(stationID string, now time.Time) {
	snap, ok := c.store.Snapshot(stationID)
	if !ok {
		return
	}
	for _, det := range c.byKind[models.KindTick] {
		cand := det.Evaluate(detectors.Context{
			State:   snap,
			Catalog: c.catalog,
			Now:     now,
		})
		if cand != nil {
			c.applySideEffects(cand)
			c.out <- *cand
		}
	}
}

// applyRecord is the single place station state mutates on record arrival.
// Any record from a station counts as liveness.
func applyRecord(s *models.StationState, rec *models.SensorRecord) {
	s.LastHeartbeat = rec.Timestamp
	if s.Status == models.StatusOffline {
		s.Status = models.StatusActive
	}

	switch rec.Kind {
	case models.KindPOS:
		delete(s.Pending, rec.POS.SKU)
		if rec.POS.WeightGrams > 0 {
			// The terminal's own scale already measured the item; the
			// transaction is complete and a later scale reading must not
			// evaluate it a second time.
			s.OpenTransaction = nil
		} else {
			s.OpenTransaction = &models.Transaction{
				SKU:        rec.POS.SKU,
				CustomerID: rec.POS.CustomerID,
				Price:      rec.POS.Price,
				StartedAt:  rec.Timestamp,
			}
		}
	case models.KindScanZone:
		switch rec.ScanZone.Location {
		case models.LocationInScanArea:
			if _, ok := s.Pending[rec.ScanZone.SKU]; !ok {
				s.Pending[rec.ScanZone.SKU] = models.PendingItem{
					SKU:    rec.ScanZone.SKU,
					SeenAt: rec.Timestamp,
				}
			}
		case models.LocationOutOfArea:
			if item, ok := s.Pending[rec.ScanZone.SKU]; ok && item.Alerted {
				delete(s.Pending, rec.ScanZone.SKU)
			}
		}
	case models.KindWeightScale:
		s.Weights = append(s.Weights, models.WeightReading{
			SKU:   rec.Weight.SKU,
			Grams: rec.Weight.WeightGrams,
			At:    rec.Timestamp,
		})
		if len(s.Weights) > models.MaxWeightReadings {
			s.Weights = s.Weights[len(s.Weights)-models.MaxWeightReadings:]
		}
	case models.KindQueue:
		s.QueueLength = rec.Queue.CustomerCount
		s.AvgDwellTime = rec.Queue.AvgDwellTime
	case models.KindHeartbeat:
		if rec.Heartbeat.Status == string(models.StatusMaintenance) {
			s.Status = models.StatusMaintenance
		} else {
			s.Status = models.StatusActive
		}
	case models.KindInventory:
		s.Observed = make(map[string]int, len(rec.Inventory.Counts))
		for sku, n := range rec.Inventory.Counts {
			s.Observed[sku] = n
		}
		s.ObservedAt = rec.Timestamp
	}
}

// applySideEffects applies the state changes a candidate implies. Detectors
// themselves never touch station state.
func (c *Correlator) applySideEffects(cand *models.AlertCandidate) {
	switch cand.EventName {
	case models.EventScanAvoidance:
		trigger, _ := cand.Metrics["alert_type"].(string)
		c.store.Update(cand.StationID, cand.Timestamp, func(s *models.StationState) {
			if trigger == detectors.ScanAlertTimeout {
				if item, ok := s.Pending[cand.SKU]; ok {
					item.Alerted = true
					s.Pending[cand.SKU] = item
				}
			} else {
				delete(s.Pending, cand.SKU)
			}
		})
	case models.EventSystemCrash:
		c.store.Update(cand.StationID, cand.Timestamp, func(s *models.StationState) {
			s.Status = models.StatusOffline
		})
	}
}
