// Package detectors holds the seven detection rules. Each rule evaluates a
// DetectionContext and returns at most one alert candidate; rules never
// mutate station state, state side effects are applied by the correlator.
package detectors

import (
	"time"

	"store-sentinel/internal/catalog"
	"store-sentinel/internal/models"
)

// Context is the read view handed to a detector: the record being applied
// (nil on a tick), a snapshot of the owning station's state, the catalog
// handle, and the evaluation time.
type Context struct {
	Record  *models.SensorRecord
	State   models.StationState
	Catalog *catalog.Catalog
	Now     time.Time
}

// Detector is one detection rule.
type Detector interface {
	Name() string
	// Kinds lists the record kinds the rule subscribes to. models.KindTick
	// subscribes it to the periodic tick.
	Kinds() []models.RecordKind
	Evaluate(dc Context) *models.AlertCandidate
}

// Config carries the detection thresholds. Equality at any boundary does not
// trigger; only strict inequality does.
type Config struct {
	WeightToleranceG   float64
	ScanGrace          time.Duration
	QueueThreshold     int
	DwellThreshold     time.Duration
	InventoryTolerance int
	HeartbeatTimeout   time.Duration
}

// NewRegistry returns all rules in their fixed dispatch order. catalogMiss is
// invoked whenever a rule skips a SKU absent from the catalog.
func NewRegistry(cfg Config, catalogMiss func(sku string)) []Detector {
	if catalogMiss == nil {
		catalogMiss = func(string) {}
	}
	return []Detector{
		NewScanAvoidance(cfg.ScanGrace),
		NewWeightDiscrepancy(cfg.WeightToleranceG, catalogMiss),
		NewBarcodeSwitching(cfg.WeightToleranceG, catalogMiss),
		NewQueueMonitor(cfg.QueueThreshold, cfg.DwellThreshold),
		NewInventoryDiscrepancy(cfg.InventoryTolerance, catalogMiss),
		NewSystemCrash(cfg.HeartbeatTimeout),
		NewSuccessOperation(cfg.WeightToleranceG),
	}
}

// scanContext resolves the scanned SKU and measured weight for rules that
// pair POS scans with scale readings. ok is false when the record carries no
// usable weight.
func scanContext(dc Context) (sku string, grams float64, ok bool) {
	rec := dc.Record
	if rec == nil {
		return "", 0, false
	}
	switch rec.Kind {
	case models.KindPOS:
		if rec.POS.WeightGrams <= 0 {
			return "", 0, false
		}
		return rec.POS.SKU, rec.POS.WeightGrams, true
	case models.KindWeightScale:
		sku = rec.Weight.SKU
		if tx := dc.State.OpenTransaction; tx != nil {
			sku = tx.SKU
		}
		if sku == "" || rec.Weight.WeightGrams <= 0 {
			return "", 0, false
		}
		return sku, rec.Weight.WeightGrams, true
	}
	return "", 0, false
}
