package detectors

import (
	"math"

	"store-sentinel/internal/models"
)

// SuccessOperation records clean transactions: a scan with a weight inside
// tolerance and no unscanned item pending for the SKU. Its candidates never
// become alerts; the classifier folds them into the baseline counters that
// keep the other rules' rates honest.
type SuccessOperation struct {
	toleranceG float64
}

func NewSuccessOperation(toleranceG float64) *SuccessOperation {
	return &SuccessOperation{toleranceG: toleranceG}
}

func (d *SuccessOperation) Name() string { return "success_operation" }

func (d *SuccessOperation) Kinds() []models.RecordKind {
	return []models.RecordKind{models.KindPOS, models.KindWeightScale}
}

func (d *SuccessOperation) Evaluate(dc Context) *models.AlertCandidate {
	if dc.Catalog.Len() == 0 {
		return nil
	}
	sku, actual, ok := scanContext(dc)
	if !ok {
		return nil
	}
	product, ok := dc.Catalog.Lookup(sku)
	if !ok {
		return nil
	}
	if math.Abs(actual-product.WeightGrams) > d.toleranceG {
		return nil
	}
	if item, pending := dc.State.Pending[sku]; pending && !item.Alerted {
		return nil
	}
	return &models.AlertCandidate{
		EventName: models.EventSuccess,
		StationID: dc.State.StationID,
		SKU:       sku,
		Timestamp: dc.Record.Timestamp,
		Metrics: map[string]any{
			"product_sku":   sku,
			"actual_weight": actual,
		},
	}
}
