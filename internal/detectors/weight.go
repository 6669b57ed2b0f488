package detectors

import (
	"math"

	"store-sentinel/internal/models"
)

// WeightDiscrepancy compares the measured weight of a scanned item against
// the catalog's expected weight. Degrades to a no-op when no catalog is
// loaded.
type WeightDiscrepancy struct {
	toleranceG  float64
	catalogMiss func(sku string)
}

func NewWeightDiscrepancy(toleranceG float64, catalogMiss func(string)) *WeightDiscrepancy {
	return &WeightDiscrepancy{toleranceG: toleranceG, catalogMiss: catalogMiss}
}

func (d *WeightDiscrepancy) Name() string { return "weight_discrepancy" }

func (d *WeightDiscrepancy) Kinds() []models.RecordKind {
	return []models.RecordKind{models.KindPOS, models.KindWeightScale}
}

func (d *WeightDiscrepancy) Evaluate(dc Context) *models.AlertCandidate {
	if dc.Catalog.Len() == 0 {
		return nil
	}
	sku, actual, ok := scanContext(dc)
	if !ok {
		return nil
	}
	product, ok := dc.Catalog.Lookup(sku)
	if !ok {
		d.catalogMiss(sku)
		return nil
	}
	diff := math.Abs(actual - product.WeightGrams)
	if diff <= d.toleranceG {
		return nil
	}
	return &models.AlertCandidate{
		EventName: models.EventWeight,
		StationID: dc.State.StationID,
		SKU:       sku,
		Timestamp: dc.Record.Timestamp,
		Metrics: map[string]any{
			"product_sku":     sku,
			"expected_weight": product.WeightGrams,
			"actual_weight":   actual,
			"weight_diff":     diff,
		},
	}
}
