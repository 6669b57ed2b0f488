package detectors

import (
	"math"

	"store-sentinel/internal/models"
)

// BarcodeSwitching fires when the measured weight does not match the scanned
// SKU but does match a different catalog SKU, suggesting a cheaper barcode
// was substituted for the real item.
type BarcodeSwitching struct {
	toleranceG  float64
	catalogMiss func(sku string)
}

func NewBarcodeSwitching(toleranceG float64, catalogMiss func(string)) *BarcodeSwitching {
	return &BarcodeSwitching{toleranceG: toleranceG, catalogMiss: catalogMiss}
}

func (d *BarcodeSwitching) Name() string { return "barcode_switching" }

func (d *BarcodeSwitching) Kinds() []models.RecordKind {
	return []models.RecordKind{models.KindPOS, models.KindWeightScale}
}

func (d *BarcodeSwitching) Evaluate(dc Context) *models.AlertCandidate {
	if dc.Catalog.Len() == 0 {
		return nil
	}
	scannedSKU, actual, ok := scanContext(dc)
	if !ok {
		return nil
	}
	scanned, ok := dc.Catalog.Lookup(scannedSKU)
	if !ok {
		d.catalogMiss(scannedSKU)
		return nil
	}
	// The scanned SKU itself explains the weight: no switch.
	if math.Abs(actual-scanned.WeightGrams) <= d.toleranceG {
		return nil
	}
	match, ok := dc.Catalog.MatchByWeight(actual, d.toleranceG, scannedSKU)
	if !ok {
		return nil
	}
	return &models.AlertCandidate{
		EventName: models.EventBarcodeSwitch,
		StationID: dc.State.StationID,
		SKU:       scannedSKU,
		Timestamp: dc.Record.Timestamp,
		Metrics: map[string]any{
			"scanned_sku":      scannedSKU,
			"actual_sku":       match.SKU,
			"actual_weight":    actual,
			"price_difference": math.Abs(match.Price - scanned.Price),
		},
	}
}
