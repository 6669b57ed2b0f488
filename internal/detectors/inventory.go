package detectors

import (
	"sort"

	"store-sentinel/internal/models"
)

// InventoryDiscrepancy compares observed stock snapshots against the
// catalog's expected quantities and reports the worst deviation strictly
// beyond the tolerance.
type InventoryDiscrepancy struct {
	tolerance   int
	catalogMiss func(sku string)
}

func NewInventoryDiscrepancy(tolerance int, catalogMiss func(string)) *InventoryDiscrepancy {
	return &InventoryDiscrepancy{tolerance: tolerance, catalogMiss: catalogMiss}
}

func (d *InventoryDiscrepancy) Name() string { return "inventory_discrepancy" }

func (d *InventoryDiscrepancy) Kinds() []models.RecordKind {
	return []models.RecordKind{models.KindInventory}
}

func (d *InventoryDiscrepancy) Evaluate(dc Context) *models.AlertCandidate {
	if dc.Catalog.Len() == 0 || dc.Record == nil || dc.Record.Inventory == nil {
		return nil
	}

	skus := make([]string, 0, len(dc.Record.Inventory.Counts))
	for sku := range dc.Record.Inventory.Counts {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	var worstSKU string
	var worstExpected, worstObserved, worstDev int
	for _, sku := range skus {
		observed := dc.Record.Inventory.Counts[sku]
		product, ok := dc.Catalog.Lookup(sku)
		if !ok {
			d.catalogMiss(sku)
			continue
		}
		dev := product.Quantity - observed
		if dev < 0 {
			dev = -dev
		}
		if dev > d.tolerance && dev > worstDev {
			worstSKU, worstExpected, worstObserved, worstDev = sku, product.Quantity, observed, dev
		}
	}
	if worstSKU == "" {
		return nil
	}
	return &models.AlertCandidate{
		EventName: models.EventInventory,
		StationID: dc.State.StationID,
		SKU:       worstSKU,
		Timestamp: dc.Record.Timestamp,
		Metrics: map[string]any{
			"product_sku": worstSKU,
			"expected":    float64(worstExpected),
			"actual":      float64(worstObserved),
			"deviation":   float64(worstDev),
		},
	}
}
