package detectors

import (
	"time"

	"store-sentinel/internal/models"
)

// Scan avoidance alert triggers, carried in the alert_type metric.
const (
	ScanAlertExit    = "EXIT"
	ScanAlertTimeout = "TIMEOUT"
)

// ScanAvoidance fires when an item seen in the scan zone has no matching POS
// scan: either the item leaves the zone unscanned, or it sits in the zone
// longer than the scan grace window. The pending-item set lives in
// StationState; the correlator clears entries on POS scans and after an
// alert fires.
type ScanAvoidance struct {
	grace time.Duration
}

func NewScanAvoidance(grace time.Duration) *ScanAvoidance {
	return &ScanAvoidance{grace: grace}
}

func (d *ScanAvoidance) Name() string { return "scan_avoidance" }

func (d *ScanAvoidance) Kinds() []models.RecordKind {
	return []models.RecordKind{models.KindScanZone, models.KindTick}
}

func (d *ScanAvoidance) Evaluate(dc Context) *models.AlertCandidate {
	if dc.Record == nil {
		return d.evaluateTick(dc)
	}
	p := dc.Record.ScanZone
	if p == nil || p.Location != models.LocationOutOfArea {
		return nil
	}
	item, ok := dc.State.Pending[p.SKU]
	if !ok || item.Alerted {
		return nil
	}
	dwell := dc.Record.Timestamp.Sub(item.SeenAt)
	return d.candidate(dc.State.StationID, item.SKU, dc.Record.Timestamp, dwell, ScanAlertExit)
}

// evaluateTick reports the oldest pending item that exceeded the grace
// window without a scan.
func (d *ScanAvoidance) evaluateTick(dc Context) *models.AlertCandidate {
	var oldest *models.PendingItem
	for sku := range dc.State.Pending {
		item := dc.State.Pending[sku]
		if item.Alerted {
			continue
		}
		if dc.Now.Sub(item.SeenAt) > d.grace {
			if oldest == nil || item.SeenAt.Before(oldest.SeenAt) {
				oldest = &item
			}
		}
	}
	if oldest == nil {
		return nil
	}
	dwell := dc.Now.Sub(oldest.SeenAt)
	return d.candidate(dc.State.StationID, oldest.SKU, dc.Now, dwell, ScanAlertTimeout)
}

func (d *ScanAvoidance) candidate(stationID, sku string, ts time.Time, dwell time.Duration, trigger string) *models.AlertCandidate {
	return &models.AlertCandidate{
		EventName: models.EventScanAvoidance,
		StationID: stationID,
		SKU:       sku,
		Timestamp: ts,
		Metrics: map[string]any{
			"product_sku":        sku,
			"dwell_time_seconds": dwell.Seconds(),
			"alert_type":         trigger,
		},
	}
}
