// Package dedup suppresses repeated alerts inside the cooldown window,
// assigns severities, and mints deterministic event identifiers.
package dedup

import (
	"fmt"
	"time"

	"store-sentinel/internal/models"
)

// Event ID prefixes, one per rule.
var idPrefixes = map[string]string{
	models.EventScanAvoidance: "SA",
	models.EventWeight:        "WD",
	models.EventBarcodeSwitch: "BS",
	models.EventStaffingNeeds: "SN",
	models.EventInventory:     "ID",
	models.EventSystemCrash:   "SC",
	models.EventSuccess:       "SO",
}

type key struct {
	stationID string
	eventName string
}

// Deduplicator owns the authoritative per-run dedup table. It is not
// goroutine-safe; a single owner goroutine feeds it.
type Deduplicator struct {
	cooldown             time.Duration
	weightCriticalG      float64
	barcodeCriticalPrice float64

	lastEmitted map[key]time.Time
	successes   map[string]int64
	suppressed  int64
}

// New builds a Deduplicator. weightCriticalG and barcodeCriticalPrice are the
// second, larger tolerances that escalate a warning to critical.
func New(cooldown time.Duration, weightCriticalG, barcodeCriticalPrice float64) *Deduplicator {
	return &Deduplicator{
		cooldown:             cooldown,
		weightCriticalG:      weightCriticalG,
		barcodeCriticalPrice: barcodeCriticalPrice,
		lastEmitted:          make(map[key]time.Time),
		successes:            make(map[string]int64),
	}
}

// Process classifies a candidate. ok is false when the candidate was
// suppressed by the cooldown window or absorbed as a success.
func (d *Deduplicator) Process(c models.AlertCandidate) (models.AlertEvent, bool) {
	if c.EventName == models.EventSuccess {
		d.successes[c.StationID]++
		return models.AlertEvent{}, false
	}

	k := key{stationID: c.StationID, eventName: c.EventName}
	if last, ok := d.lastEmitted[k]; ok && c.Timestamp.Sub(last) < d.cooldown {
		d.suppressed++
		return models.AlertEvent{}, false
	}
	d.lastEmitted[k] = c.Timestamp

	ev := models.AlertEvent{
		Timestamp: c.Timestamp,
		EventID:   d.EventID(c.EventName, c.StationID, c.Timestamp),
		EventName: c.EventName,
		StationID: c.StationID,
		Severity:  d.Severity(c.EventName, c.Metrics),
		Data:      c.Metrics,
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	return ev, true
}

// EventID derives a stable identifier from the rule, the station and a
// coarse time bucket, so the same logical occurrence collapses to one id
// across retries.
func (d *Deduplicator) EventID(eventName, stationID string, ts time.Time) string {
	prefix, ok := idPrefixes[eventName]
	if !ok {
		prefix = "EV"
	}
	bucket := ts.Truncate(d.cooldown).Unix()
	return fmt.Sprintf("%s-%s-%d", prefix, stationID, bucket)
}

// Severity is a pure function of the event name and its metrics.
func (d *Deduplicator) Severity(eventName string, metrics map[string]any) models.Severity {
	switch eventName {
	case models.EventSystemCrash:
		return models.SeverityCritical
	case models.EventWeight:
		if metricValue(metrics, "weight_diff") > d.weightCriticalG {
			return models.SeverityCritical
		}
		return models.SeverityWarning
	case models.EventBarcodeSwitch:
		if metricValue(metrics, "price_difference") > d.barcodeCriticalPrice {
			return models.SeverityCritical
		}
		return models.SeverityWarning
	case models.EventScanAvoidance, models.EventStaffingNeeds, models.EventInventory:
		return models.SeverityWarning
	case models.EventSuccess:
		return models.SeverityInfo
	}
	return models.SeverityInfo
}

// Successes returns the per-station baseline counters.
func (d *Deduplicator) Successes() map[string]int64 {
	out := make(map[string]int64, len(d.successes))
	for k, v := range d.successes {
		out[k] = v
	}
	return out
}

// Suppressed returns how many candidates the cooldown window absorbed.
func (d *Deduplicator) Suppressed() int64 { return d.suppressed }

func metricValue(metrics map[string]any, name string) float64 {
	if metrics == nil {
		return 0
	}
	switch v := metrics[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
