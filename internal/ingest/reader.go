package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"store-sentinel/internal/models"
)

// MalformedRecordError marks input the reader could not normalize. Malformed
// records are skipped and counted, never fatal.
type MalformedRecordError struct {
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return "malformed record: " + e.Reason
}

func malformed(format string, args ...any) error {
	return &MalformedRecordError{Reason: fmt.Sprintf(format, args...)}
}

// rawRecord accepts both wire shapes: the flat
// {timestamp, station_id, type, data} form and the legacy nested
// {dataset, event:{timestamp, station_id, data}} form.
type rawRecord struct {
	Timestamp string          `json:"timestamp"`
	StationID string          `json:"station_id"`
	Type      string          `json:"type"`
	Dataset   string          `json:"dataset"`
	Data      json.RawMessage `json:"data"`
	Event     *struct {
		Timestamp string          `json:"timestamp"`
		StationID string          `json:"station_id"`
		Data      json.RawMessage `json:"data"`
	} `json:"event"`
}

var kindAliases = map[string]models.RecordKind{
	"pos":                    models.KindPOS,
	"pos_transactions":       models.KindPOS,
	"scan_zone":              models.KindScanZone,
	"rfid":                   models.KindScanZone,
	"rfid_data":              models.KindScanZone,
	"product_recognism":      models.KindScanZone,
	"weight_scale":           models.KindWeightScale,
	"queue_monitor":          models.KindQueue,
	"heartbeat":              models.KindHeartbeat,
	"inventory_snapshot":     models.KindInventory,
	"current_inventory_data": models.KindInventory,
}

// Decode normalizes one line of input into a SensorRecord.
func Decode(line []byte) (models.SensorRecord, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return models.SensorRecord{}, malformed("invalid JSON: %v", err)
	}

	tsStr, stationID, data := raw.Timestamp, raw.StationID, raw.Data
	if raw.Event != nil {
		tsStr, stationID, data = raw.Event.Timestamp, raw.Event.StationID, raw.Event.Data
	}
	typeName := raw.Type
	if typeName == "" {
		typeName = raw.Dataset
	}

	if stationID == "" {
		return models.SensorRecord{}, malformed("missing station_id")
	}
	kind, ok := kindAliases[normalizeKind(typeName)]
	if !ok {
		return models.SensorRecord{}, malformed("unknown record type %q", typeName)
	}
	ts, err := parseTimestamp(tsStr)
	if err != nil {
		return models.SensorRecord{}, malformed("invalid timestamp %q", tsStr)
	}

	rec := models.SensorRecord{StationID: stationID, Timestamp: ts, Kind: kind}
	if err := decodePayload(&rec, data); err != nil {
		return models.SensorRecord{}, err
	}
	return rec, nil
}

func decodePayload(rec *models.SensorRecord, data json.RawMessage) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch rec.Kind {
	case models.KindPOS:
		var p models.POSPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return malformed("bad pos payload: %v", err)
		}
		if p.SKU == "" {
			return malformed("pos payload missing sku")
		}
		rec.POS = &p
	case models.KindScanZone:
		var p models.ScanZonePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return malformed("bad scan_zone payload: %v", err)
		}
		if p.SKU == "" {
			return malformed("scan_zone payload missing sku")
		}
		if p.Location == "" {
			p.Location = models.LocationInScanArea
		}
		rec.ScanZone = &p
	case models.KindWeightScale:
		var p models.WeightPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return malformed("bad weight_scale payload: %v", err)
		}
		rec.Weight = &p
	case models.KindQueue:
		var p struct {
			CustomerCount    int     `json:"customer_count"`
			AvgDwellTime     float64 `json:"avg_dwell_time"`
			AverageDwellTime float64 `json:"average_dwell_time"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return malformed("bad queue_monitor payload: %v", err)
		}
		dwell := p.AvgDwellTime
		if dwell == 0 {
			dwell = p.AverageDwellTime
		}
		rec.Queue = &models.QueuePayload{CustomerCount: p.CustomerCount, AvgDwellTime: dwell}
	case models.KindHeartbeat:
		var p models.HeartbeatPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return malformed("bad heartbeat payload: %v", err)
		}
		rec.Heartbeat = &p
	case models.KindInventory:
		var counts map[string]int
		if err := json.Unmarshal(data, &counts); err != nil {
			// Snapshots may wrap the counts in a "counts" object.
			var wrapped models.InventoryPayload
			if err2 := json.Unmarshal(data, &wrapped); err2 != nil || wrapped.Counts == nil {
				return malformed("bad inventory payload: %v", err)
			}
			counts = wrapped.Counts
		}
		rec.Inventory = &models.InventoryPayload{Counts: counts}
	}
	return nil
}

func normalizeKind(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
