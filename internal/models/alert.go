package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names for the seven detection rules.
const (
	EventScanAvoidance = "Scanner Avoidance"
	EventWeight        = "Weight Discrepancies"
	EventBarcodeSwitch = "Barcode Switching"
	EventStaffingNeeds = "Staffing Needs"
	EventInventory     = "Inventory Discrepancy"
	EventSystemCrash   = "Unexpected Systems Crash"
	EventSuccess       = "Success Operation"
)

// Severity of an emitted alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// AlertCandidate is a raw detection produced by one detector for one
// evaluation cycle. It carries everything the classifier needs to assign a
// severity and an identifier.
type AlertCandidate struct {
	EventName string
	StationID string
	SKU       string
	Timestamp time.Time
	Metrics   map[string]any
}

// AlertEvent is the final, externally emitted alert.
type AlertEvent struct {
	Timestamp time.Time
	EventID   string
	EventName string
	StationID string
	Severity  Severity
	Data      map[string]any
}

// alertWire is the on-the-wire shape: kind-specific fields are flattened into
// event_data next to event_name, station_id and severity.
type alertWire struct {
	Timestamp string         `json:"timestamp"`
	EventID   string         `json:"event_id"`
	EventData map[string]any `json:"event_data"`
}

func (e AlertEvent) MarshalJSON() ([]byte, error) {
	data := make(map[string]any, len(e.Data)+3)
	for k, v := range e.Data {
		data[k] = v
	}
	data["event_name"] = e.EventName
	data["station_id"] = e.StationID
	data["severity"] = string(e.Severity)
	return json.Marshal(alertWire{
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		EventID:   e.EventID,
		EventData: data,
	})
}

func (e *AlertEvent) UnmarshalJSON(b []byte) error {
	var w alertWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid alert timestamp %q: %w", w.Timestamp, err)
	}
	e.Timestamp = ts
	e.EventID = w.EventID
	e.Data = make(map[string]any, len(w.EventData))
	for k, v := range w.EventData {
		switch k {
		case "event_name":
			e.EventName, _ = v.(string)
		case "station_id":
			e.StationID, _ = v.(string)
		case "severity":
			s, _ := v.(string)
			e.Severity = Severity(s)
		default:
			e.Data[k] = v
		}
	}
	return nil
}
