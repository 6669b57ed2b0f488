package models

import "time"

// StationStatus is the liveness state of a checkout station.
type StationStatus string

const (
	StatusActive      StationStatus = "Active"
	StatusOffline     StationStatus = "Offline"
	StatusMaintenance StationStatus = "Maintenance"
)

// MaxWeightReadings bounds the per-station scale history.
const MaxWeightReadings = 10

// PendingItem is a scan-zone detection that has not yet been matched by a POS
// scan for the same SKU.
type PendingItem struct {
	SKU     string
	SeenAt  time.Time
	Alerted bool
}

// WeightReading is one scale measurement.
type WeightReading struct {
	SKU   string
	Grams float64
	At    time.Time
}

// Transaction is the currently open POS transaction at a station.
type Transaction struct {
	SKU        string
	CustomerID string
	Price      float64
	StartedAt  time.Time
}

// StationState is the mutable per-station state. Entries are created on first
// sighting of a station and live for the whole run.
type StationState struct {
	StationID       string
	Status          StationStatus
	OpenTransaction *Transaction
	Pending         map[string]PendingItem
	Weights         []WeightReading
	QueueLength     int
	AvgDwellTime    float64
	LastHeartbeat   time.Time
	LastApplied     time.Time
	Observed        map[string]int
	ObservedAt      time.Time
}

// NewStationState returns the initial state for a newly seen station.
func NewStationState(stationID string, firstSeen time.Time) StationState {
	return StationState{
		StationID:     stationID,
		Status:        StatusActive,
		Pending:       make(map[string]PendingItem),
		Observed:      make(map[string]int),
		LastHeartbeat: firstSeen,
	}
}

// Clone returns a deep copy safe to hand to detectors.
func (s StationState) Clone() StationState {
	out := s
	out.Pending = make(map[string]PendingItem, len(s.Pending))
	for k, v := range s.Pending {
		out.Pending[k] = v
	}
	out.Weights = append([]WeightReading(nil), s.Weights...)
	out.Observed = make(map[string]int, len(s.Observed))
	for k, v := range s.Observed {
		out.Observed[k] = v
	}
	if s.OpenTransaction != nil {
		tx := *s.OpenTransaction
		out.OpenTransaction = &tx
	}
	return out
}

// LastWeight returns the most recent scale reading, if any.
func (s StationState) LastWeight() (WeightReading, bool) {
	if len(s.Weights) == 0 {
		return WeightReading{}, false
	}
	return s.Weights[len(s.Weights)-1], true
}
