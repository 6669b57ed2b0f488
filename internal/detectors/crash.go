package detectors

import (
	"time"

	"store-sentinel/internal/models"
)

// SystemCrash fires on the tick when a station's heartbeat has been silent
// strictly longer than the timeout. The correlator marks the station Offline
// when the candidate is accepted; any later record from the station brings
// it back to Active. Stations in maintenance are exempt.
type SystemCrash struct {
	timeout time.Duration
}

func NewSystemCrash(timeout time.Duration) *SystemCrash {
	return &SystemCrash{timeout: timeout}
}

func (d *SystemCrash) Name() string { return "system_crash" }

func (d *SystemCrash) Kinds() []models.RecordKind {
	return []models.RecordKind{models.KindTick}
}

func (d *SystemCrash) Evaluate(dc Context) *models.AlertCandidate {
	st := dc.State
	if st.Status != models.StatusActive || st.LastHeartbeat.IsZero() {
		return nil
	}
	silent := dc.Now.Sub(st.LastHeartbeat)
	if silent <= d.timeout {
		return nil
	}
	return &models.AlertCandidate{
		EventName: models.EventSystemCrash,
		StationID: st.StationID,
		Timestamp: dc.Now,
		Metrics: map[string]any{
			"duration_seconds": silent.Seconds(),
		},
	}
}
