package detectors

import (
	"sync"
	"time"

	"store-sentinel/internal/models"
)

type queueEpisode struct {
	since time.Time
	fired bool
}

// QueueMonitor fires a staffing-needs alert when a station's queue stays
// strictly above the threshold for longer than the dwell threshold. The
// sustain episode is the detector's own state, keyed by station; it resets
// as soon as the queue shortens, so a fresh breach starts a fresh episode.
type QueueMonitor struct {
	threshold int
	dwell     time.Duration

	mu       sync.Mutex
	episodes map[string]*queueEpisode
}

func NewQueueMonitor(threshold int, dwell time.Duration) *QueueMonitor {
	return &QueueMonitor{
		threshold: threshold,
		dwell:     dwell,
		episodes:  make(map[string]*queueEpisode),
	}
}

func (d *QueueMonitor) Name() string { return "queue_monitor" }

func (d *QueueMonitor) Kinds() []models.RecordKind {
	return []models.RecordKind{models.KindQueue, models.KindTick}
}

func (d *QueueMonitor) Evaluate(dc Context) *models.AlertCandidate {
	d.mu.Lock()
	defer d.mu.Unlock()

	stationID := dc.State.StationID
	if dc.Record != nil {
		if dc.State.QueueLength > d.threshold {
			if d.episodes[stationID] == nil {
				d.episodes[stationID] = &queueEpisode{since: dc.Record.Timestamp}
			}
		} else {
			delete(d.episodes, stationID)
			return nil
		}
	}

	ep := d.episodes[stationID]
	if ep == nil || ep.fired {
		return nil
	}
	if dc.Now.Sub(ep.since) <= d.dwell {
		return nil
	}
	ep.fired = true
	return &models.AlertCandidate{
		EventName: models.EventStaffingNeeds,
		StationID: stationID,
		Timestamp: dc.Now,
		Metrics: map[string]any{
			"customer_count":    float64(dc.State.QueueLength),
			"avg_dwell_time":    dc.State.AvgDwellTime,
			"sustained_seconds": dc.Now.Sub(ep.since).Seconds(),
		},
	}
}
