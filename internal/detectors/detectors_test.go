package detectors

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"store-sentinel/internal/catalog"
	"store-sentinel/internal/models"
)

var t0 = time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse(strings.NewReader(
		"sku,weight_grams,price,quantity\n" +
			"PRD_S_04,150,195.50,120\n" +
			"PRD_A_03,480,89.00,60\n" +
			"PRD_B_07,500,12.00,200\n"))
	require.NoError(t, err)
	return cat
}

func posRecord(sku string, grams float64, ts time.Time) *models.SensorRecord {
	return &models.SensorRecord{
		StationID: "SCC1",
		Timestamp: ts,
		Kind:      models.KindPOS,
		POS:       &models.POSPayload{SKU: sku, WeightGrams: grams, Price: 12},
	}
}

func stationState() models.StationState {
	return models.NewStationState("SCC1", t0)
}

func TestWeightDiscrepancyBoundary(t *testing.T) {
	cat := testCatalog(t)
	det := NewWeightDiscrepancy(25, nil)

	// PRD_B_07 expects 500g. Exactly at tolerance stays quiet.
	cand := det.Evaluate(Context{Record: posRecord("PRD_B_07", 525, t0), State: stationState(), Catalog: cat, Now: t0})
	assert.Nil(t, cand)

	// One gram past tolerance fires.
	cand = det.Evaluate(Context{Record: posRecord("PRD_B_07", 526, t0), State: stationState(), Catalog: cat, Now: t0})
	require.NotNil(t, cand)
	assert.Equal(t, models.EventWeight, cand.EventName)
	assert.Equal(t, "SCC1", cand.StationID)
	assert.Equal(t, 500.0, cand.Metrics["expected_weight"])
	assert.Equal(t, 526.0, cand.Metrics["actual_weight"])
	assert.Equal(t, 26.0, cand.Metrics["weight_diff"])
}

func TestWeightDiscrepancySkipsUnknownSKU(t *testing.T) {
	cat := testCatalog(t)
	var missed []string
	det := NewWeightDiscrepancy(25, func(sku string) { missed = append(missed, sku) })

	cand := det.Evaluate(Context{Record: posRecord("PRD_UNKNOWN", 300, t0), State: stationState(), Catalog: cat, Now: t0})
	assert.Nil(t, cand)
	assert.Equal(t, []string{"PRD_UNKNOWN"}, missed)
}

func TestWeightDiscrepancyNoCatalog(t *testing.T) {
	det := NewWeightDiscrepancy(25, nil)
	cand := det.Evaluate(Context{Record: posRecord("PRD_B_07", 900, t0), State: stationState(), Catalog: nil, Now: t0})
	assert.Nil(t, cand)
}

func TestWeightDiscrepancyFromScaleReading(t *testing.T) {
	cat := testCatalog(t)
	det := NewWeightDiscrepancy(25, nil)

	st := stationState()
	st.OpenTransaction = &models.Transaction{SKU: "PRD_B_07", StartedAt: t0}
	rec := &models.SensorRecord{
		StationID: "SCC1",
		Timestamp: t0.Add(time.Second),
		Kind:      models.KindWeightScale,
		Weight:    &models.WeightPayload{WeightGrams: 700},
	}
	cand := det.Evaluate(Context{Record: rec, State: st, Catalog: cat, Now: rec.Timestamp})
	require.NotNil(t, cand)
	assert.Equal(t, "PRD_B_07", cand.Metrics["product_sku"])
	assert.Equal(t, 200.0, cand.Metrics["weight_diff"])
}

func TestBarcodeSwitching(t *testing.T) {
	cat := testCatalog(t)
	det := NewBarcodeSwitching(25, nil)

	// Scanned the cheap PRD_S_04 (150g) but the scale saw ~480g, which
	// matches PRD_A_03.
	cand := det.Evaluate(Context{Record: posRecord("PRD_S_04", 478, t0), State: stationState(), Catalog: cat, Now: t0})
	require.NotNil(t, cand)
	assert.Equal(t, models.EventBarcodeSwitch, cand.EventName)
	assert.Equal(t, "PRD_S_04", cand.Metrics["scanned_sku"])
	assert.Equal(t, "PRD_A_03", cand.Metrics["actual_sku"])
	assert.InDelta(t, 106.5, cand.Metrics["price_difference"], 0.001)
}

func TestBarcodeSwitchingWeightExplained(t *testing.T) {
	cat := testCatalog(t)
	det := NewBarcodeSwitching(25, nil)

	// Weight matches the scanned SKU, no switch.
	cand := det.Evaluate(Context{Record: posRecord("PRD_S_04", 160, t0), State: stationState(), Catalog: cat, Now: t0})
	assert.Nil(t, cand)

	// Weight matches nothing in the catalog, no switch either.
	cand = det.Evaluate(Context{Record: posRecord("PRD_S_04", 300, t0), State: stationState(), Catalog: cat, Now: t0})
	assert.Nil(t, cand)
}

func TestScanAvoidanceExit(t *testing.T) {
	det := NewScanAvoidance(60 * time.Second)

	st := stationState()
	st.Pending["PRD_S_04"] = models.PendingItem{SKU: "PRD_S_04", SeenAt: t0}
	rec := &models.SensorRecord{
		StationID: "SCC1",
		Timestamp: t0.Add(10 * time.Second),
		Kind:      models.KindScanZone,
		ScanZone:  &models.ScanZonePayload{SKU: "PRD_S_04", Location: models.LocationOutOfArea},
	}
	cand := det.Evaluate(Context{Record: rec, State: st, Now: rec.Timestamp})
	require.NotNil(t, cand)
	assert.Equal(t, models.EventScanAvoidance, cand.EventName)
	assert.Equal(t, ScanAlertExit, cand.Metrics["alert_type"])
	assert.Equal(t, 10.0, cand.Metrics["dwell_time_seconds"])
}

func TestScanAvoidanceExitAlreadyAlerted(t *testing.T) {
	det := NewScanAvoidance(60 * time.Second)

	st := stationState()
	st.Pending["PRD_S_04"] = models.PendingItem{SKU: "PRD_S_04", SeenAt: t0, Alerted: true}
	rec := &models.SensorRecord{
		StationID: "SCC1",
		Timestamp: t0.Add(90 * time.Second),
		Kind:      models.KindScanZone,
		ScanZone:  &models.ScanZonePayload{SKU: "PRD_S_04", Location: models.LocationOutOfArea},
	}
	cand := det.Evaluate(Context{Record: rec, State: st, Now: rec.Timestamp})
	assert.Nil(t, cand)
}

func TestScanAvoidanceTimeout(t *testing.T) {
	det := NewScanAvoidance(60 * time.Second)

	st := stationState()
	st.Pending["PRD_S_04"] = models.PendingItem{SKU: "PRD_S_04", SeenAt: t0}
	st.Pending["PRD_A_03"] = models.PendingItem{SKU: "PRD_A_03", SeenAt: t0.Add(5 * time.Second)}

	// Exactly at the grace window nothing fires.
	cand := det.Evaluate(Context{State: st, Now: t0.Add(60 * time.Second)})
	assert.Nil(t, cand)

	// Past it, the oldest pending item is reported.
	cand = det.Evaluate(Context{State: st, Now: t0.Add(61 * time.Second)})
	require.NotNil(t, cand)
	assert.Equal(t, "PRD_S_04", cand.SKU)
	assert.Equal(t, ScanAlertTimeout, cand.Metrics["alert_type"])
	assert.Equal(t, 61.0, cand.Metrics["dwell_time_seconds"])
}

func TestQueueMonitorSustain(t *testing.T) {
	det := NewQueueMonitor(5, 120*time.Second)

	st := stationState()
	st.QueueLength = 6
	st.AvgDwellTime = 95

	queueRec := func(ts time.Time) *models.SensorRecord {
		return &models.SensorRecord{
			StationID: "SCC1",
			Timestamp: ts,
			Kind:      models.KindQueue,
			Queue:     &models.QueuePayload{CustomerCount: 6, AvgDwellTime: 95},
		}
	}

	// Breach starts the episode but nothing fires yet.
	assert.Nil(t, det.Evaluate(Context{Record: queueRec(t0), State: st, Now: t0}))

	// Exactly at the dwell threshold, still quiet.
	assert.Nil(t, det.Evaluate(Context{Record: queueRec(t0.Add(120 * time.Second)), State: st, Now: t0.Add(120 * time.Second)}))

	// Strictly past it, fires once.
	cand := det.Evaluate(Context{Record: queueRec(t0.Add(121 * time.Second)), State: st, Now: t0.Add(121 * time.Second)})
	require.NotNil(t, cand)
	assert.Equal(t, models.EventStaffingNeeds, cand.EventName)
	assert.Equal(t, 6.0, cand.Metrics["customer_count"])
	assert.Equal(t, 121.0, cand.Metrics["sustained_seconds"])

	// Episode already fired, stays quiet while the breach continues.
	assert.Nil(t, det.Evaluate(Context{Record: queueRec(t0.Add(180 * time.Second)), State: st, Now: t0.Add(180 * time.Second)}))
}

func TestQueueMonitorResetsOnRecovery(t *testing.T) {
	det := NewQueueMonitor(5, 120*time.Second)

	over := stationState()
	over.QueueLength = 7
	under := stationState()
	under.QueueLength = 2

	rec := func(count int, ts time.Time) *models.SensorRecord {
		return &models.SensorRecord{
			StationID: "SCC1", Timestamp: ts, Kind: models.KindQueue,
			Queue: &models.QueuePayload{CustomerCount: count},
		}
	}

	assert.Nil(t, det.Evaluate(Context{Record: rec(7, t0), State: over, Now: t0}))
	// Recovery clears the episode.
	assert.Nil(t, det.Evaluate(Context{Record: rec(2, t0.Add(60*time.Second)), State: under, Now: t0.Add(60 * time.Second)}))
	// A fresh breach starts counting from scratch.
	assert.Nil(t, det.Evaluate(Context{Record: rec(7, t0.Add(90*time.Second)), State: over, Now: t0.Add(90 * time.Second)}))
	assert.Nil(t, det.Evaluate(Context{Record: rec(7, t0.Add(200*time.Second)), State: over, Now: t0.Add(200 * time.Second)}))
	cand := det.Evaluate(Context{Record: rec(7, t0.Add(211*time.Second)), State: over, Now: t0.Add(211 * time.Second)})
	require.NotNil(t, cand)
}

func TestQueueMonitorThresholdBoundary(t *testing.T) {
	det := NewQueueMonitor(5, 120*time.Second)

	st := stationState()
	st.QueueLength = 5
	rec := &models.SensorRecord{
		StationID: "SCC1", Timestamp: t0, Kind: models.KindQueue,
		Queue: &models.QueuePayload{CustomerCount: 5},
	}
	// Exactly at the threshold never starts an episode.
	assert.Nil(t, det.Evaluate(Context{Record: rec, State: st, Now: t0}))
	assert.Nil(t, det.Evaluate(Context{State: st, Now: t0.Add(10 * time.Minute)}))
}

func TestSystemCrash(t *testing.T) {
	det := NewSystemCrash(30 * time.Second)

	st := stationState()
	st.LastHeartbeat = t0

	// Exactly at the timeout, still alive.
	assert.Nil(t, det.Evaluate(Context{State: st, Now: t0.Add(30 * time.Second)}))

	cand := det.Evaluate(Context{State: st, Now: t0.Add(31 * time.Second)})
	require.NotNil(t, cand)
	assert.Equal(t, models.EventSystemCrash, cand.EventName)
	assert.Equal(t, 31.0, cand.Metrics["duration_seconds"])
}

func TestSystemCrashExemptions(t *testing.T) {
	det := NewSystemCrash(30 * time.Second)

	maint := stationState()
	maint.Status = models.StatusMaintenance
	maint.LastHeartbeat = t0
	assert.Nil(t, det.Evaluate(Context{State: maint, Now: t0.Add(time.Hour)}))

	// Already offline means the crash was already reported.
	off := stationState()
	off.Status = models.StatusOffline
	off.LastHeartbeat = t0
	assert.Nil(t, det.Evaluate(Context{State: off, Now: t0.Add(time.Hour)}))
}

func TestInventoryDiscrepancy(t *testing.T) {
	cat := testCatalog(t)
	var missed []string
	det := NewInventoryDiscrepancy(5, func(sku string) { missed = append(missed, sku) })

	rec := &models.SensorRecord{
		StationID: "SCC1",
		Timestamp: t0,
		Kind:      models.KindInventory,
		Inventory: &models.InventoryPayload{Counts: map[string]int{
			"PRD_S_04":  110, // expected 120, deviation 10
			"PRD_A_03":  56,  // expected 60, deviation 4
			"PRD_GHOST": 7,   // not in catalog
		}},
	}
	cand := det.Evaluate(Context{Record: rec, State: stationState(), Catalog: cat, Now: t0})
	require.NotNil(t, cand)
	assert.Equal(t, models.EventInventory, cand.EventName)
	assert.Equal(t, "PRD_S_04", cand.Metrics["product_sku"])
	assert.Equal(t, 120.0, cand.Metrics["expected"])
	assert.Equal(t, 110.0, cand.Metrics["actual"])
	assert.Equal(t, 10.0, cand.Metrics["deviation"])
	assert.Equal(t, []string{"PRD_GHOST"}, missed)
}

func TestInventoryDiscrepancyWithinTolerance(t *testing.T) {
	cat := testCatalog(t)
	det := NewInventoryDiscrepancy(5, nil)

	rec := &models.SensorRecord{
		StationID: "SCC1",
		Timestamp: t0,
		Kind:      models.KindInventory,
		Inventory: &models.InventoryPayload{Counts: map[string]int{"PRD_S_04": 115}},
	}
	// Deviation of exactly 5 does not trigger.
	assert.Nil(t, det.Evaluate(Context{Record: rec, State: stationState(), Catalog: cat, Now: t0}))
}

func TestSuccessOperation(t *testing.T) {
	cat := testCatalog(t)
	det := NewSuccessOperation(25)

	cand := det.Evaluate(Context{Record: posRecord("PRD_B_07", 510, t0), State: stationState(), Catalog: cat, Now: t0})
	require.NotNil(t, cand)
	assert.Equal(t, models.EventSuccess, cand.EventName)
	assert.Equal(t, "PRD_B_07", cand.Metrics["product_sku"])
}

func TestSuccessOperationBlockedByPendingItem(t *testing.T) {
	cat := testCatalog(t)
	det := NewSuccessOperation(25)

	st := stationState()
	st.Pending["PRD_B_07"] = models.PendingItem{SKU: "PRD_B_07", SeenAt: t0}
	cand := det.Evaluate(Context{Record: posRecord("PRD_B_07", 510, t0.Add(time.Second)), State: st, Catalog: cat, Now: t0.Add(time.Second)})
	assert.Nil(t, cand)
}

func TestRegistryOrder(t *testing.T) {
	reg := NewRegistry(Config{
		WeightToleranceG:   25,
		ScanGrace:          60 * time.Second,
		QueueThreshold:     5,
		DwellThreshold:     120 * time.Second,
		InventoryTolerance: 5,
		HeartbeatTimeout:   30 * time.Second,
	}, nil)

	names := make([]string, len(reg))
	for i, det := range reg {
		names[i] = det.Name()
	}
	assert.Equal(t, []string{
		"scan_avoidance", "weight_discrepancy", "barcode_switching",
		"queue_monitor", "inventory_discrepancy", "system_crash", "success_operation",
	}, names)
}
