package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"store-sentinel/internal/models"
)

func TestDecodeFlatShape(t *testing.T) {
	line := `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"pos","data":{"sku":"PRD_S_04","customer_id":"C056","price":195,"weight_grams":150}}`
	rec, err := Decode([]byte(line))
	require.NoError(t, err)

	assert.Equal(t, "SCC1", rec.StationID)
	assert.Equal(t, models.KindPOS, rec.Kind)
	require.NotNil(t, rec.POS)
	assert.Equal(t, "PRD_S_04", rec.POS.SKU)
	assert.Equal(t, "C056", rec.POS.CustomerID)
	assert.Equal(t, 195.0, rec.POS.Price)
	assert.Equal(t, 150.0, rec.POS.WeightGrams)
	assert.Equal(t, time.Date(2025, 8, 13, 16, 0, 1, 0, time.UTC), rec.Timestamp)
}

func TestDecodeNestedShape(t *testing.T) {
	line := `{"dataset":"POS_Transactions","event":{"timestamp":"2025-08-13T16:00:01","station_id":"SCC1","data":{"sku":"PRD_S_04"}}}`
	rec, err := Decode([]byte(line))
	require.NoError(t, err)

	assert.Equal(t, "SCC1", rec.StationID)
	assert.Equal(t, models.KindPOS, rec.Kind)
	require.NotNil(t, rec.POS)
	assert.Equal(t, "PRD_S_04", rec.POS.SKU)
}

func TestDecodeKindAliases(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind models.RecordKind
	}{
		{"rfid", `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"RFID_data","data":{"sku":"PRD_S_04","epc":"E280F3A2"}}`, models.KindScanZone},
		{"recognition", `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"Product_recognism","data":{"sku":"PRD_S_04"}}`, models.KindScanZone},
		{"queue", `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"queue_monitor","data":{"customer_count":6,"average_dwell_time":93.5}}`, models.KindQueue},
		{"inventory", `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"Current_inventory_data","data":{"PRD_S_04":120}}`, models.KindInventory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Decode([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, rec.Kind)
		})
	}
}

func TestDecodeScanZoneDefaultsLocation(t *testing.T) {
	line := `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"rfid","data":{"sku":"PRD_S_04","epc":"E280F3A2"}}`
	rec, err := Decode([]byte(line))
	require.NoError(t, err)
	require.NotNil(t, rec.ScanZone)
	assert.Equal(t, models.LocationInScanArea, rec.ScanZone.Location)
}

func TestDecodeQueueDwellAlias(t *testing.T) {
	line := `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"queue_monitor","data":{"customer_count":4,"average_dwell_time":75.2}}`
	rec, err := Decode([]byte(line))
	require.NoError(t, err)
	require.NotNil(t, rec.Queue)
	assert.Equal(t, 4, rec.Queue.CustomerCount)
	assert.Equal(t, 75.2, rec.Queue.AvgDwellTime)
}

func TestDecodeInventoryWrappedCounts(t *testing.T) {
	line := `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"inventory_snapshot","data":{"counts":{"PRD_S_04":120,"PRD_A_03":55}}}`
	rec, err := Decode([]byte(line))
	require.NoError(t, err)
	require.NotNil(t, rec.Inventory)
	assert.Equal(t, map[string]int{"PRD_S_04": 120, "PRD_A_03": 55}, rec.Inventory.Counts)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"invalid json", `{not json`},
		{"missing station", `{"timestamp":"2025-08-13T16:00:01Z","type":"pos","data":{"sku":"X"}}`},
		{"unknown type", `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"thermal_cam","data":{}}`},
		{"bad timestamp", `{"timestamp":"13/08/2025","station_id":"SCC1","type":"pos","data":{"sku":"X"}}`},
		{"pos without sku", `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"pos","data":{"price":10}}`},
		{"scan zone without sku", `{"timestamp":"2025-08-13T16:00:01Z","station_id":"SCC1","type":"rfid","data":{"epc":"E280"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.line))
			require.Error(t, err)
			var merr *MalformedRecordError
			assert.ErrorAs(t, err, &merr)
		})
	}
}
