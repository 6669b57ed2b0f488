package models

import "time"

// RecordKind identifies which sensor stream a record came from.
type RecordKind string

const (
	KindPOS         RecordKind = "pos"
	KindScanZone    RecordKind = "scan_zone"
	KindWeightScale RecordKind = "weight_scale"
	KindQueue       RecordKind = "queue_monitor"
	KindHeartbeat   RecordKind = "heartbeat"
	KindInventory   RecordKind = "inventory_snapshot"

	// KindTick is a synthetic kind used to subscribe detectors to the
	// periodic tick. It never appears on the wire.
	KindTick RecordKind = "tick"
)

// SensorRecord is a normalized sensor event. Exactly one payload pointer is
// non-nil, matching Kind.
type SensorRecord struct {
	StationID string
	Timestamp time.Time
	Kind      RecordKind

	POS       *POSPayload
	ScanZone  *ScanZonePayload
	Weight    *WeightPayload
	Queue     *QueuePayload
	Heartbeat *HeartbeatPayload
	Inventory *InventoryPayload
}

// POSPayload is a barcode scan at the point of sale. WeightGrams is zero when
// the terminal has no integrated scale.
type POSPayload struct {
	SKU         string  `json:"sku"`
	CustomerID  string  `json:"customer_id"`
	Price       float64 `json:"price"`
	WeightGrams float64 `json:"weight_grams"`
}

// Scan zone locations reported by the RFID/vision sensors.
const (
	LocationInScanArea = "IN_SCAN_AREA"
	LocationOutOfArea  = "OUT_OF_AREA"
)

type ScanZonePayload struct {
	SKU      string `json:"sku"`
	EPC      string `json:"epc"`
	Location string `json:"location"`
}

type WeightPayload struct {
	SKU         string  `json:"sku"`
	WeightGrams float64 `json:"weight_grams"`
}

type QueuePayload struct {
	CustomerCount int     `json:"customer_count"`
	AvgDwellTime  float64 `json:"avg_dwell_time"`
}

type HeartbeatPayload struct {
	Status string `json:"status"`
}

// InventoryPayload is a point-in-time stock snapshot, SKU to unit count.
type InventoryPayload struct {
	Counts map[string]int `json:"counts"`
}
