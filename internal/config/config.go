package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Source modes.
const (
	SourceTCP   = "tcp"
	SourceKafka = "kafka"
	SourceFile  = "file"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Source struct {
		Mode           string
		TCPAddr        string
		File           string
		KafkaBrokers   []string
		KafkaTopic     string
		KafkaGroupID   string
		MaxReconnects  int
		ReconnectDelay time.Duration
	}
	Detection struct {
		WeightToleranceG     float64
		WeightCriticalG      float64
		ScanGrace            time.Duration
		QueueThreshold       int
		DwellThreshold       time.Duration
		InventoryTolerance   int
		HeartbeatTimeout     time.Duration
		Cooldown             time.Duration
		OrderGrace           time.Duration
		TickInterval         time.Duration
		BarcodeCriticalPrice float64
	}
	Catalog struct {
		Path string
	}
	Output struct {
		Dir string
	}
	API struct {
		Port     string
		BasePath string
	}
	Sink struct {
		PostgresDSN   string
		RetryAttempts int
		RetryDelay    time.Duration
	}
	Telegram struct {
		BotToken string
		ChatID   int64
	}
	Logging struct {
		Dir   string
		Level string
	}
	Engine struct {
		QueueSize        int
		StationQueueSize int
		RecentAlerts     int
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
// Invalid values are fatal to the run.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	var errs []string

	// Source settings
	cfg.Source.Mode = getEnv("SOURCE_MODE", SourceTCP)
	cfg.Source.TCPAddr = getEnv("SOURCE_TCP_ADDR", "127.0.0.1:8765")
	cfg.Source.File = os.Getenv("SOURCE_FILE")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Source.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.Source.KafkaTopic = getEnv("KAFKA_TOPIC", "sensor-events")
	cfg.Source.KafkaGroupID = getEnv("KAFKA_GROUP_ID", "store-sentinel")
	cfg.Source.MaxReconnects = getInt("SOURCE_MAX_RECONNECTS", 5, &errs)
	cfg.Source.ReconnectDelay = getDuration("SOURCE_RECONNECT_DELAY", 2*time.Second, &errs)

	// Detection thresholds. All overridable; defaults documented here.
	cfg.Detection.WeightToleranceG = getFloat("WEIGHT_TOLERANCE_G", 25, &errs)
	cfg.Detection.WeightCriticalG = getFloat("WEIGHT_CRITICAL_G", 250, &errs)
	cfg.Detection.ScanGrace = getDuration("SCAN_GRACE", 60*time.Second, &errs)
	cfg.Detection.QueueThreshold = getInt("QUEUE_THRESHOLD", 5, &errs)
	cfg.Detection.DwellThreshold = getDuration("DWELL_THRESHOLD", 120*time.Second, &errs)
	cfg.Detection.InventoryTolerance = getInt("INVENTORY_TOLERANCE", 5, &errs)
	cfg.Detection.HeartbeatTimeout = getDuration("HEARTBEAT_TIMEOUT", 30*time.Second, &errs)
	cfg.Detection.Cooldown = getDuration("COOLDOWN", 60*time.Second, &errs)
	cfg.Detection.OrderGrace = getDuration("ORDER_GRACE", 5*time.Second, &errs)
	cfg.Detection.TickInterval = getDuration("TICK_INTERVAL", time.Second, &errs)
	cfg.Detection.BarcodeCriticalPrice = getFloat("BARCODE_CRITICAL_PRICE", 200, &errs)

	cfg.Catalog.Path = os.Getenv("CATALOG_PATH")
	cfg.Output.Dir = getEnv("OUTPUT_DIR", "output")

	// API settings
	cfg.API.Port = getEnv("API_PORT", ":9191")
	cfg.API.BasePath = getEnv("API_BASE_PATH", "/api/v0")

	// Sink settings
	cfg.Sink.PostgresDSN = os.Getenv("PG_DSN")
	cfg.Sink.RetryAttempts = getInt("SINK_RETRY_ATTEMPTS", 3, &errs)
	cfg.Sink.RetryDelay = getDuration("SINK_RETRY_DELAY", 200*time.Millisecond, &errs)

	// Telegram notifier (optional)
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("TELEGRAM_CHAT_ID: %v", err))
		}
		cfg.Telegram.ChatID = id
	}

	cfg.Logging.Dir = getEnv("LOG_DIR", "logs")
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")

	cfg.Engine.QueueSize = getInt("QUEUE_SIZE", 500, &errs)
	cfg.Engine.StationQueueSize = getInt("STATION_QUEUE_SIZE", 64, &errs)
	cfg.Engine.RecentAlerts = getInt("RECENT_ALERTS", 100, &errs)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var bad []string
	switch c.Source.Mode {
	case SourceTCP, SourceKafka, SourceFile:
	default:
		bad = append(bad, fmt.Sprintf("SOURCE_MODE %q (want tcp, kafka or file)", c.Source.Mode))
	}
	if c.Source.Mode == SourceKafka && len(c.Source.KafkaBrokers) == 0 {
		bad = append(bad, "KAFKA_BROKERS required for kafka source")
	}
	if c.Source.Mode == SourceFile && c.Source.File == "" {
		bad = append(bad, "SOURCE_FILE required for file source")
	}
	if c.Detection.WeightToleranceG < 0 {
		bad = append(bad, "WEIGHT_TOLERANCE_G must be >= 0")
	}
	if c.Detection.WeightCriticalG < c.Detection.WeightToleranceG {
		bad = append(bad, "WEIGHT_CRITICAL_G must be >= WEIGHT_TOLERANCE_G")
	}
	if c.Detection.QueueThreshold < 1 {
		bad = append(bad, "QUEUE_THRESHOLD must be >= 1")
	}
	if c.Detection.InventoryTolerance < 0 {
		bad = append(bad, "INVENTORY_TOLERANCE must be >= 0")
	}
	for name, d := range map[string]time.Duration{
		"SCAN_GRACE":        c.Detection.ScanGrace,
		"DWELL_THRESHOLD":   c.Detection.DwellThreshold,
		"HEARTBEAT_TIMEOUT": c.Detection.HeartbeatTimeout,
		"COOLDOWN":          c.Detection.Cooldown,
		"TICK_INTERVAL":     c.Detection.TickInterval,
	} {
		if d <= 0 {
			bad = append(bad, name+" must be > 0")
		}
	}
	if c.Detection.OrderGrace < 0 {
		bad = append(bad, "ORDER_GRACE must be >= 0")
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(bad, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int, errs *[]string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return v
}

func getFloat(key string, def float64, errs *[]string) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return v
}

func getDuration(key string, def time.Duration, errs *[]string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return v
}
