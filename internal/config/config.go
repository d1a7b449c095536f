package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheMongo  = "mongo"
	CacheRedis  = "redis"
)

// Alert sinks.
const (
	SinkLog   = "log"
	SinkKafka = "kafka"
	SinkNATS  = "nats"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Scheduling and fan-out.
	BatchInterval      time.Duration
	FetchTimeout       time.Duration
	MaxParallelFetches int
	ReferenceTTL       time.Duration
	ReferenceFile      string

	// Fusion and scoring tunables.
	ConflictWindowDays    int
	EscalationDelta       int
	GridCellDegrees       float64
	RapidMovementKmPerDay float64
	RiskBase              int
	RiskEventWeight       int
	RiskFatalityWeight    int
	ConflictAvoidanceKm   float64
	ConflictStressFactor  float64
	RegionBBox            BBox

	// Cache backend.
	CacheBackend string
	MongoURI     string
	MongoDB      string
	RedisAddr    string

	// Alert sink.
	AlertSink       string
	KafkaBrokers    []string
	KafkaAlertTopic string
	NATSURL         string
	NATSSubject     string

	// Collaborator endpoints and credentials. A collaborator whose
	// credential is unset is not registered.
	OpenMeteoURL    string
	ACLEDURL        string
	ACLEDAPIKey     string
	ACLEDEmail      string
	FIRMSURL        string
	FIRMSMapKey     string
	GNewsURL        string
	GNewsAPIKey     string
	SatelliteURL    string
	SatelliteToken  string
	OverpassURL     string
	OverpassEnabled bool
	PostgresURL     string
}

// BBox is a south-west / north-east bounding box in decimal degrees.
type BBox struct {
	MinLat, MinLng, MaxLat, MaxLng float64
}

// Center returns the midpoint of the box.
func (b BBox) Center() (lat, lng float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLng + b.MaxLng) / 2
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var p parser
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		CORSOrigins:     splitList(sharedcfg.EnvOrDefault("CORS_ORIGINS", "*")),

		BatchInterval:      time.Duration(p.positiveInt("BATCH_INTERVAL_MINUTES", 10)) * time.Minute,
		FetchTimeout:       time.Duration(p.positiveInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxParallelFetches: p.positiveInt("MAX_PARALLEL_FETCHES", 4),
		ReferenceTTL:       p.duration("REFERENCE_TTL", 6*time.Hour),
		ReferenceFile:      os.Getenv("REFERENCE_FILE"),

		ConflictWindowDays:    p.positiveInt("CONFLICT_WINDOW_DAYS", 365),
		EscalationDelta:       p.nonNegativeInt("ESCALATION_DELTA", 5),
		GridCellDegrees:       p.positiveFloat("GRID_CELL_DEGREES", 0.5),
		RapidMovementKmPerDay: p.positiveFloat("RAPID_MOVEMENT_THRESHOLD_KM_PER_DAY", 12),
		RiskBase:              p.nonNegativeInt("RISK_BASE", 20),
		RiskEventWeight:       p.nonNegativeInt("RISK_EVENT_WEIGHT", 5),
		RiskFatalityWeight:    p.nonNegativeInt("RISK_FATALITY_WEIGHT", 2),
		ConflictAvoidanceKm:   p.positiveFloat("CONFLICT_AVOIDANCE_RADIUS_KM", 50),
		ConflictStressFactor:  p.positiveFloat("CONFLICT_STRESS_FACTOR", 1.3),
		RegionBBox:            p.bbox("REGION_BBOX", "3.4,23.4,12.3,36.0"),

		CacheBackend: strings.ToLower(sharedcfg.EnvOrDefault("CACHE_BACKEND", CacheMemory)),
		MongoURI:     sharedcfg.EnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      sharedcfg.EnvOrDefault("MONGO_DB", "bovine"),
		RedisAddr:    sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),

		AlertSink:       strings.ToLower(sharedcfg.EnvOrDefault("ALERT_SINK", SinkLog)),
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "bovine-alerts"),
		NATSURL:         sharedcfg.EnvOrDefault("NATS_URL", "nats://localhost:4222"),
		NATSSubject:     sharedcfg.EnvOrDefault("NATS_SUBJECT", "bovine.alerts"),

		OpenMeteoURL:    sharedcfg.EnvOrDefault("OPEN_METEO_URL", "https://api.open-meteo.com/v1/forecast"),
		ACLEDURL:        sharedcfg.EnvOrDefault("ACLED_URL", "https://api.acleddata.com/acled/read"),
		ACLEDAPIKey:     os.Getenv("ACLED_API_KEY"),
		ACLEDEmail:      os.Getenv("ACLED_EMAIL"),
		FIRMSURL:        sharedcfg.EnvOrDefault("FIRMS_URL", "https://firms.modaps.eosdis.nasa.gov/api/area/csv"),
		FIRMSMapKey:     os.Getenv("FIRMS_MAP_KEY"),
		GNewsURL:        sharedcfg.EnvOrDefault("GNEWS_URL", "https://gnews.io/api/v4/search"),
		GNewsAPIKey:     os.Getenv("GNEWS_API_KEY"),
		SatelliteURL:    os.Getenv("SATELLITE_URL"),
		SatelliteToken:  os.Getenv("SATELLITE_API_TOKEN"),
		OverpassURL:     sharedcfg.EnvOrDefault("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassEnabled: os.Getenv("OVERPASS_ENABLED") != "false",
		PostgresURL:     os.Getenv("POSTGRES_URL"),
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CacheBackend {
	case CacheMemory, CacheMongo, CacheRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of memory, mongo, redis: got %q", c.CacheBackend)
	}
	switch c.AlertSink {
	case SinkLog, SinkNATS:
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when ALERT_SINK is kafka")
		}
		if c.KafkaAlertTopic == "" {
			return errors.New("KAFKA_ALERT_TOPIC is required when ALERT_SINK is kafka")
		}
	default:
		return fmt.Errorf("ALERT_SINK must be one of log, kafka, nats: got %q", c.AlertSink)
	}
	if (c.ACLEDAPIKey == "") != (c.ACLEDEmail == "") {
		return errors.New("ACLED_API_KEY and ACLED_EMAIL must be set together")
	}
	if c.SatelliteURL != "" && c.SatelliteToken == "" {
		return errors.New("SATELLITE_URL is set but SATELLITE_API_TOKEN is not")
	}
	return nil
}

// ACLEDEnabled reports whether conflict-event credentials are configured.
func (c *Config) ACLEDEnabled() bool { return c.ACLEDAPIKey != "" && c.ACLEDEmail != "" }

// parser accumulates the first parse error so Load can read every variable
// in a single struct literal.
type parser struct {
	err error
}

func (p *parser) fail(name, value, want string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: must be %s", name, value, want)
	}
}

func (p *parser) positiveInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		p.fail(name, v, "a positive integer")
		return def
	}
	return n
}

func (p *parser) nonNegativeInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		p.fail(name, v, "a non-negative integer")
		return def
	}
	return n
}

func (p *parser) positiveFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		p.fail(name, v, "a positive number")
		return def
	}
	return f
}

func (p *parser) duration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		p.fail(name, v, "a positive duration")
		return def
	}
	return d
}

func (p *parser) bbox(name, def string) BBox {
	v := sharedcfg.EnvOrDefault(name, def)
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		p.fail(name, v, "minLat,minLng,maxLat,maxLng")
		return BBox{}
	}
	var vals [4]float64
	for i, s := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			p.fail(name, v, "minLat,minLng,maxLat,maxLng")
			return BBox{}
		}
		vals[i] = f
	}
	b := BBox{MinLat: vals[0], MinLng: vals[1], MaxLat: vals[2], MaxLng: vals[3]}
	if b.MinLat >= b.MaxLat || b.MinLng >= b.MaxLng {
		p.fail(name, v, "a box with min below max")
		return BBox{}
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
