package config

import (
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

// DefaultCatalogURL is the USGS FDSN event search endpoint.
const DefaultCatalogURL = "https://earthquake.usgs.gov/fdsnws/event/1/query"

// Resolution policy names accepted by RESOLUTION_POLICY.
const (
	PolicyInteractive = "interactive"
	PolicyNone        = "none"
	PolicyClosest     = "closest"
	PolicyReject      = "reject"
)

// Config holds all loader settings, populated from environment variables.
type Config struct {
	ProductType      domain.ProductType
	DistanceWindowKm float64
	TimeWindow       time.Duration

	CatalogURL       string
	CatalogTimeout   time.Duration
	CatalogRate      float64
	CatalogCacheSize int
	TriggerSource    string

	LookupConcurrency int
	OutputDir         string

	// Provenance stamped on every ingested event.
	CatalogSource   string
	Contributor     string
	Agency          string
	Author          string
	MagnitudeMethod string

	ResolutionPolicy string
	RenderOrphans    bool

	// PDL product client.
	PDLCommand      string
	PDLJar          string
	PDLConfig       string
	PDLKey          string
	DispatchEnabled bool
	DispatchTimeout time.Duration
	DispatchTrump   bool

	StateFile string

	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	productType, err := domain.ParseProductType(sharedcfg.EnvOrDefault("PRODUCT_TYPE", string(domain.ProductOrigin)))
	if err != nil {
		return nil, errors.New("invalid PRODUCT_TYPE")
	}

	var p parser
	cfg := &Config{
		ProductType:      productType,
		DistanceWindowKm: p.positiveFloat("DISTANCE_WINDOW_KM", "100"),
		TimeWindow:       p.duration("TIME_WINDOW", "16s"),

		CatalogURL:       sharedcfg.EnvOrDefault("CATALOG_URL", DefaultCatalogURL),
		CatalogTimeout:   p.duration("CATALOG_TIMEOUT", "10s"),
		CatalogRate:      p.nonNegativeFloat("CATALOG_RATE", "5"),
		CatalogCacheSize: p.positiveInt("CATALOG_CACHE_SIZE", "256"),
		TriggerSource:    os.Getenv("TRIGGER_SOURCE"),

		LookupConcurrency: p.positiveInt("LOOKUP_CONCURRENCY", "4"),
		OutputDir:         sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),

		CatalogSource:   sharedcfg.EnvOrDefault("CATALOG_SOURCE", "us"),
		Contributor:     sharedcfg.EnvOrDefault("CONTRIBUTOR", "us"),
		Agency:          sharedcfg.EnvOrDefault("AGENCY", "us"),
		Author:          os.Getenv("AUTHOR"),
		MagnitudeMethod: os.Getenv("MAGNITUDE_METHOD"),

		ResolutionPolicy: strings.ToLower(sharedcfg.EnvOrDefault("RESOLUTION_POLICY", PolicyNone)),
		RenderOrphans:    p.bool("RENDER_ORPHANS"),

		PDLCommand:      sharedcfg.EnvOrDefault("PDL_COMMAND", "java"),
		PDLJar:          os.Getenv("PDL_JAR"),
		PDLConfig:       os.Getenv("PDL_CONFIG"),
		PDLKey:          os.Getenv("PDL_KEY"),
		DispatchEnabled: p.bool("DISPATCH_ENABLED"),
		DispatchTimeout: p.duration("DISPATCH_TIMEOUT", "2m"),
		DispatchTrump:   p.bool("DISPATCH_TRUMP"),

		StateFile: sharedcfg.EnvOrDefault("STATE_FILE", "loader.state"),

		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "normalized-quake-events"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "quake-product-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "quake-catalog-loader"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that CLI flags may have overridden after Load.
func (c *Config) Validate() error {
	switch c.ResolutionPolicy {
	case PolicyInteractive, PolicyNone, PolicyClosest, PolicyReject:
	default:
		return errors.New("invalid RESOLUTION_POLICY")
	}
	if c.CatalogURL == "" {
		return errors.New("CATALOG_URL is required")
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	if c.DistanceWindowKm <= 0 {
		return errors.New("invalid DISTANCE_WINDOW_KM")
	}
	if c.TimeWindow <= 0 {
		return errors.New("invalid TIME_WINDOW")
	}
	if c.DispatchEnabled && (c.PDLConfig == "" || c.PDLKey == "") {
		return errors.New("DISPATCH_ENABLED is true but PDL_CONFIG or PDL_KEY is not set")
	}
	return nil
}

// ValidateStream checks the settings stream mode needs on top of Validate.
func (c *Config) ValidateStream() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaSourceTopic == "" {
		return errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required")
	}
	if c.ResolutionPolicy == PolicyInteractive {
		return errors.New("RESOLUTION_POLICY interactive is not available in stream mode")
	}
	return nil
}

// parser reads typed values and keeps the first error, which names the key.
type parser struct {
	err error
}

func (p *parser) fail(key string) {
	if p.err == nil {
		p.err = errors.New("invalid " + key)
	}
}

func (p *parser) duration(key, def string) time.Duration {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		p.fail(key)
	}
	return d
}

func (p *parser) positiveFloat(key, def string) float64 {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil || !(v > 0) || math.IsInf(v, 1) {
		p.fail(key)
	}
	return v
}

func (p *parser) nonNegativeFloat(key, def string) float64 {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil || !(v >= 0) || math.IsInf(v, 1) {
		p.fail(key)
	}
	return v
}

func (p *parser) positiveInt(key, def string) int {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n <= 0 {
		p.fail(key)
	}
	return n
}

func (p *parser) bool(key string) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key)
	}
	return b
}
