package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to option names to form environment variables,
// e.g. CALIPSO_VARIABLE or CALIPSO_KAFKA_BROKERS.
const EnvPrefix = "CALIPSO"

// Config holds the settings of one subset run.
type Config struct {
	FilesList   string
	TmpDir      string
	Description string
	Variable    string
	Output      string

	Range        domain.TimeRange
	Hours        int
	Domain       domain.Bounds
	MinElevation float64
	MaxElevation float64

	MinimumCAD         float64
	MaximumUncertainty float64

	AggregateWindow int
	AggregateLevels int
	MaxCells        int
	VDataCacheSize  int

	LogLevel        string
	LogFormat       string
	MetricsAddr     string
	Pushgateway     string
	KafkaBrokers    []string
	KafkaTopic      string
	ShutdownTimeout time.Duration
}

type option struct {
	name       string
	usage      string
	defaultVal any
}

var options = []option{
	{"files", "file listing the input files, one path per line", ""},
	{"tmpdir", "directory for the scan spool; empty keeps the spool in memory", ""},
	{"desc", "description written to the output header", ""},
	{"timestamp", "start of the time range as YYYYMMDDHH (UTC)", ""},
	{"hours", "length of the time range in hours", 24},
	{"variable", "name of the variable to extract, e.g. Extinction_Coefficient_532", ""},
	{"domain", "longitude-latitude box as \"minLon minLat maxLon maxLat\"", "-180 -90 180 90"},
	{"elevation", "elevation range in meters above mean sea level as \"min max\"", "-500 100000"},
	{"minimumCAD", "minimum accepted magnitude of the cloud-aerosol discrimination score", 20.0},
	{"maximumUncertainty", "maximum accepted absolute uncertainty", 99.0},
	{"output", "output stream path; - writes to standard output", "-"},
	{"config", "optional configuration file (yaml, toml or json)", ""},
	{"log-level", "log level: debug, info, warn or error", "info"},
	{"log-format", "log format: json or text", "json"},
	{"metrics-addr", "address serving /healthz, /readyz and /metrics; empty disables", ""},
	{"pushgateway", "Prometheus Pushgateway URL receiving the run metrics; empty disables", ""},
	{"kafka-brokers", "comma separated Kafka brokers receiving scan summaries; empty disables", ""},
	{"kafka-topic", "Kafka topic for scan summaries", "calipso-scan-summaries"},
	{"aggregate-window", "ground points averaged into one by aggregation", 15},
	{"aggregate-levels", "target vertical levels after aggregation", 100},
	{"max-cells", "largest points x levels accepted for one file; 0 is unlimited", 0},
	{"vdata-cache-size", "altitude tables kept in the read cache", 16},
	{"shutdown-timeout", "time allowed for the metrics server to drain", "10s"},
}

// Bind registers every option on fs and binds it into v, along with
// CALIPSO_* environment variables.
func Bind(fs *pflag.FlagSet, v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, o := range options {
		switch d := o.defaultVal.(type) {
		case string:
			fs.String(o.name, d, o.usage)
		case int:
			fs.Int(o.name, d, o.usage)
		case float64:
			fs.Float64(o.name, d, o.usage)
		default:
			return fmt.Errorf("option %s: unsupported default %T", o.name, d)
		}
		if err := v.BindPFlag(o.name, fs.Lookup(o.name)); err != nil {
			return fmt.Errorf("bind %s: %w", o.name, err)
		}
	}
	return nil
}

// Load reads the optional configuration file named by "config" and returns
// the validated settings.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	shutdownTimeout, err := time.ParseDuration(v.GetString("shutdown-timeout"))
	if err != nil || shutdownTimeout <= 0 {
		return nil, errors.New("invalid shutdown-timeout")
	}

	cfg := &Config{
		FilesList:          v.GetString("files"),
		TmpDir:             v.GetString("tmpdir"),
		Description:        v.GetString("desc"),
		Variable:           v.GetString("variable"),
		Output:             v.GetString("output"),
		Hours:              v.GetInt("hours"),
		MinimumCAD:         v.GetFloat64("minimumCAD"),
		MaximumUncertainty: v.GetFloat64("maximumUncertainty"),
		AggregateWindow:    v.GetInt("aggregate-window"),
		AggregateLevels:    v.GetInt("aggregate-levels"),
		MaxCells:           v.GetInt("max-cells"),
		VDataCacheSize:     v.GetInt("vdata-cache-size"),
		LogLevel:           v.GetString("log-level"),
		LogFormat:          v.GetString("log-format"),
		MetricsAddr:        v.GetString("metrics-addr"),
		Pushgateway:        v.GetString("pushgateway"),
		KafkaBrokers:       parseBrokers(v.GetString("kafka-brokers")),
		KafkaTopic:         v.GetString("kafka-topic"),
		ShutdownTimeout:    shutdownTimeout,
	}

	if cfg.FilesList == "" {
		return nil, errors.New("files is required")
	}
	if cfg.Variable == "" {
		return nil, errors.New("variable is required")
	}
	if v.GetString("timestamp") == "" {
		return nil, errors.New("timestamp is required")
	}
	if cfg.Range, err = domain.NewTimeRange(v.GetString("timestamp"), cfg.Hours); err != nil {
		return nil, fmt.Errorf("invalid timestamp or hours: %w", err)
	}
	if cfg.Domain, err = domain.ParseDomain(v.GetString("domain")); err != nil {
		return nil, fmt.Errorf("invalid domain: %w", err)
	}
	if cfg.MinElevation, cfg.MaxElevation, err = domain.ParseElevationRange(v.GetString("elevation")); err != nil {
		return nil, fmt.Errorf("invalid elevation: %w", err)
	}
	if cfg.MinimumCAD < 0 || cfg.MinimumCAD > 100 {
		return nil, errors.New("invalid minimumCAD: must be within [0, 100]")
	}
	if cfg.MaximumUncertainty <= 0 {
		return nil, errors.New("invalid maximumUncertainty: must be positive")
	}
	if cfg.AggregateWindow < 1 || cfg.AggregateLevels < 1 {
		return nil, errors.New("invalid aggregate-window or aggregate-levels: must be at least 1")
	}
	if cfg.MaxCells < 0 {
		return nil, errors.New("invalid max-cells: must not be negative")
	}
	if cfg.VDataCacheSize < 1 {
		return nil, errors.New("invalid vdata-cache-size: must be at least 1")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("kafka-topic is required when kafka-brokers is set")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid log-format %q", cfg.LogFormat)
	}

	return cfg, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
