package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"stealthcompany.com/glycorisk/internal/risk"
)

// Config is everything the binaries read from the environment.
type Config struct {
	APIPort          string `mapstructure:"API_PORT"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	ElasticsearchURL string `mapstructure:"ELASTICSEARCH_URL"`

	CouchbaseURL      string `mapstructure:"COUCHBASE_URL"`
	CouchbaseUsername string `mapstructure:"COUCHBASE_USERNAME"`
	CouchbasePassword string `mapstructure:"COUCHBASE_PASSWORD"`
	CouchbaseBucket   string `mapstructure:"COUCHBASE_BUCKET"`
	PatientsFile      string `mapstructure:"PATIENTS_FILE"`

	FHIRBaseURL      string        `mapstructure:"FHIR_BASE_URL"`
	FHIRTimeout      time.Duration `mapstructure:"FHIR_TIMEOUT"`
	FHIRPatientCount int           `mapstructure:"FHIR_PATIENT_COUNT"`

	EvalWorkers int `mapstructure:"EVAL_WORKERS"`

	HbA1cGood          float64 `mapstructure:"HBA1C_GOOD"`
	HbA1cAcceptable    float64 `mapstructure:"HBA1C_ACCEPTABLE"`
	HbA1cAction        float64 `mapstructure:"HBA1C_ACTION"`
	OverdueLabMonths   int     `mapstructure:"OVERDUE_LAB_MONTHS"`
	OverdueVisitMonths int     `mapstructure:"OVERDUE_VISIT_MONTHS"`
	UrgentDays         int     `mapstructure:"URGENT_DAYS"`
	OverdueDefaultDays int     `mapstructure:"OVERDUE_DEFAULT_DAYS"`
}

var defaults = map[string]any{
	"API_PORT":             "8080",
	"LOG_LEVEL":            "info",
	"ELASTICSEARCH_URL":    "",
	"COUCHBASE_URL":        "",
	"COUCHBASE_USERNAME":   "glycorisk_user",
	"COUCHBASE_PASSWORD":   "",
	"COUCHBASE_BUCKET":     "glycorisk",
	"PATIENTS_FILE":        "",
	"FHIR_BASE_URL":        "https://hapi.fhir.org/baseR4",
	"FHIR_TIMEOUT":         "30s",
	"FHIR_PATIENT_COUNT":   200,
	"EVAL_WORKERS":         8,
	"HBA1C_GOOD":           53.0,
	"HBA1C_ACCEPTABLE":     63.0,
	"HBA1C_ACTION":         64.0,
	"OVERDUE_LAB_MONTHS":   3,
	"OVERDUE_VISIT_MONTHS": 4,
	"URGENT_DAYS":          30,
	"OVERDUE_DEFAULT_DAYS": 365,
}

// Load reads configuration from the process environment. Callers load .env
// files beforehand with godotenv.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads configuration through v, letting tests inject values with
// v.Set.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		// Bind env vars explicitly so Unmarshal picks them up
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.FHIRPatientCount <= 0 {
		return nil, fmt.Errorf("FHIR_PATIENT_COUNT must be positive, got %d", cfg.FHIRPatientCount)
	}
	if cfg.EvalWorkers <= 0 {
		return nil, fmt.Errorf("EVAL_WORKERS must be positive, got %d", cfg.EvalWorkers)
	}

	return cfg, nil
}

// Thresholds validates the clinical cut points. The returned error is a
// *risk.ConfigError and must stop the caller.
func (c *Config) Thresholds() (risk.ThresholdConfig, error) {
	return risk.NewThresholdConfig(
		c.HbA1cGood,
		c.HbA1cAcceptable,
		c.HbA1cAction,
		c.OverdueLabMonths,
		c.OverdueVisitMonths,
		c.UrgentDays,
		c.OverdueDefaultDays,
	)
}

// UseCouchbase reports whether a Couchbase cluster is configured as the
// patient repository.
func (c *Config) UseCouchbase() bool {
	return c.CouchbaseURL != ""
}

// NewEngine builds an engine from the configured thresholds and worker count.
func (c *Config) NewEngine() (*risk.Engine, error) {
	thresholds, err := c.Thresholds()
	if err != nil {
		return nil, err
	}
	return risk.NewEngine(thresholds, risk.WithWorkers(c.EvalWorkers))
}
