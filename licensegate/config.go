package licensegate

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
const EnvPrefix = "LICENSEGATE"

// Config is the process-level configuration, read from LICENSEGATE_* variables.
// Empty product fields fall back to DefaultProduct.
type Config struct {
	ServerURL    string        `envconfig:"SERVER_URL"`
	APIKey       string        `envconfig:"API_KEY"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"10s"`
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`

	CheckinPolicy    string `envconfig:"CHECKIN_POLICY" default:"warn"`
	ProductSKU       string `envconfig:"PRODUCT_SKU"`
	KeyFingerprint   string `envconfig:"KEY_FINGERPRINT"`
	EntitlementName  string `envconfig:"ENTITLEMENT_NAME"`
	EntitlementUnit  string `envconfig:"ENTITLEMENT_UNIT"`
	EntitlementValue string `envconfig:"ENTITLEMENT_VALUE"`

	BreakerFailures    uint32        `envconfig:"BREAKER_FAILURES" default:"3"`
	BreakerOpenTimeout time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"1m"`

	JournalDriver   string `envconfig:"JOURNAL_DRIVER"` // "", "memory", "postgres" or "mongo"
	JournalDSN      string `envconfig:"JOURNAL_DSN"`
	JournalDatabase string `envconfig:"JOURNAL_DATABASE" default:"licensegate"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Product applies the configured overrides to DefaultProduct.
func (c Config) Product() (Product, error) {
	p := DefaultProduct
	policy, err := ParseCheckinPolicy(c.CheckinPolicy)
	if err != nil {
		return Product{}, err
	}
	p.CheckinPolicy = policy
	if c.ProductSKU != "" {
		p.SKU = c.ProductSKU
	}
	if c.KeyFingerprint != "" {
		p.KeyFingerprint = c.KeyFingerprint
	}
	if c.EntitlementName != "" {
		p.Entitlement.Name = c.EntitlementName
	}
	if c.EntitlementUnit != "" {
		p.Entitlement.Unit = EntitlementUnit(c.EntitlementUnit)
	}
	if c.EntitlementValue != "" {
		p.Entitlement.Value = c.EntitlementValue
	}
	return p, nil
}

// ErrNoServerURL is returned by Config.Client when LICENSEGATE_SERVER_URL is unset.
var ErrNoServerURL = errors.New("licensegate: LICENSEGATE_SERVER_URL is required")

// Client builds the OnlineClient wrapped in a circuit breaker. Only this
// path needs the authority URL.
func (c Config) Client(settings BreakerSettings) (EntitlementClient, error) {
	if c.ServerURL == "" {
		return nil, ErrNoServerURL
	}
	online := NewOnlineClient(c.ServerURL, c.APIKey, WithTimeout(c.Timeout))
	settings.FailureThreshold = c.BreakerFailures
	settings.OpenTimeout = c.BreakerOpenTimeout
	return NewBreakerClient(online, settings), nil
}
