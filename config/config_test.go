package config

import (
	// Go Internal Packages
	"strings"
	"testing"

	// External Packages
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
)

func loadDefault(t *testing.T) Config {
	t.Helper()
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(DefaultConfig), yaml.Parser()); err != nil {
		t.Fatalf("load default config: %v", err)
	}
	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		t.Fatalf("unmarshal default config: %v", err)
	}
	return c
}

func TestDefaultConfigDecodesDurations(t *testing.T) {
	c := loadDefault(t)

	if len(c.Ledger.Sources) != 1 {
		t.Fatalf("expected one ledger source, got %d", len(c.Ledger.Sources))
	}
	src := c.Ledger.Sources[0]
	if src.SilenceTimeout.Seconds() != 90 {
		t.Fatalf("expected 90s silence timeout, got %s", src.SilenceTimeout)
	}
	if src.MaxEventRetries != 5 {
		t.Fatalf("expected 5 event retries, got %d", src.MaxEventRetries)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	c := loadDefault(t)
	if err := c.Validate(); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
}

func TestValidateRequiresDistributionAccountForSelfGenerator(t *testing.T) {
	c := loadDefault(t)
	c.DepositInfo.Generator = "self"

	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "deposit_info.distribution_account") {
		t.Fatalf("expected distribution account error, got %v", err)
	}

	c.DepositInfo.DistributionAccount = "GBN4NNCDGJO4XW4KQU3CBIESUJWFVBUZPOKUZHT7W7WRB7CWOA7BXVQF"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateCustodyGeneratorNeedsCustody(t *testing.T) {
	c := loadDefault(t)
	c.DepositInfo.Generator = "custody"

	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "custody generator requires custody.enabled") {
		t.Fatalf("expected custody generator error, got %v", err)
	}
}

func TestValidateLedgerSourceBackoffBounds(t *testing.T) {
	c := loadDefault(t)
	c.Ledger.Sources[0].MaxStreamBackoff = c.Ledger.Sources[0].InitialStreamBackoff / 2

	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "ledger.sources[0].stream_backoff") {
		t.Fatalf("expected stream backoff error, got %v", err)
	}
}

func TestValidateRejectsUnboundedLoops(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(c *Config)
	}{
		{"eviction interval", "accounts.eviction_interval", func(c *Config) { c.Accounts.EvictionInterval = 0 }},
		{"trust sweep interval", "custody.trust_sweep_interval", func(c *Config) {
			c.Custody.Enabled = true
			c.Custody.TrustSweepInterval = 0
		}},
		{"trust timeout", "custody.trust_timeout", func(c *Config) {
			c.Custody.Enabled = true
			c.Custody.TrustTimeout = 0
		}},
		{"event retries", "ledger.sources[0].max_event_retries", func(c *Config) { c.Ledger.Sources[0].MaxEventRetries = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := loadDefault(t)
			tt.edit(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("expected %s error, got %v", tt.field, err)
			}
		})
	}
}
