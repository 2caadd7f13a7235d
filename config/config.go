package config

import (
	// Go Internal Packages
	"fmt"
	"time"

	// Local Packages
	errors "anchor-observer/errors"
)

var DefaultConfig = []byte(`
application: "anchor-observer"

logger:
  level: "debug"

is_prod_mode: false

store:
  driver: "mongo"

mongo:
  uri: "mongodb://localhost:27017"
  database: "anchor"

redis:
  uri: "localhost:6379"
  password: ""

kafka:
  brokers:
    - "localhost:9092"
  events:
    publish: true
    topic: "transaction-events"
    dedup_ttl: "24h"
  actions:
    consume: true
    topic: "transaction-actions"
    records_per_poll: 500
    consumer_name: "anchor-actions"
    dedup_ttl: "24h"

ledger:
  sources:
    - name: "horizon"
      horizon_url: "https://horizon-testnet.stellar.org"
      request_timeout: "30s"
      silence_check_interval: "5s"
      silence_timeout: "90s"
      silence_timeout_retries: 2
      initial_stream_backoff: "5s"
      max_stream_backoff: "300s"
      max_stream_retries: 0
      initial_event_backoff: "1s"
      max_event_backoff: "30s"
      max_event_retries: 5

accounts:
  residential: []
  eviction_interval: "1m"
  eviction_max_age: "24h"

custody:
  enabled: false
  url: "http://localhost:8086"
  api_key: ""
  timeout: "30s"
  trust_sweep_interval: "1m"
  trust_timeout: "24h"

platform:
  mode: "inprocess"
  url: "http://localhost:8085"
  timeout: "15s"

deposit_info:
  generator: "none"
  distribution_account: ""

server:
  address: ":8082"
`)

type Config struct {
	Application string      `koanf:"application"`
	Logger      Logger      `koanf:"logger"`
	IsProdMode  bool        `koanf:"is_prod_mode"`
	Store       Store       `koanf:"store"`
	Mongo       Mongo       `koanf:"mongo"`
	Redis       Redis       `koanf:"redis"`
	Kafka       Kafka       `koanf:"kafka"`
	Ledger      Ledger      `koanf:"ledger"`
	Accounts    Accounts    `koanf:"accounts"`
	Custody     Custody     `koanf:"custody"`
	Platform    Platform    `koanf:"platform"`
	DepositInfo DepositInfo `koanf:"deposit_info"`
	Server      Server      `koanf:"server"`
}

type Logger struct {
	Level string `koanf:"level"`
}

type Store struct {
	Driver string `koanf:"driver"`
}

type Mongo struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

type Redis struct {
	URI      string `koanf:"uri"`
	Password string `koanf:"password"`
}

type Kafka struct {
	Brokers []string     `koanf:"brokers"`
	Events  KafkaEvents  `koanf:"events"`
	Actions KafkaActions `koanf:"actions"`
}

type KafkaEvents struct {
	Publish  bool          `koanf:"publish"`
	Topic    string        `koanf:"topic"`
	DedupTTL time.Duration `koanf:"dedup_ttl"`
}

type KafkaActions struct {
	Consume        bool          `koanf:"consume"`
	Topic          string        `koanf:"topic"`
	RecordsPerPoll int           `koanf:"records_per_poll"`
	ConsumerName   string        `koanf:"consumer_name"`
	DedupTTL       time.Duration `koanf:"dedup_ttl"`
}

type Ledger struct {
	Sources []LedgerSource `koanf:"sources"`
}

// LedgerSource holds the per-stream tuning of one observer read loop.
type LedgerSource struct {
	Name                  string        `koanf:"name"`
	HorizonURL            string        `koanf:"horizon_url"`
	RequestTimeout        time.Duration `koanf:"request_timeout"`
	SilenceCheckInterval  time.Duration `koanf:"silence_check_interval"`
	SilenceTimeout        time.Duration `koanf:"silence_timeout"`
	SilenceTimeoutRetries int           `koanf:"silence_timeout_retries"`
	InitialStreamBackoff  time.Duration `koanf:"initial_stream_backoff"`
	MaxStreamBackoff      time.Duration `koanf:"max_stream_backoff"`
	MaxStreamRetries      int           `koanf:"max_stream_retries"`
	InitialEventBackoff   time.Duration `koanf:"initial_event_backoff"`
	MaxEventBackoff       time.Duration `koanf:"max_event_backoff"`
	MaxEventRetries       int           `koanf:"max_event_retries"`
}

type Accounts struct {
	Residential      []string      `koanf:"residential"`
	EvictionInterval time.Duration `koanf:"eviction_interval"`
	EvictionMaxAge   time.Duration `koanf:"eviction_max_age"`
}

type Custody struct {
	Enabled            bool          `koanf:"enabled"`
	URL                string        `koanf:"url"`
	APIKey             string        `koanf:"api_key"`
	Timeout            time.Duration `koanf:"timeout"`
	TrustSweepInterval time.Duration `koanf:"trust_sweep_interval"`
	TrustTimeout       time.Duration `koanf:"trust_timeout"`
}

type Platform struct {
	Mode    string        `koanf:"mode"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type DepositInfo struct {
	Generator           string `koanf:"generator"`
	DistributionAccount string `koanf:"distribution_account"`
}

type Server struct {
	Address string `koanf:"address"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ve := errors.ValidationErrs()

	if c.Application == "" {
		ve.Add("application", "cannot be empty")
	}
	if c.Logger.Level == "" {
		ve.Add("logger.level", "cannot be empty")
	}

	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.URI == "" {
			ve.Add("mongo.uri", "cannot be empty")
		}
		if c.Mongo.Database == "" {
			ve.Add("mongo.database", "cannot be empty")
		}
		if c.Redis.URI == "" {
			ve.Add("redis.uri", "cannot be empty")
		}
	case "memory":
	default:
		ve.Add("store.driver", "must be one of mongo, memory")
	}

	if (c.Kafka.Events.Publish || c.Kafka.Actions.Consume) && len(c.Kafka.Brokers) == 0 {
		ve.Add("kafka.brokers", "cannot be empty")
	}
	if c.Kafka.Events.Publish && c.Kafka.Events.Topic == "" {
		ve.Add("kafka.events.topic", "cannot be empty")
	}
	if c.Kafka.Actions.Consume && c.Kafka.Actions.Topic == "" {
		ve.Add("kafka.actions.topic", "cannot be empty")
	}

	if len(c.Ledger.Sources) == 0 {
		ve.Add("ledger.sources", "cannot be empty")
	}
	for i, s := range c.Ledger.Sources {
		s.validate(fmt.Sprintf("ledger.sources[%d]", i), ve)
	}

	switch c.Platform.Mode {
	case "inprocess":
	case "http":
		if c.Platform.URL == "" {
			ve.Add("platform.url", "cannot be empty in http mode")
		}
	default:
		ve.Add("platform.mode", "must be one of inprocess, http")
	}

	switch c.DepositInfo.Generator {
	case "self":
		if c.DepositInfo.DistributionAccount == "" {
			ve.Add("deposit_info.distribution_account", "cannot be empty for the self generator")
		}
	case "custody":
		if !c.Custody.Enabled {
			ve.Add("deposit_info.generator", "custody generator requires custody.enabled")
		}
	case "none":
	default:
		ve.Add("deposit_info.generator", "must be one of self, custody, none")
	}

	if c.Accounts.EvictionInterval <= 0 {
		ve.Add("accounts.eviction_interval", "must be positive")
	}

	if c.Custody.Enabled {
		if c.Custody.URL == "" {
			ve.Add("custody.url", "cannot be empty")
		}
		if c.Custody.TrustSweepInterval <= 0 {
			ve.Add("custody.trust_sweep_interval", "must be positive")
		}
		if c.Custody.TrustTimeout <= 0 {
			ve.Add("custody.trust_timeout", "must be positive")
		}
	}

	return ve.Err()
}

func (s LedgerSource) validate(prefix string, ve *errors.ValidationErrors) {
	if s.Name == "" {
		ve.Add(prefix+".name", "cannot be empty")
	}
	if s.HorizonURL == "" {
		ve.Add(prefix+".horizon_url", "cannot be empty")
	}
	if s.SilenceCheckInterval <= 0 {
		ve.Add(prefix+".silence_check_interval", "must be positive")
	}
	if s.SilenceTimeout < s.SilenceCheckInterval {
		ve.Add(prefix+".silence_timeout", "must not be shorter than silence_check_interval")
	}
	if s.InitialStreamBackoff <= 0 || s.MaxStreamBackoff < s.InitialStreamBackoff {
		ve.Add(prefix+".stream_backoff", "initial must be positive and not above max")
	}
	if s.InitialEventBackoff <= 0 || s.MaxEventBackoff < s.InitialEventBackoff {
		ve.Add(prefix+".event_backoff", "initial must be positive and not above max")
	}
	if s.MaxEventRetries <= 0 {
		ve.Add(prefix+".max_event_retries", "must be positive")
	}
}
