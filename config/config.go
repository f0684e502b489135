// Package config holds the server configuration, read from a YAML file and
// completed with defaults.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage   Storage   `yaml:"storage"`
	GRPC      GRPC      `yaml:"grpc"`
	Metrics   Metrics   `yaml:"metrics"`
	Commit    Commit    `yaml:"commit"`
	Broadcast Broadcast `yaml:"broadcast"`
	Feed      Feed      `yaml:"feed"`
	Vacuum    Vacuum    `yaml:"vacuum"`
	Log       Log       `yaml:"log"`
}

type Storage struct {
	Dir string `yaml:"dir"`
	// InMemory keeps the catalog in memory; nothing survives a restart.
	InMemory      bool   `yaml:"in_memory"`
	TileGroupSize uint32 `yaml:"tile_group_size"`
}

type GRPC struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Metrics struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Commit is the retry policy for transaction commits. MaxAttempts zero
// retries until the request context ends.
type Commit struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	RedactNames     bool          `yaml:"redact_names"`
}

type Broadcast struct {
	Enabled bool `yaml:"enabled"`
	// Client is "sarama" or "kafka-go".
	Client     string        `yaml:"client"`
	Brokers    []string      `yaml:"brokers"`
	Topic      string        `yaml:"topic"`
	Interval   time.Duration `yaml:"interval"`
	PurgeEvery int           `yaml:"purge_every"`
}

type Feed struct {
	Enabled bool   `yaml:"enabled"`
	GroupID string `yaml:"group_id"`
}

type Vacuum struct {
	Interval time.Duration `yaml:"interval"`
}

type Log struct {
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

const (
	ClientSarama  = "sarama"
	ClientKafkaGo = "kafka-go"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage: Storage{
			Dir:           "./seqdb-data",
			TileGroupSize: 256,
		},
		GRPC:    GRPC{ListenAddr: ":50051"},
		Metrics: Metrics{ListenAddr: ":9090"},
		Commit: Commit{
			InitialInterval: time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
		},
		Broadcast: Broadcast{
			Client:     ClientSarama,
			Brokers:    []string{"localhost:9092"},
			Topic:      "seqdb.ddl",
			Interval:   250 * time.Millisecond,
			PurgeEvery: 100,
		},
		Feed:   Feed{GroupID: "seqdb"},
		Vacuum: Vacuum{Interval: 5 * time.Second},
		Log:    Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %q", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %q", path)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !c.Storage.InMemory && c.Storage.Dir == "" {
		return configErr(errors.New("storage.dir is required unless storage.in_memory is set"))
	}
	if c.Storage.TileGroupSize == 0 {
		return configErr(errors.New("storage.tile_group_size must be positive"))
	}
	if c.GRPC.ListenAddr == "" {
		return configErr(errors.New("grpc.listen_addr is required"))
	}
	if c.Commit.MaxAttempts < 0 {
		return configErr(errors.Newf("commit.max_attempts must not be negative, got %d", c.Commit.MaxAttempts))
	}
	if c.Commit.InitialInterval <= 0 || c.Commit.MaxInterval < c.Commit.InitialInterval {
		return configErr(errors.Newf("commit intervals must satisfy 0 < initial (%s) <= max (%s)",
			c.Commit.InitialInterval, c.Commit.MaxInterval))
	}
	if c.Broadcast.Enabled || c.Feed.Enabled {
		if len(c.Broadcast.Brokers) == 0 || c.Broadcast.Topic == "" {
			return configErr(errors.New("broadcast.brokers and broadcast.topic are required by the change feed"))
		}
	}
	if c.Broadcast.Enabled {
		switch c.Broadcast.Client {
		case ClientSarama, ClientKafkaGo:
		default:
			return configErr(errors.Newf("broadcast.client must be %q or %q, got %q",
				ClientSarama, ClientKafkaGo, c.Broadcast.Client))
		}
		if c.Broadcast.Interval <= 0 {
			return configErr(errors.New("broadcast.interval must be positive"))
		}
	}
	if c.Feed.Enabled && c.Feed.GroupID == "" {
		return configErr(errors.New("feed.group_id is required"))
	}
	if c.Vacuum.Interval <= 0 {
		return configErr(errors.New("vacuum.interval must be positive"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return configErr(err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return configErr(errors.Newf("log.format must be text or json, got %q", c.Log.Format))
	}
	return nil
}

func configErr(err error) error {
	return errors.Wrap(err, "invalid config")
}

// Logger builds the process logger from the log section.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(lvl)
	}
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
