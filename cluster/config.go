package cluster

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/unkn0wn-root/replog"
)

// Unbounded is the MaxRetries value that retries a send until it succeeds,
// the secondary turns unhealthy or the master stops.
const Unbounded = -1

type Config struct {
	Host         string
	Port         int
	InternalPort int
	Secret       string

	// master
	SecondaryHosts   []string
	WriteConcern     int
	Quorum           int
	ReplicateTimeout time.Duration
	MaxRetries       int
	BackoffUnit      time.Duration
	Codec            string

	HealthcheckInterval       time.Duration
	HealthcheckRequestTimeout time.Duration
	SuspectThreshold          int

	CatchupMaxPasses int
	CatchupRPS       int

	// secondary
	Sleep    time.Duration
	DedupKey string

	LogLevel string
}

func Default() Config {
	return Config{
		Port:                      8000,
		InternalPort:              80,
		WriteConcern:              1,
		Quorum:                    0,
		ReplicateTimeout:          5 * time.Second,
		MaxRetries:                Unbounded,
		BackoffUnit:               time.Second,
		Codec:                     "json",
		HealthcheckInterval:       5 * time.Second,
		HealthcheckRequestTimeout: 2 * time.Second,
		SuspectThreshold:          3,
		CatchupMaxPasses:          5,
		CatchupRPS:                0,
		DedupKey:                  replog.DedupRecord.String(),
		LogLevel:                  "info",
	}
}

// fileConfig mirrors Config with every field optional so a YAML file only
// overrides what it names.
type fileConfig struct {
	Host                      *string  `yaml:"host"`
	Port                      *int     `yaml:"port"`
	InternalPort              *int     `yaml:"internal_port"`
	Secret                    *string  `yaml:"secret"`
	SecondaryHosts            []string `yaml:"secondary_hosts"`
	WriteConcern              *int     `yaml:"write_concern"`
	Quorum                    *int     `yaml:"quorum"`
	ReplicateTimeout          *string  `yaml:"replicate_timeout"`
	MaxRetries                *int     `yaml:"max_retries"`
	BackoffUnit               *string  `yaml:"backoff_unit"`
	Codec                     *string  `yaml:"replication_codec"`
	HealthcheckInterval       *string  `yaml:"healthcheck_interval"`
	HealthcheckRequestTimeout *string  `yaml:"healthcheck_request_timeout"`
	SuspectThreshold          *int     `yaml:"healthcheck_suspect_threshold"`
	CatchupMaxPasses          *int     `yaml:"catchup_max_passes"`
	CatchupRPS                *int     `yaml:"catchup_rps"`
	Sleep                     *string  `yaml:"sleep"`
	DedupKey                  *string  `yaml:"dedup_key"`
	LogLevel                  *string  `yaml:"log_level"`
}

// Parse applies a YAML document on top of c.
func (c *Config) Parse(data []byte) error {
	var aux fileConfig
	if err := yaml.UnmarshalStrict(data, &aux); err != nil {
		return errors.Wrap(err, "parse config")
	}

	setString(&c.Host, aux.Host)
	setInt(&c.Port, aux.Port)
	setInt(&c.InternalPort, aux.InternalPort)
	setString(&c.Secret, aux.Secret)
	if aux.SecondaryHosts != nil {
		c.SecondaryHosts = cleanHosts(aux.SecondaryHosts)
	}
	setInt(&c.WriteConcern, aux.WriteConcern)
	setInt(&c.Quorum, aux.Quorum)
	setInt(&c.MaxRetries, aux.MaxRetries)
	setString(&c.Codec, aux.Codec)
	setInt(&c.SuspectThreshold, aux.SuspectThreshold)
	setInt(&c.CatchupMaxPasses, aux.CatchupMaxPasses)
	setInt(&c.CatchupRPS, aux.CatchupRPS)
	setString(&c.DedupKey, aux.DedupKey)
	setString(&c.LogLevel, aux.LogLevel)

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"replicate_timeout", aux.ReplicateTimeout, &c.ReplicateTimeout},
		{"backoff_unit", aux.BackoffUnit, &c.BackoffUnit},
		{"healthcheck_interval", aux.HealthcheckInterval, &c.HealthcheckInterval},
		{"healthcheck_request_timeout", aux.HealthcheckRequestTimeout, &c.HealthcheckRequestTimeout},
		{"sleep", aux.Sleep, &c.Sleep},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := ParseDuration(*d.src)
		if err != nil {
			return errors.Wrapf(err, "parse config: %s", d.name)
		}
		*d.dst = v
	}
	return nil
}

// LoadFile reads a YAML config file and applies it on top of c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	return c.Parse(data)
}

// FromEnv applies environment variables on top of c. lookup is usually
// os.LookupEnv. An unset MAX_RETRIES keeps the current value.
func (c *Config) FromEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "env %s", key)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "env %s", key)
		}
		*dst = d
		return nil
	}

	str("HOST", &c.Host)
	str("SECRET", &c.Secret)
	str("REPLICATION_CODEC", &c.Codec)
	str("DEDUP_KEY", &c.DedupKey)
	str("LOG_LEVEL", &c.LogLevel)
	if v, ok := lookup("SECONDARY_HOSTS"); ok {
		c.SecondaryHosts = cleanHosts(strings.Split(v, ","))
	}

	for _, f := range []func() error{
		func() error { return num("PORT", &c.Port) },
		func() error { return num("INTERNAL_PORT", &c.InternalPort) },
		func() error { return num("WRITE_CONCERN", &c.WriteConcern) },
		func() error { return num("QUORUM", &c.Quorum) },
		func() error { return num("MAX_RETRIES", &c.MaxRetries) },
		func() error { return num("HEALTHCHECK_SUSPECT_THRESHOLD", &c.SuspectThreshold) },
		func() error { return num("CATCHUP_MAX_PASSES", &c.CatchupMaxPasses) },
		func() error { return num("CATCHUP_RPS", &c.CatchupRPS) },
		func() error { return dur("REPLICATE_TIMEOUT", &c.ReplicateTimeout) },
		func() error { return dur("BACKOFF_UNIT", &c.BackoffUnit) },
		func() error { return dur("HEALTHCHECK_INTERVAL", &c.HealthcheckInterval) },
		func() error { return dur("HEALTHCHECK_REQUEST_TIMEOUT", &c.HealthcheckRequestTimeout) },
		func() error { return dur("SLEEP", &c.Sleep) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the fields both roles rely on.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.InternalPort < 0 || c.InternalPort > 65535:
		return fmt.Errorf("invalid internal port %d", c.InternalPort)
	case c.WriteConcern < 1:
		return fmt.Errorf("write concern must be >= 1, got %d", c.WriteConcern)
	case c.Quorum < 0:
		return fmt.Errorf("quorum must be >= 0, got %d", c.Quorum)
	case c.Quorum > len(c.SecondaryHosts):
		return fmt.Errorf("quorum %d exceeds %d configured secondaries", c.Quorum, len(c.SecondaryHosts))
	case c.MaxRetries < Unbounded:
		return fmt.Errorf("max retries must be >= 0 or %d for unbounded, got %d", Unbounded, c.MaxRetries)
	case c.ReplicateTimeout <= 0:
		return errors.New("replicate timeout must be positive")
	case c.BackoffUnit <= 0:
		return errors.New("backoff unit must be positive")
	case c.HealthcheckInterval <= 0:
		return errors.New("healthcheck interval must be positive")
	case c.HealthcheckRequestTimeout <= 0:
		return errors.New("healthcheck request timeout must be positive")
	case c.SuspectThreshold < 1:
		return fmt.Errorf("suspect threshold must be >= 1, got %d", c.SuspectThreshold)
	case c.CatchupMaxPasses < 1:
		return fmt.Errorf("catch-up passes must be >= 1, got %d", c.CatchupMaxPasses)
	case c.CatchupRPS < 0:
		return fmt.Errorf("catch-up rps must be >= 0, got %d", c.CatchupRPS)
	case c.Sleep < 0:
		return errors.New("sleep must not be negative")
	}
	if _, err := CodecByName(c.Codec); err != nil {
		return err
	}
	if _, err := replog.ParseDedupMode(c.DedupKey); err != nil {
		return err
	}
	return nil
}

// ParseDuration accepts plain seconds ("2", "0.5") or a Go duration ("250ms").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func cleanHosts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
