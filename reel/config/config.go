// Package config loads reel settings from defaults, an optional YAML file and
// REEL_ prefixed environment variables, in increasing priority.
package config

import (
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/indrora/reel/reel/format"
	"github.com/indrora/reel/reel/recorder"
	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const ENV_PREFIX = "REEL_"

var ErrInvalid = errors.New("invalid configuration")

type RecordConfig struct {
	Dir               string `koanf:"dir"`
	TmpDir            string `koanf:"tmp_dir"`
	Compression       string `koanf:"compression"`
	DataPerChunk      int    `koanf:"data_per_chunk"`
	SecondsUntilWrite uint64 `koanf:"seconds_until_write"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type Config struct {
	Record RecordConfig `koanf:"record"`
	Log    LogConfig    `koanf:"log"`
}

func defaults() map[string]any {
	return map[string]any{
		"record.dir":                 recorder.DEFAULT_DIR,
		"record.tmp_dir":             recorder.DEFAULT_TMP_DIR,
		"record.compression":         format.COMPRESSION_ZSTD.String(),
		"record.data_per_chunk":      recorder.DATA_PER_CHUNK_TO_WRITE,
		"record.seconds_until_write": recorder.SECONDS_UNTIL_WRITE,
		"log.level":                  "info",
		"log.json":                   false,
	}
}

// mapProvider feeds a flat map of dotted keys into koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("map provider has no byte form")
}

func (m mapProvider) Read() (map[string]any, error) {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		flat[k] = v
	}
	return maps.Unflatten(flat, "."), nil
}

// envKey maps REEL_RECORD_TMP_DIR to record.tmp_dir: the first segment is the
// section, the rest is the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, ENV_PREFIX))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + key
}

// Load reads the configuration. path may be empty.
func Load(path string) (Config, error) {
	var cfg Config
	k := koanf.New(".")

	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return cfg, errors.Wrap(err, "failed to load defaults")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, errors.Wrapf(err, "failed to load %s", path)
		}
	}
	if err := k.Load(env.Provider(ENV_PREFIX, ".", envKey), nil); err != nil {
		return cfg, errors.Wrap(err, "failed to load environment")
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode configuration")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := format.ParseCompression(c.Record.Compression); err != nil {
		return errors.Wrapf(ErrInvalid, "record.compression: %v", err)
	}
	if c.Record.DataPerChunk < 1 {
		return errors.Wrapf(ErrInvalid, "record.data_per_chunk must be at least 1, got %d", c.Record.DataPerChunk)
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		return errors.Wrapf(ErrInvalid, "log.level: unknown level %q", c.Log.Level)
	}
	return nil
}

// RecorderOptions turns the record section into recorder options.
func (c Config) RecorderOptions() []recorder.Option {
	compression, _ := format.ParseCompression(c.Record.Compression)
	return []recorder.Option{
		recorder.WithCompression(compression),
		recorder.WithDataPerChunk(c.Record.DataPerChunk),
		recorder.WithSecondsUntilWrite(c.Record.SecondsUntilWrite),
	}
}

// Logger builds the root logger described by the log section.
func (c Config) Logger(name string, out io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(c.Log.Level),
		Output:     out,
		JSONFormat: c.Log.JSON,
	})
}
