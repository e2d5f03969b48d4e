package tuning

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"tactica.ai/internal/sim/clock"
)

// EnvPrefix namespaces environment overrides, e.g. TACTICA_STEP_MS.
const EnvPrefix = "TACTICA_"

type Tuning struct {
	StepMs             int    `yaml:"step_ms" env:"STEP_MS"`
	MaxDeltaMs         int    `yaml:"max_delta_ms" env:"MAX_DELTA_MS"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks" env:"SNAPSHOT_EVERY_TICKS"`
	QueueLimit         int    `yaml:"queue_limit" env:"QUEUE_LIMIT"`
	Seed               int32  `yaml:"seed" env:"SEED"`
	LogDir             string `yaml:"log_dir" env:"LOG_DIR"`
	IndexPath          string `yaml:"index_path" env:"INDEX_PATH"`
}

func Default() Tuning {
	return Tuning{
		StepMs:             50,
		MaxDeltaMs:         100,
		SnapshotEveryTicks: 1200,
		QueueLimit:         1024,
		Seed:               1,
		LogDir:             "data/sessions",
		IndexPath:          "data/index.sqlite",
	}
}

// Load reads tuning.yaml over the defaults and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Tuning, error) {
	t := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, err
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("tuning.yaml: %w", err)
		}
	}
	if err := env.ParseWithOptions(&t, env.Options{Prefix: EnvPrefix}); err != nil {
		return t, fmt.Errorf("tuning env: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.StepMs <= 0 {
		return fmt.Errorf("tuning: step_ms must be positive, got %d", t.StepMs)
	}
	if t.MaxDeltaMs < t.StepMs {
		return fmt.Errorf("tuning: max_delta_ms %d below step_ms %d", t.MaxDeltaMs, t.StepMs)
	}
	if limit := int(clock.MaxDelta / time.Millisecond); t.MaxDeltaMs > limit {
		return fmt.Errorf("tuning: max_delta_ms %d above %d", t.MaxDeltaMs, limit)
	}
	if t.SnapshotEveryTicks < 0 || t.QueueLimit < 0 {
		return fmt.Errorf("tuning: negative snapshot_every_ticks or queue_limit")
	}
	return nil
}

func (t Tuning) Step() time.Duration { return time.Duration(t.StepMs) * time.Millisecond }
func (t Tuning) MaxDelta() time.Duration { return time.Duration(t.MaxDeltaMs) * time.Millisecond }
