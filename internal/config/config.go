package config

import (
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrMissing signals a required configuration key that is absent or invalid.
// Construction fails fast before any computation is attempted.
var ErrMissing = errors.New("missing required config")

// Optimizer selects the gradient step implementation for a training session.
type Optimizer string

const (
	RMSProp           Optimizer = "rmsprop"
	ConjugateGradient Optimizer = "cg"
)

// Config is the single immutable configuration shared by all components.
// It is validated once at construction, every consumer can rely on the fields being set.
type Config struct {
	// window sizing
	TrainSize    int `yaml:"train_size"`
	WarmupOffset int `yaml:"warmup_offset"`
	EvalSize     int `yaml:"eval_size"`

	// labels
	LabelOffset   int `yaml:"label_offset"`
	ForecastIndex int `yaml:"forecast_index"`
	NumClasses    int `yaml:"num_classes"`

	// features
	CloseOnly       bool  `yaml:"close_only"`
	EMAPeriods      []int `yaml:"ema_periods"`
	REMAPeriods     []int `yaml:"rema_periods"`
	RSIPeriod       int   `yaml:"rsi_period"`
	ExtraLogOffsets []int `yaml:"extra_log_offsets"`
	LogSmoothPeriod int   `yaml:"log_smooth_period"`

	// training
	SeqLength       int       `yaml:"seq_length"`
	BatchSize       int       `yaml:"batch_size"`
	TrainIterations int       `yaml:"train_iterations"`
	TrainFrequency  int       `yaml:"train_frequency"`
	EnsembleSize    int       `yaml:"ensemble_size"`
	HiddenSize      int       `yaml:"hidden_size"`
	Optimizer       Optimizer `yaml:"optimizer"`
	LearningRate    float64   `yaml:"learning_rate"`
	RMSDecay        float64   `yaml:"rms_decay"`
	GradientClip    float64   `yaml:"gradient_clip"`
	EMAAdaptation   float64   `yaml:"ema_adaptation"`
}

// New validates the given config and returns it as an immutable value.
func New(cfg Config) (Config, error) {
	if cfg.Optimizer == "" {
		cfg.Optimizer = RMSProp
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	required := []struct {
		key string
		ok  bool
	}{
		{"train_size", c.TrainSize > 0},
		{"warmup_offset", c.WarmupOffset > 0},
		{"eval_size", c.EvalSize > 0},
		{"label_offset", c.LabelOffset >= 1},
		{"forecast_index", c.ForecastIndex >= 0},
		{"num_classes", c.NumClasses >= 1},
		{"seq_length", c.SeqLength > 0},
		{"batch_size", c.BatchSize >= 1},
		{"train_iterations", c.TrainIterations > 0},
		{"train_frequency", c.TrainFrequency > 0},
		{"ensemble_size", c.EnsembleSize > 0},
		{"hidden_size", c.HiddenSize > 0},
		{"learning_rate", c.LearningRate > 0},
		{"rms_decay", c.RMSDecay > 0 && c.RMSDecay < 1},
		{"gradient_clip", c.GradientClip > 0},
		{"ema_adaptation", c.EMAAdaptation > 0 && c.EMAAdaptation <= 1},
	}
	for _, r := range required {
		if !r.ok {
			return fmt.Errorf("%s: %w", r.key, ErrMissing)
		}
	}
	if c.Optimizer != RMSProp && c.Optimizer != ConjugateGradient {
		return fmt.Errorf("optimizer '%s': %w", c.Optimizer, ErrMissing)
	}
	return nil
}

// RequiredWindow is the raw window capacity needed before any training can happen.
func (c Config) RequiredWindow() int {
	return c.TrainSize + c.WarmupOffset + 1
}

// FeaturesPerSymbol is the number of derived feature columns for a single instrument.
func (c Config) FeaturesPerSymbol() int {
	n := 1 + len(c.ExtraLogOffsets) + len(c.EMAPeriods) + len(c.REMAPeriods)
	if c.RSIPeriod > 0 {
		n++
	}
	return n
}

// FeatureWidth is the deterministic feature row width for the given number of instruments.
func (c Config) FeatureWidth(numSymbols int) int {
	return 2 + numSymbols*c.FeaturesPerSymbol()
}

// MustLoad loads and validates the config from the given yaml file.
func MustLoad(path string) Config {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("could not load config from %s: %s", path, err.Error()))
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		panic(fmt.Sprintf("could not unmarshal config from %s: %s", path, err.Error()))
	}
	valid, err := New(cfg)
	if err != nil {
		panic(fmt.Sprintf("invalid config in %s: %s", path, err.Error()))
	}
	log.Info().Str("path", path).Msg("loaded config")
	return valid
}
