package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func valid() Config {
	return Config{
		TrainSize:       50,
		WarmupOffset:    20,
		EvalSize:        5,
		LabelOffset:     1,
		ForecastIndex:   0,
		NumClasses:      1,
		EMAPeriods:      []int{10},
		REMAPeriods:     []int{10},
		RSIPeriod:       14,
		SeqLength:       5,
		BatchSize:       1,
		TrainIterations: 10,
		TrainFrequency:  5,
		EnsembleSize:    3,
		HiddenSize:      8,
		LearningRate:    0.01,
		RMSDecay:        0.9,
		GradientClip:    5,
		EMAAdaptation:   0.1,
	}
}

func TestNew(t *testing.T) {
	cfg, err := New(valid())
	assert.NoError(t, err)
	assert.Equal(t, RMSProp, cfg.Optimizer)
	assert.Equal(t, 71, cfg.RequiredWindow())
}

func TestNew_Missing(t *testing.T) {

	type test struct {
		mutate func(c *Config)
	}

	tests := map[string]test{
		"train_size":    {mutate: func(c *Config) { c.TrainSize = 0 }},
		"warmup_offset": {mutate: func(c *Config) { c.WarmupOffset = 0 }},
		"label_offset":  {mutate: func(c *Config) { c.LabelOffset = 0 }},
		"seq_length":    {mutate: func(c *Config) { c.SeqLength = 0 }},
		"ensemble_size": {mutate: func(c *Config) { c.EnsembleSize = 0 }},
		"learning_rate": {mutate: func(c *Config) { c.LearningRate = 0 }},
		"rms_decay":     {mutate: func(c *Config) { c.RMSDecay = 1 }},
		"optimizer":     {mutate: func(c *Config) { c.Optimizer = "adam" }},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.True(t, errors.Is(err, ErrMissing), "expected ErrMissing, got %v", err)
		})
	}
}

func TestFeatureWidth(t *testing.T) {
	cfg, err := New(valid())
	assert.NoError(t, err)
	// 1 log-return + 1 ema + 1 rema + 1 rsi
	assert.Equal(t, 4, cfg.FeaturesPerSymbol())
	// 2 temporal + 7 symbols
	assert.Equal(t, 30, cfg.FeatureWidth(7))
}
