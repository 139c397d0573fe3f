package server

import (
	"fmt"
	"io/ioutil"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/drakos74/free-brain/internal/buffer"
	"github.com/drakos74/free-brain/internal/config"
	"github.com/drakos74/free-brain/internal/storage"
	"github.com/stretchr/testify/assert"
)

func serverConfig(t *testing.T) config.Config {
	cfg, err := config.New(config.Config{
		TrainSize:       30,
		WarmupOffset:    8,
		EvalSize:        4,
		LabelOffset:     1,
		ForecastIndex:   0,
		NumClasses:      1,
		CloseOnly:       true,
		EMAPeriods:      []int{3},
		RSIPeriod:       5,
		SeqLength:       4,
		BatchSize:       1,
		TrainIterations: 3,
		TrainFrequency:  5,
		EnsembleSize:    2,
		HiddenSize:      4,
		LearningRate:    0.05,
		RMSDecay:        0.9,
		GradientClip:    5,
		EMAAdaptation:   0.2,
	})
	assert.NoError(t, err)
	return cfg
}

// singleFrame encodes one raw sample with the temporal fields and a single closing price.
func singleFrame(i int) string {
	ts := int64(1700000000 + i*3600)
	price := 100 + 5*math.Sin(float64(i)/3)
	return fmt.Sprintf("single_input,%d,%d,%d,%f", ts, ts%(7*24*3600), ts%(24*3600), price)
}

func predictionValue(t *testing.T, reply string) float64 {
	parts := strings.Split(reply, ",")
	assert.Equal(t, 3, len(parts), "reply %s", reply)
	assert.Equal(t, "prediction", parts[0])
	v, err := strconv.ParseFloat(parts[2], 64)
	assert.NoError(t, err)
	return v
}

func TestEngine_InitHandshake(t *testing.T) {

	cfg := serverConfig(t)
	e := NewEngine(cfg)
	assert.False(t, e.Ready())

	reply, err := e.Handle(Message{Kind: Init, NumRawInputs: 3})
	assert.NoError(t, err)
	assert.Equal(t, "request_samples,30", reply)
	assert.True(t, e.Ready())

	// two temporal fields alone carry no instrument
	_, err = e.Handle(Message{Kind: Init, NumRawInputs: 2})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEngine_CandleSymbols(t *testing.T) {

	cfg := serverConfig(t)
	cfg.CloseOnly = false
	e := NewEngine(cfg)

	// 2 temporal fields + 2 instruments x 4 candle fields
	_, err := e.Handle(Message{Kind: Init, NumRawInputs: 10})
	assert.NoError(t, err)
	assert.Equal(t, 2, e.pipe.NumSymbols())

	_, err = e.Handle(Message{Kind: Init, NumRawInputs: 9})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEngine_NotInitialized(t *testing.T) {

	cfg := serverConfig(t)
	e := NewEngine(cfg)

	_, err := e.Handle(Message{Kind: SingleInput, Timestamp: 1, Fields: []float64{1, 2, 3}})
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = e.Handle(Message{Kind: MultiInputs, Times: []int64{1}, Rows: [][]float64{{1, 2, 3}}})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestEngine_TrainingTrigger(t *testing.T) {

	cfg := serverConfig(t)
	rand.Seed(41)
	e := NewEngine(cfg)

	_, err := e.Handle(Message{Kind: Init, NumRawInputs: 3})
	assert.NoError(t, err)

	required := cfg.RequiredWindow()
	for i := 0; i < required; i++ {
		msg, err := Decode(singleFrame(i))
		assert.NoError(t, err)
		reply, err := e.Handle(msg)
		assert.NoError(t, err)

		v := predictionValue(t, reply)
		assert.True(t, v >= 0 && v <= 1, "prediction out of range: %f", v)
		if i < required-1 {
			// no trained member yet, no direction
			assert.Equal(t, 0.5, v)
		}
	}
	assert.Equal(t, 1, e.ens.Trained())

	// the next schedule hit trains the second member
	for i := required; i < required+cfg.TrainFrequency; i++ {
		msg, err := Decode(singleFrame(i))
		assert.NoError(t, err)
		_, err = e.Handle(msg)
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, e.ens.Trained())
}

func TestEngine_SnapshotRestore(t *testing.T) {

	cfg := serverConfig(t)
	rand.Seed(42)

	dir, err := ioutil.TempDir("", "brain")
	assert.NoError(t, err)
	defer os.RemoveAll(dir)
	store := storage.NewJson(dir)

	e := NewEngine(cfg).WithStore(store)
	_, err = e.Handle(Message{Kind: Init, NumRawInputs: 3})
	assert.NoError(t, err)
	for i := 0; i < cfg.RequiredWindow(); i++ {
		msg, err := Decode(singleFrame(i))
		assert.NoError(t, err)
		_, err = e.Handle(msg)
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, e.ens.Trained())

	// a fresh engine over the same store resumes with the trained ensemble
	restored := NewEngine(cfg).WithStore(store)
	_, err = restored.Handle(Message{Kind: Init, NumRawInputs: 3})
	assert.NoError(t, err)
	assert.Equal(t, 1, restored.ens.Trained())
}

func TestEngine_MultiInputs(t *testing.T) {

	cfg := serverConfig(t)
	e := NewEngine(cfg)

	_, err := e.Handle(Message{Kind: Init, NumRawInputs: 3})
	assert.NoError(t, err)

	times := make([]int64, 10)
	rows := make([][]float64, 10)
	for i := range rows {
		times[i] = int64(1700000000 + i*3600)
		rows[i] = []float64{1, 2, 100 + float64(i)}
	}
	reply, err := e.Handle(Message{Kind: MultiInputs, Times: times, Rows: rows})
	assert.NoError(t, err)
	assert.Equal(t, "", reply)
	assert.Equal(t, 10, e.window.Received())
}

func TestEngine_MultiInputsOverflow(t *testing.T) {

	cfg := serverConfig(t)
	e := NewEngine(cfg)

	_, err := e.Handle(Message{Kind: Init, NumRawInputs: 3})
	assert.NoError(t, err)

	n := cfg.RequiredWindow() + 1
	times := make([]int64, n)
	rows := make([][]float64, n)
	for i := range rows {
		times[i] = int64(i)
		rows[i] = []float64{1, 2, 3}
	}
	_, err = e.Handle(Message{Kind: MultiInputs, Times: times, Rows: rows})
	assert.ErrorIs(t, err, buffer.ErrCapacityExceeded)
	assert.Equal(t, 0, e.window.Received())
}
