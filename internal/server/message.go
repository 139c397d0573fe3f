package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	brainmath "github.com/drakos74/free-brain/internal/math"
)

// protocol command and reply words
const (
	cmdInit        = "init"
	cmdSingleInput = "single_input"
	cmdMultiInputs = "multi_inputs"

	replyRequestSamples = "request_samples"
	replyPrediction     = "prediction"
)

var (
	// ErrUnknownCommand signals a frame whose command word is not part of the protocol.
	// The frame is dropped, the connection stays open.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformed signals a recognised command with an undecodable payload.
	ErrMalformed = errors.New("malformed message")
)

// Kind is the closed set of inbound protocol commands.
type Kind int

const (
	Init Kind = iota + 1
	SingleInput
	MultiInputs
)

// Message is one decoded inbound frame. The payload fields are populated
// according to the kind, decoding happens once at the transport boundary.
type Message struct {
	Kind Kind

	// init
	NumRawInputs int

	// single_input
	Timestamp int64
	Fields    []float64

	// multi_inputs
	Times []int64
	Rows  [][]float64
}

// Decode parses a comma-separated protocol frame into a message.
//
//	init,<num_raw_inputs>
//	single_input,<timetag>,<f_1>,..,<f_n>
//	multi_inputs,<num_rows>,<num_cols>,<timetag_1>,<f_1_1>,..,<f_1_n>,..
//
// For multi_inputs every row leads with its timetag, num_cols counts
// the feature fields only.
func Decode(frame string) (Message, error) {
	parts := strings.Split(strings.TrimSpace(frame), ",")
	switch parts[0] {
	case cmdInit:
		return decodeInit(parts)
	case cmdSingleInput:
		return decodeSingle(parts)
	case cmdMultiInputs:
		return decodeMulti(parts)
	}
	return Message{}, fmt.Errorf("'%s': %w", parts[0], ErrUnknownCommand)
}

func decodeInit(parts []string) (Message, error) {
	if len(parts) != 2 {
		return Message{}, fmt.Errorf("init with %d fields: %w", len(parts)-1, ErrMalformed)
	}
	n, err := parseInt(parts[1])
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:         Init,
		NumRawInputs: n,
	}, nil
}

func decodeSingle(parts []string) (Message, error) {
	if len(parts) < 3 {
		return Message{}, fmt.Errorf("single_input with %d fields: %w", len(parts)-1, ErrMalformed)
	}
	ts, err := parseTime(parts[1])
	if err != nil {
		return Message{}, err
	}
	fields, err := parseFloats(parts[2:])
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:      SingleInput,
		Timestamp: ts,
		Fields:    fields,
	}, nil
}

func decodeMulti(parts []string) (Message, error) {
	if len(parts) < 3 {
		return Message{}, fmt.Errorf("multi_inputs with %d fields: %w", len(parts)-1, ErrMalformed)
	}
	numRows, err := parseInt(parts[1])
	if err != nil {
		return Message{}, err
	}
	numCols, err := parseInt(parts[2])
	if err != nil {
		return Message{}, err
	}
	if numRows < 1 || numCols < 1 {
		return Message{}, fmt.Errorf("%d x %d matrix: %w", numRows, numCols, ErrMalformed)
	}
	values := parts[3:]
	if len(values) != numRows*(numCols+1) {
		return Message{}, fmt.Errorf("%d values for a %d x %d matrix: %w",
			len(values), numRows, numCols, ErrMalformed)
	}

	times := make([]int64, numRows)
	rows := make([][]float64, numRows)
	for i := 0; i < numRows; i++ {
		base := i * (numCols + 1)
		ts, err := parseTime(values[base])
		if err != nil {
			return Message{}, err
		}
		row, err := parseFloats(values[base+1 : base+1+numCols])
		if err != nil {
			return Message{}, err
		}
		times[i] = ts
		rows[i] = row
	}
	return Message{
		Kind:  MultiInputs,
		Times: times,
		Rows:  rows,
	}, nil
}

// RequestSamples encodes the init handshake reply asking for the training window.
func RequestSamples(size int) string {
	return fmt.Sprintf("%s,%d", replyRequestSamples, size)
}

// Prediction encodes the forecast reply for the given sample timetag.
// The value lies in [0,1], 0.5 meaning no direction.
func Prediction(timestamp int64, value float64) string {
	return fmt.Sprintf("%s,%d,%s", replyPrediction, timestamp, brainmath.Format(value))
}

func parseInt(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("'%s' is not an integer: %w", s, ErrMalformed)
	}
	return v, nil
}

func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	// some clients emit timetags in float notation
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("'%s' is not a timetag: %w", s, ErrMalformed)
	}
	return int64(f), nil
}

func parseFloats(ss []string) ([]float64, error) {
	vv := make([]float64, len(ss))
	for i, s := range ss {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a number: %w", s, ErrMalformed)
		}
		vv[i] = v
	}
	return vv, nil
}
