package model

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Algorithm string          `json:"algorithm"`
	Params    json.RawMessage `json:"params"`
}

// Marshal wraps m in an algorithm-tagged envelope.
func Marshal(m Model) ([]byte, error) {
	params, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Algorithm: m.Name(), Params: params})
}

// Unmarshal restores a model written by Marshal.
func Unmarshal(data []byte) (Model, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}
	var m Model
	switch env.Algorithm {
	case AlgLinearRegression:
		m = &LinearRegression{}
	case AlgLogisticRegression:
		m = &LogisticRegression{}
	case AlgKNN:
		m = &KNN{}
	case AlgRandomForest:
		m = &RandomForest{}
	default:
		return nil, fmt.Errorf("decode model envelope: unknown algorithm %q", env.Algorithm)
	}
	if err := json.Unmarshal(env.Params, m); err != nil {
		return nil, fmt.Errorf("decode %s params: %w", env.Algorithm, err)
	}
	return m, nil
}
