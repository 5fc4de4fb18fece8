// Package forecast trains and applies the AQI predictor: a ridge-regularized
// linear model fit against seven simultaneous day-ahead targets. The model
// family is swappable behind Predictor; everything else in the pipeline only
// depends on the feature contract.
package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Horizon is the number of days ahead a single forecast covers.
const Horizon = 7

// ErrDataShape marks fatal predictor/feature mismatches: wrong prediction
// count, missing feature columns, or a series too short to produce a full
// feature vector. These are configuration errors, never silently coerced
// into a shorter or padded forecast.
var ErrDataShape = errors.New("data shape mismatch")

// Predictor maps one engineered feature vector to Horizon AQI predictions.
type Predictor interface {
	Name() string
	Predict(x []float64) ([]float64, error)
}

// Ridge is a multi-output linear model with L2 regularization. It is the
// persisted artifact: feature names are stored alongside the weights so a
// loaded model can detect drift against the current feature frame.
type Ridge struct {
	ModelName  string      `json:"model_name"`
	TrainedAt  time.Time   `json:"trained_at"`
	Lambda     float64     `json:"lambda"`
	Features   []string    `json:"features"`
	Weights    [][]float64 `json:"weights"` // [feature][horizon]
	Intercepts []float64   `json:"intercepts"`
}

func (m *Ridge) Name() string {
	return m.ModelName
}

func (m *Ridge) Predict(x []float64) ([]float64, error) {
	if len(x) != len(m.Features) {
		return nil, fmt.Errorf("%w: %d inputs for %d model features", ErrDataShape, len(x), len(m.Features))
	}
	out := make([]float64, Horizon)
	copy(out, m.Intercepts)
	for i, xi := range x {
		for j := range out {
			out[j] += xi * m.Weights[i][j]
		}
	}
	return out, nil
}

// FitRidge solves the regularized least-squares problem for all Horizon
// targets at once. The bias term is left unpenalized.
func FitRidge(x, y [][]float64, featureNames []string, lambda float64) (*Ridge, error) {
	n := len(x)
	if n == 0 {
		return nil, fmt.Errorf("%w: no training rows", ErrDataShape)
	}
	p := len(featureNames)
	if len(x[0]) != p {
		return nil, fmt.Errorf("%w: %d columns for %d feature names", ErrDataShape, len(x[0]), p)
	}
	if len(y) != n || len(y[0]) != Horizon {
		return nil, fmt.Errorf("%w: target matrix is %dx%d, want %dx%d", ErrDataShape, len(y), len(y[0]), n, Horizon)
	}

	// Augmented system: [X 1; sqrt(lambda)*I 0] theta = [Y; 0] turns ridge
	// into an ordinary least-squares solve.
	rows := n + p
	a := mat.NewDense(rows, p+1, nil)
	b := mat.NewDense(rows, Horizon, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			a.Set(i, j, x[i][j])
		}
		a.Set(i, p, 1)
		for j := 0; j < Horizon; j++ {
			b.Set(i, j, y[i][j])
		}
	}
	if lambda > 0 {
		sqrtLambda := math.Sqrt(lambda)
		for j := 0; j < p; j++ {
			a.Set(n+j, j, sqrtLambda)
		}
	}

	var theta mat.Dense
	if err := theta.Solve(a, b); err != nil {
		return nil, fmt.Errorf("solve regression: %w", err)
	}

	m := &Ridge{
		ModelName:  "ridge_v1",
		TrainedAt:  time.Now().UTC(),
		Lambda:     lambda,
		Features:   append([]string(nil), featureNames...),
		Weights:    make([][]float64, p),
		Intercepts: make([]float64, Horizon),
	}
	for i := 0; i < p; i++ {
		m.Weights[i] = make([]float64, Horizon)
		for j := 0; j < Horizon; j++ {
			m.Weights[i][j] = theta.At(i, j)
		}
	}
	for j := 0; j < Horizon; j++ {
		m.Intercepts[j] = theta.At(p, j)
	}
	return m, nil
}

// SaveModel persists the model artifact as a JSON blob at path.
func SaveModel(path string, m *Ridge) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

// LoadModel reads a persisted model artifact. A missing file is reported
// via os.ErrNotExist so callers can distinguish cold start from corruption.
func LoadModel(path string) (*Ridge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Ridge
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal model %s: %w", path, err)
	}
	if len(m.Features) == 0 || len(m.Weights) != len(m.Features) || len(m.Intercepts) != Horizon {
		return nil, fmt.Errorf("%w: model artifact %s is malformed", ErrDataShape, path)
	}
	for _, w := range m.Weights {
		if len(w) != Horizon {
			return nil, fmt.Errorf("%w: model artifact %s is malformed", ErrDataShape, path)
		}
	}
	return &m, nil
}
