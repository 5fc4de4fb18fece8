package forecast

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/lox/aqicast/internal/features"
	"github.com/lox/aqicast/internal/models"
	"github.com/lox/aqicast/internal/store"
)

const defaultLambda = 1.0

// testFraction is the chronological hold-out share. The split never
// shuffles: evaluating on the most recent tail approximates real
// forecasting conditions.
const testFraction = 0.2

type Trainer struct {
	store     *store.Store
	modelPath string
	loc       *time.Location
}

func NewTrainer(s *store.Store, modelPath string, loc *time.Location) *Trainer {
	return &Trainer{store: s, modelPath: modelPath, loc: loc}
}

// Train fits a fresh model on the full cleaned series, evaluates it on the
// held-out tail, persists the artifact and upserts the evaluation row for
// today. Returns the metrics it recorded.
func (t *Trainer) Train() (*models.EvaluationMetric, error) {
	records, err := t.store.CleanedSeries()
	if err != nil {
		return nil, fmt.Errorf("load cleaned series: %w", err)
	}

	frame := features.Build(records)
	x, y, err := targetMatrix(frame)
	if err != nil {
		return nil, err
	}

	m := len(x)
	nTest := int(math.Ceil(float64(m) * testFraction))
	nTrain := m - nTest
	if nTrain < 1 || nTest < 1 {
		return nil, fmt.Errorf("%w: %d usable rows is too few to split for training", ErrDataShape, m)
	}

	cols := frame.FeatureColumns()
	model, err := FitRidge(x[:nTrain], y[:nTrain], cols, defaultLambda)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	preds := make([][]float64, nTest)
	for i := 0; i < nTest; i++ {
		p, err := model.Predict(x[nTrain+i])
		if err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
		preds[i] = p
	}

	now := time.Now().In(t.loc)
	metric := evaluate(y[nTrain:], preds)
	metric.Timestamp = now.UTC()
	metric.EvalDate = now.Format(models.DateLayout)

	if err := SaveModel(t.modelPath, model); err != nil {
		return nil, err
	}
	if err := t.store.UpsertEvaluation(metric); err != nil {
		return nil, fmt.Errorf("record evaluation: %w", err)
	}

	log.Printf("trainer: %s fit on %d rows, held out %d: mae=%.2f r2=%.3f rmse=%.2f mape=%.3f",
		model.ModelName, nTrain, nTest, metric.MAE, metric.R2, metric.RMSE, metric.MAPE)
	return &metric, nil
}

// targetMatrix builds the supervised pair from the engineered frame: row i
// of X predicts the AQI of the next Horizon days. The final Horizon rows
// have no complete target window and are excluded.
func targetMatrix(frame *features.Frame) (x, y [][]float64, err error) {
	n := frame.Rows()
	usable := n - Horizon
	if usable < 2 {
		return nil, nil, fmt.Errorf("%w: %d usable rows after lagging, need at least %d", ErrDataShape, n, Horizon+2)
	}

	cols := frame.FeatureColumns()
	aqi := frame.Values("AQI")

	x = make([][]float64, usable)
	y = make([][]float64, usable)
	for i := 0; i < usable; i++ {
		row, err := frame.RowVector(i, cols)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrDataShape, err)
		}
		x[i] = row
		y[i] = make([]float64, Horizon)
		for j := 0; j < Horizon; j++ {
			y[i][j] = aqi[i+j+1]
		}
	}
	return x, y, nil
}

// evaluate computes MAE, R², RMSE and MAPE over the hold-out set,
// uniformly averaged across the Horizon outputs.
func evaluate(actual, predicted [][]float64) models.EvaluationMetric {
	var absSum, sqSum, mapeSum float64
	var count, mapeCount int

	// Per-output R² needs the column means first.
	colMean := make([]float64, Horizon)
	for _, row := range actual {
		for j, v := range row {
			colMean[j] += v
		}
	}
	for j := range colMean {
		colMean[j] /= float64(len(actual))
	}

	ssRes := make([]float64, Horizon)
	ssTot := make([]float64, Horizon)
	for i, row := range actual {
		for j, v := range row {
			diff := predicted[i][j] - v
			absSum += math.Abs(diff)
			sqSum += diff * diff
			ssRes[j] += diff * diff
			ssTot[j] += (v - colMean[j]) * (v - colMean[j])
			count++
			if v != 0 {
				mapeSum += math.Abs(diff / v)
				mapeCount++
			}
		}
	}

	var r2Sum float64
	for j := 0; j < Horizon; j++ {
		if ssTot[j] > 0 {
			r2Sum += 1 - ssRes[j]/ssTot[j]
		}
	}

	m := models.EvaluationMetric{
		MAE:  absSum / float64(count),
		RMSE: math.Sqrt(sqSum / float64(count)),
		R2:   r2Sum / Horizon,
	}
	if mapeCount > 0 {
		m.MAPE = mapeSum / float64(mapeCount)
	}
	return m
}
