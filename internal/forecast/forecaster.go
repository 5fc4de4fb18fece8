package forecast

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lox/aqicast/internal/features"
	"github.com/lox/aqicast/internal/models"
	"github.com/lox/aqicast/internal/store"
)

type Forecaster struct {
	store     *store.Store
	trainer   *Trainer
	modelPath string
	location  string
	loc       *time.Location
}

func NewForecaster(s *store.Store, trainer *Trainer, modelPath, location string, loc *time.Location) *Forecaster {
	return &Forecaster{
		store:     s,
		trainer:   trainer,
		modelPath: modelPath,
		location:  location,
		loc:       loc,
	}
}

// NextSevenDays produces the 7-day-ahead forecast generated at now: one
// entry per day after now, ordered by predicted date. The entries are not
// persisted here; the caller decides when to upsert them.
//
// A missing model artifact is a cold start and triggers a synchronous
// retrain. A predictor that does not return exactly Horizon values, or a
// series without a single fully-lagged row, is ErrDataShape.
func (f *Forecaster) NextSevenDays(now time.Time) ([]models.ForecastEntry, error) {
	records, err := f.store.CleanedSeries()
	if err != nil {
		return nil, fmt.Errorf("load cleaned series: %w", err)
	}

	frame := features.Build(records)
	if frame.Rows() == 0 {
		return nil, fmt.Errorf("%w: no rows with a complete %d-day lag window", ErrDataShape, features.NumLags)
	}

	model, err := f.loadOrTrain()
	if err != nil {
		return nil, err
	}

	x, err := frame.RowVector(frame.Rows()-1, model.Features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataShape, err)
	}

	preds, err := model.Predict(x)
	if err != nil {
		return nil, err
	}
	if len(preds) != Horizon {
		return nil, fmt.Errorf("%w: predictor returned %d values, want %d", ErrDataShape, len(preds), Horizon)
	}

	today := now.In(f.loc)
	forecastDate := today.Format(models.DateLayout)
	entries := make([]models.ForecastEntry, Horizon)
	for i, p := range preds {
		entries[i] = models.ForecastEntry{
			ForecastDate:  forecastDate,
			PredictedDate: today.AddDate(0, 0, i+1).Format(models.DateLayout),
			PredictedAQI:  p,
			ModelName:     model.Name(),
			Location:      f.location,
		}
	}
	return entries, nil
}

func (f *Forecaster) loadOrTrain() (*Ridge, error) {
	model, err := LoadModel(f.modelPath)
	if err == nil {
		return model, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load model: %w", err)
	}

	log.Printf("forecaster: no model at %s, training", f.modelPath)
	if _, err := f.trainer.Train(); err != nil {
		return nil, fmt.Errorf("cold-start train: %w", err)
	}
	model, err = LoadModel(f.modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model after training: %w", err)
	}
	return model, nil
}
