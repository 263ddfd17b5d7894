package contest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/montanaflynn/stats"
)

// Model filenames under the configured model directory.
const (
	MeanModelFile = "mean_model.json"
	StdModelFile  = "std_model.json"
)

// FeatureCount is the predictor's fixed feature width: mean_1d, mean_3d,
// std_3d, mean_5d, std_5d, j0..j4, judge_mean, judge_std.
const FeatureCount = 12

// judgeSlots is the fixed judge-vector width the feature schema assumes.
const judgeSlots = 5

// ErrModelsMissing marks a predictor asked to run without trained models.
var ErrModelsMissing = errors.New("predictor models not found")

// LinearModel is a plain linear regression persisted as JSON.
type LinearModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Predict evaluates the model on a feature vector.
func (m *LinearModel) Predict(features []float64) float64 {
	out := m.Bias
	for i, w := range m.Weights {
		if i >= len(features) {
			break
		}
		out += w * features[i]
	}
	return out
}

// Predictor scores agents with two trained regressions: expected next-day
// return (mean) and its dispersion (std).
type Predictor struct {
	mean *LinearModel
	std  *LinearModel
}

// LoadPredictor reads both models from modelDir. Missing or unreadable
// model files are a hard error; the contest must not run on a silent
// zero-knowledge predictor.
func LoadPredictor(modelDir string) (*Predictor, error) {
	mean, err := loadModel(filepath.Join(modelDir, MeanModelFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelsMissing, err)
	}
	std, err := loadModel(filepath.Join(modelDir, StdModelFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelsMissing, err)
	}
	return &Predictor{mean: mean, std: std}, nil
}

func loadModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("bad model file %s: %w", path, err)
	}
	if len(m.Weights) != FeatureCount {
		return nil, fmt.Errorf("model %s has %d weights, want %d", path, len(m.Weights), FeatureCount)
	}
	return &m, nil
}

// PredictSharpe evaluates both models and returns mean / max(std, 0.01).
func (p *Predictor) PredictSharpe(features []float64) float64 {
	mean := p.mean.Predict(features)
	std := p.std.Predict(features)
	return mean / math.Max(std, 0.01)
}

// Features builds the 12-feature vector from the reward history (oldest
// first, NaN for missing days, median-imputed) and the day's judge scores
// (padded to five slots with their own mean).
func Features(history, judges []float64) ([]float64, error) {
	var valid []float64
	for _, v := range history {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("history window has no valid days")
	}
	if len(judges) == 0 {
		return nil, fmt.Errorf("no judge scores")
	}

	median, err := stats.Median(valid)
	if err != nil {
		return nil, err
	}
	imputed := make([]float64, len(history))
	for i, v := range history {
		if math.IsNaN(v) {
			imputed[i] = median
		} else {
			imputed[i] = v
		}
	}

	last3 := imputed
	if len(last3) > 3 {
		last3 = imputed[len(imputed)-3:]
	}

	judgeMean, _ := stats.Mean(judges)
	padded := make([]float64, judgeSlots)
	for i := range padded {
		if i < len(judges) {
			padded[i] = judges[i]
		} else {
			padded[i] = judgeMean
		}
	}
	judgeStd, _ := stats.StandardDeviation(padded)

	mean1 := imputed[len(imputed)-1]
	mean3, _ := stats.Mean(last3)
	std3, _ := stats.StandardDeviation(last3)
	mean5, _ := stats.Mean(imputed)
	std5, _ := stats.StandardDeviation(imputed)

	features := []float64{mean1, mean3, std3, mean5, std5}
	features = append(features, padded...)
	features = append(features, judgeMean, judgeStd)
	return features, nil
}
