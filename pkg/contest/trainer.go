package contest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/quantfleet/quantfleet/pkg/agent/research"
	"github.com/quantfleet/quantfleet/pkg/artifact"
	"github.com/quantfleet/quantfleet/pkg/market"
)

// Trainer fits the predictor's mean/std regressions offline from
// accumulated artifacts: each stored judging round plus its agents' reward
// histories yields one training row per agent, labeled with the realized
// next-day reward.
type Trainer struct {
	Store      *artifact.Store
	Provider   market.Provider
	MarketName string
	WindowDays int
	// Lambda is the ridge regularization strength.
	Lambda float64
}

// trainingRow is one (features, label) pair.
type trainingRow struct {
	features []float64
	reward   float64
}

// Train builds the dataset over the given agents and trigger times, fits
// both models, and writes them to modelDir.
func (t *Trainer) Train(ctx context.Context, agentNames, triggerTimes []string, modelDir string) (*Predictor, error) {
	rows, err := t.buildDataset(ctx, agentNames, triggerTimes)
	if err != nil {
		return nil, err
	}
	if len(rows) < FeatureCount {
		return nil, fmt.Errorf("not enough training rows: %d, need at least %d", len(rows), FeatureCount)
	}

	lambda := t.Lambda
	if lambda <= 0 {
		lambda = 0.1
	}

	X := make([][]float64, len(rows))
	yMean := make([]float64, len(rows))
	yStd := make([]float64, len(rows))
	for i, row := range rows {
		X[i] = row.features
		yMean[i] = row.reward
	}
	// The dispersion label is each reward's absolute deviation from the
	// dataset mean; a richer volatility target needs intraday data we do
	// not store.
	total := 0.0
	for _, v := range yMean {
		total += v
	}
	avg := total / float64(len(yMean))
	for i, v := range yMean {
		yStd[i] = math.Abs(v - avg)
	}

	meanModel, err := fitRidge(X, yMean, lambda)
	if err != nil {
		return nil, fmt.Errorf("mean model fit failed: %w", err)
	}
	stdModel, err := fitRidge(X, yStd, lambda)
	if err != nil {
		return nil, fmt.Errorf("std model fit failed: %w", err)
	}

	if err := saveModel(filepath.Join(modelDir, MeanModelFile), meanModel); err != nil {
		return nil, err
	}
	if err := saveModel(filepath.Join(modelDir, StdModelFile), stdModel); err != nil {
		return nil, err
	}
	return &Predictor{mean: meanModel, std: stdModel}, nil
}

// buildDataset slides over the trigger times: for each (agent, time) with a
// realized reward, features are computed from the window strictly before
// that time.
func (t *Trainer) buildDataset(ctx context.Context, agentNames, triggerTimes []string) ([]trainingRow, error) {
	var rows []trainingRow
	for _, tt := range triggerTimes {
		for _, name := range agentNames {
			report, ok, err := t.Store.LoadReport(name, tt)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			signals, err := research.ParseSignals(name, tt, report.FinalResult)
			if err != nil {
				continue
			}
			signals = research.FixSignalSymbols(t.Provider, t.MarketName, signals)

			var reward float64
			found := false
			for _, sig := range signals {
				if !sig.Actionable() {
					continue
				}
				if r, err := SignalReward(ctx, t.Provider, t.MarketName, sig); err == nil {
					reward = r
					found = true
				}
				break
			}
			if !found {
				continue
			}

			history := HistoryReturns(ctx, t.Store, t.Provider, t.MarketName, name, tt, t.WindowDays)
			judges := t.judgeScores(name, tt)
			features, err := Features(history, judges)
			if err != nil {
				continue
			}
			rows = append(rows, trainingRow{features: features, reward: reward})
		}
	}
	return rows, nil
}

// judgeScores reads the stored judging round for the trigger time; a
// missing round contributes a neutral single-judge vector so the row is not
// lost.
func (t *Trainer) judgeScores(agentName, triggerTime string) []float64 {
	data, err := os.ReadFile(t.Store.JudgerScoresPath(triggerTime))
	if err != nil {
		return []float64{50}
	}
	var round struct {
		Scores map[string][]struct {
			Score float64 `json:"score"`
		} `json:"scores"`
	}
	if err := json.Unmarshal(data, &round); err != nil {
		return []float64{50}
	}
	list := round.Scores[agentName]
	if len(list) == 0 {
		return []float64{50}
	}
	out := make([]float64, len(list))
	for i, s := range list {
		out[i] = s.Score
	}
	return out
}

func saveModel(path string, m *LinearModel) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// fitRidge solves (XᵀX + λI)w = Xᵀy for the weights plus an unregularized
// bias column.
func fitRidge(X [][]float64, y []float64, lambda float64) (*LinearModel, error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("empty or mismatched training data")
	}
	d := len(X[0]) + 1 // bias column appended

	// Normal-equation matrices.
	a := make([][]float64, d)
	b := make([]float64, d)
	for i := range a {
		a[i] = make([]float64, d)
	}
	for r := 0; r < n; r++ {
		xi := append(append([]float64(nil), X[r]...), 1.0)
		for i := 0; i < d; i++ {
			b[i] += xi[i] * y[r]
			for j := 0; j < d; j++ {
				a[i][j] += xi[i] * xi[j]
			}
		}
	}
	for i := 0; i < d-1; i++ {
		a[i][i] += lambda
	}

	w, err := solve(a, b)
	if err != nil {
		return nil, err
	}
	return &LinearModel{Weights: w[:d-1], Bias: w[d-1]}, nil
}

// solve performs Gaussian elimination with partial pivoting.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}
