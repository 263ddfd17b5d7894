// Package artifact persists pipeline outputs as JSON files. Every artifact
// is keyed by (agent, trigger time); writes are atomic
// (write-temp-then-rename) and existing artifacts are never overwritten, so
// a re-run with the same trigger time short-circuits to the stored copy.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantfleet/quantfleet/pkg/models"
)

// Subdirectories of the artifact root.
const (
	factorsDir     = "factors"
	reportsDir     = "reports"
	judgerDir      = "judger_scores"
	finalResultDir = "final_result"
)

// ErrNotFound indicates no artifact exists for the requested key.
var ErrNotFound = errors.New("artifact not found")

// Store reads and writes artifacts under a root directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir, creating the directory tree.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{factorsDir, reportsDir, judgerDir, finalResultDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact dir: %w", err)
		}
	}
	return &Store{root: dir}, nil
}

// Root returns the artifact root directory.
func (s *Store) Root() string { return s.root }

// SanitizeFactorTime maps a trigger time to the factor filename stem:
// space → "_", ":" → "-".
func SanitizeFactorTime(triggerTime string) string {
	return strings.ReplaceAll(strings.ReplaceAll(triggerTime, " ", "_"), ":", "-")
}

// SanitizeReportTime maps a trigger time to the report filename stem:
// space → "_", colons retained.
func SanitizeReportTime(triggerTime string) string {
	return strings.ReplaceAll(triggerTime, " ", "_")
}

// CompactTime strips spaces and colons for judger-score and final-result
// filenames.
func CompactTime(triggerTime string) string {
	return strings.NewReplacer(" ", "", ":", "").Replace(triggerTime)
}

// FactorPath returns the on-disk path of a factor artifact.
func (s *Store) FactorPath(agentName, triggerTime string) string {
	return filepath.Join(s.root, factorsDir, agentName, SanitizeFactorTime(triggerTime)+".json")
}

// ReportPath returns the on-disk path of a signal (report) artifact.
func (s *Store) ReportPath(agentName, triggerTime string) string {
	return filepath.Join(s.root, reportsDir, agentName, SanitizeReportTime(triggerTime)+".json")
}

// JudgerScoresPath returns the on-disk path of a judging-round artifact.
func (s *Store) JudgerScoresPath(triggerTime string) string {
	return filepath.Join(s.root, judgerDir, "scores_"+CompactTime(triggerTime)+".json")
}

// FinalResultPath returns the on-disk path of a weight-result artifact.
func (s *Store) FinalResultPath(triggerTime string) string {
	return filepath.Join(s.root, finalResultDir, "final_result_"+CompactTime(triggerTime)+".json")
}

// SaveFactor persists a factor artifact. An existing artifact for the same
// key is left untouched and no error is returned (idempotent submit).
func (s *Store) SaveFactor(a *models.FactorArtifact) error {
	return s.writeIfAbsent(s.FactorPath(a.AgentName, a.TriggerTime), a)
}

// LoadFactor reads a factor artifact. ok is false when none exists.
func (s *Store) LoadFactor(agentName, triggerTime string) (*models.FactorArtifact, bool, error) {
	var a models.FactorArtifact
	ok, err := s.read(s.FactorPath(agentName, triggerTime), &a)
	if !ok || err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

// SaveReport persists a signal artifact (idempotent submit).
func (s *Store) SaveReport(a *models.SignalArtifact) error {
	return s.writeIfAbsent(s.ReportPath(a.AgentName, a.TriggerTime), a)
}

// LoadReport reads a signal artifact. ok is false when none exists.
func (s *Store) LoadReport(agentName, triggerTime string) (*models.SignalArtifact, bool, error) {
	var a models.SignalArtifact
	ok, err := s.read(s.ReportPath(agentName, triggerTime), &a)
	if !ok || err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

// SaveJudgerScores persists a judging round (idempotent submit).
func (s *Store) SaveJudgerScores(a *models.JudgerScoresArtifact) error {
	return s.writeIfAbsent(s.JudgerScoresPath(a.TriggerTime), a)
}

// SaveFinalResult persists the weight result for a trigger time
// (idempotent submit).
func (s *Store) SaveFinalResult(a *models.WeightResult) error {
	return s.writeIfAbsent(s.FinalResultPath(a.TriggerTime), a)
}

// LoadFinalResult reads the weight result for a trigger time.
func (s *Store) LoadFinalResult(triggerTime string) (*models.WeightResult, bool, error) {
	var a models.WeightResult
	ok, err := s.read(s.FinalResultPath(triggerTime), &a)
	if !ok || err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

// LatestFinalResult returns the lexically newest final result, if any.
// Compact timestamps sort chronologically.
func (s *Store) LatestFinalResult() (*models.WeightResult, bool, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, finalResultDir))
	if err != nil {
		return nil, false, err
	}
	var newest string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") && e.Name() > newest {
			newest = e.Name()
		}
	}
	if newest == "" {
		return nil, false, nil
	}
	var a models.WeightResult
	ok, err := s.read(filepath.Join(s.root, finalResultDir, newest), &a)
	if !ok || err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

// ReportAgents lists agent names that have at least one stored report.
func (s *Store) ReportAgents() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, reportsDir))
	if err != nil {
		return nil, err
	}
	var agents []string
	for _, e := range entries {
		if e.IsDir() {
			agents = append(agents, e.Name())
		}
	}
	return agents, nil
}

// writeIfAbsent persists v unless the file already exists.
func (s *Store) writeIfAbsent(path string, v any) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return s.write(path, v)
}

// write marshals v and atomically replaces path.
func (s *Store) write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename artifact into place: %w", err)
	}
	return nil
}

// read unmarshals path into v. ok is false when the file does not exist.
func (s *Store) read(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	return true, nil
}
