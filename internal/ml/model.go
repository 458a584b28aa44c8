package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobby-s-dev/firerisk/internal/features"
)

// Artifact file names inside the model directory.
const (
	ModelFile    = "fire_model.json"
	ScalerFile   = "scaler.json"
	FeaturesFile = "features.txt"
)

// ErrFeatureMismatch is returned when persisted feature names do not match
// the order the service assembles vectors in.
var ErrFeatureMismatch = errors.New("ml: persisted feature order does not match")

// Metadata describes the training run that produced a model.
type Metadata struct {
	Name          string             `json:"name"`
	RunID         string             `json:"run_id"`
	TrainedAt     time.Time          `json:"trained_at"`
	Dataset       string             `json:"dataset"`
	Samples       int                `json:"samples"`
	TrainAccuracy float64            `json:"train_accuracy"`
	TestAccuracy  float64            `json:"test_accuracy"`
	CVMean        float64            `json:"cv_mean"`
	CVStd         float64            `json:"cv_std"`
	Importances   map[string]float64 `json:"feature_importances"`
}

// Model bundles the fitted scaler and ensemble. It is built once and only
// read afterwards, so it is safe to share between goroutines.
type Model struct {
	Meta     Metadata
	Scaler   *StandardScaler
	Ensemble *Ensemble
	Features []string
}

type modelFile struct {
	Metadata Metadata  `json:"metadata"`
	Ensemble *Ensemble `json:"ensemble"`
}

// Predict scales v and runs the ensemble. It returns the predicted label
// and the probability of fire.
func (m *Model) Predict(v features.Vector) (int, float64, error) {
	scaled, err := m.Scaler.Transform(v.Slice())
	if err != nil {
		return 0, 0, err
	}
	p := m.Ensemble.PredictProba(scaled)
	label := 0
	if p > 0.5 {
		label = 1
	}
	return label, p, nil
}

func (m *Model) Name() string {
	return m.Meta.Name
}

// Loaded reports whether every artifact is present.
func (m *Model) Loaded() bool {
	return m != nil && m.Scaler != nil && m.Ensemble != nil && len(m.Features) > 0
}

// Save writes the three artifacts into dir, creating it if needed. A model
// whose feature list is not the serving order is refused.
func Save(dir string, m *Model) error {
	if err := features.CheckOrder(m.Features); err != nil {
		return fmt.Errorf("%w: %v", ErrFeatureMismatch, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, ModelFile), modelFile{Metadata: m.Meta, Ensemble: m.Ensemble}); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, ScalerFile), m.Scaler); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, FeaturesFile), []byte(features.Header()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", FeaturesFile, err)
	}
	return nil
}

// Load reads and cross-checks the artifacts in dir. Any missing file, decode
// failure, or inconsistency between them is an error.
func Load(dir string) (*Model, error) {
	raw, err := os.ReadFile(filepath.Join(dir, FeaturesFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", FeaturesFile, err)
	}
	names := strings.Split(strings.TrimSpace(string(raw)), ",")
	if err := features.CheckOrder(names); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeatureMismatch, err)
	}
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}

	var mf modelFile
	if err := readJSON(filepath.Join(dir, ModelFile), &mf); err != nil {
		return nil, err
	}
	if mf.Ensemble == nil {
		return nil, fmt.Errorf("%s: missing ensemble", ModelFile)
	}
	if err := mf.Ensemble.validate(features.Size); err != nil {
		return nil, fmt.Errorf("%s: %w", ModelFile, err)
	}

	var scaler StandardScaler
	if err := readJSON(filepath.Join(dir, ScalerFile), &scaler); err != nil {
		return nil, err
	}
	if err := scaler.validate(features.Size); err != nil {
		return nil, fmt.Errorf("%s: %w", ScalerFile, err)
	}

	return &Model{
		Meta:     mf.Metadata,
		Scaler:   &scaler,
		Ensemble: mf.Ensemble,
		Features: names,
	}, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
