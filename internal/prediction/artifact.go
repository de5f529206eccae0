package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// ErrArtifactNotFound is returned by ArtifactStore.Load when nothing was saved yet.
var ErrArtifactNotFound = goerr.New("model artifact not found")

// Artifact is the persisted form of a trained model.
type Artifact struct {
	Type      string            `json:"type"`
	AvgBill   *float64          `json:"avg_bill,omitempty"`
	Model     *RegressionParams `json:"model,omitempty"`
	TrainedAt time.Time         `json:"trained_at"`
	Samples   int               `json:"samples"`
}

// RegressionParams are the coefficients of a linear_regression artifact.
type RegressionParams struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// ArtifactStore persists the trained model between runs.
type ArtifactStore interface {
	Save(ctx context.Context, a Artifact) error
	Load(ctx context.Context) (Artifact, error)
}

// NewArtifact describes m as an artifact.
func NewArtifact(m Model, samples int, trainedAt time.Time) Artifact {
	a := Artifact{Type: m.Kind(), TrainedAt: trainedAt, Samples: samples}
	switch m := m.(type) {
	case SimpleModel:
		avg := m.AvgBill
		a.AvgBill = &avg
	case RegressionModel:
		a.Model = &RegressionParams{Slope: m.Slope, Intercept: m.Intercept}
	}
	return a
}

// ToModel converts an artifact back into a model.
func (a Artifact) ToModel() (Model, error) {
	switch a.Type {
	case KindSimple:
		if a.AvgBill == nil || !finite(*a.AvgBill) {
			return nil, goerr.New("simple artifact without a valid avg_bill")
		}
		return SimpleModel{AvgBill: *a.AvgBill}, nil
	case KindLinearRegression:
		if a.Model == nil || !finite(a.Model.Slope) || !finite(a.Model.Intercept) {
			return nil, goerr.New("linear_regression artifact without valid coefficients")
		}
		return RegressionModel{Slope: a.Model.Slope, Intercept: a.Model.Intercept}, nil
	default:
		return nil, goerr.New("unknown model artifact type", goerr.V("type", a.Type))
	}
}

// FileArtifactStore keeps the artifact as a JSON file.
type FileArtifactStore struct {
	Path string
}

// NewFileArtifactStore creates a store writing to path.
func NewFileArtifactStore(path string) *FileArtifactStore {
	return &FileArtifactStore{Path: path}
}

// Save writes the artifact atomically (temp file + rename).
func (s *FileArtifactStore) Save(ctx context.Context, a Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "marshal model artifact")
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "create model directory", goerr.V("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return goerr.Wrap(err, "create temp model file", goerr.V("dir", dir))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "write temp model file", goerr.V("path", tmpName))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "close temp model file", goerr.V("path", tmpName))
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return goerr.Wrap(err, "replace model file", goerr.V("path", s.Path))
	}
	return nil
}

// Load reads the artifact. A missing file yields ErrArtifactNotFound.
func (s *FileArtifactStore) Load(ctx context.Context) (Artifact, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Artifact{}, goerr.Wrap(ErrArtifactNotFound, "load model artifact", goerr.V("path", s.Path))
	}
	if err != nil {
		return Artifact{}, goerr.Wrap(err, "read model file", goerr.V("path", s.Path))
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, goerr.Wrap(err, "parse model file", goerr.V("path", s.Path))
	}
	return a, nil
}
