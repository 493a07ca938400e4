// Package dataset owns the on-disk layout for captured frames and model
// artifacts: raw capture sessions, processed data, and model directories.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Model artifact kinds, each with its own directory under the models root.
const (
	ModelONNX        = "onnx"
	ModelHEF         = "hef"
	ModelCheckpoints = "checkpoints"
)

// ModelKinds lists every model directory created by Setup.
var ModelKinds = []string{ModelONNX, ModelHEF, ModelCheckpoints}

// Layout roots the dataset and model trees.
type Layout struct {
	DataDir   string
	ModelsDir string
}

// Paths are the directories created by Setup.
type Paths struct {
	Raw       string
	Processed string
	Models    map[string]string
}

// RawDir holds one subdirectory per stream with capture sessions inside.
func (l Layout) RawDir() string {
	return filepath.Join(l.DataDir, "raw")
}

// ProcessedDir holds derived datasets.
func (l Layout) ProcessedDir() string {
	return filepath.Join(l.DataDir, "processed")
}

// ModelDir returns the directory for a model kind.
func (l Layout) ModelDir(kind string) string {
	return filepath.Join(l.ModelsDir, kind)
}

// Setup creates the dataset and model directories. Existing directories are
// left untouched, so calling it repeatedly is safe.
func (l Layout) Setup() (Paths, error) {
	p := Paths{
		Raw:       l.RawDir(),
		Processed: l.ProcessedDir(),
		Models:    make(map[string]string, len(ModelKinds)),
	}

	dirs := []string{p.Raw, p.Processed}
	for _, kind := range ModelKinds {
		p.Models[kind] = l.ModelDir(kind)
		dirs = append(dirs, p.Models[kind])
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Paths{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	log.Info().
		Str("raw", p.Raw).
		Str("processed", p.Processed).
		Str("models", l.ModelsDir).
		Msg("Dataset directories ready")
	return p, nil
}
