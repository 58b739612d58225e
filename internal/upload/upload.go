// Package upload writes a merged record into a fresh upload directory:
// the analysis document, companion run/experiment documents and a
// symlink to every referenced data file.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lherron/gnosmerge/internal/analysis"
	"github.com/lherron/gnosmerge/internal/id"
	"github.com/lherron/gnosmerge/internal/logging"
)

// ErrOutputExists is returned when the target directory already exists.
var ErrOutputExists = errors.New("output directory already exists")

const (
	AnalysisFile   = "analysis.xml"
	RunFile        = "run.xml"
	ExperimentFile = "experiment.xml"
)

type document struct {
	name string
	data []byte
}

// Writer creates upload directories under Root.
type Writer struct {
	Root string
}

// Options controls one write.
type Options struct {
	// AnalysisID names the output directory. It must be new.
	AnalysisID    string
	RunXML        string
	ExperimentXML string
}

// Result describes a written upload directory.
type Result struct {
	AnalysisID string   `json:"analysis_id"`
	Dir        string   `json:"dir"`
	Documents  []string `json:"documents"`
	Links      []string `json:"links"`
}

// Dir returns the upload directory of analysisID.
func (w *Writer) Dir(analysisID string) string {
	return filepath.Join(w.Root, analysisID)
}

// Write serializes rec into <Root>/<AnalysisID>/. The directory is
// created here and removed again if anything fails.
func (w *Writer) Write(ctx context.Context, rec *analysis.Record, opts Options) (res *Result, err error) {
	log := logging.FromContext(ctx)

	if err := id.Validate(opts.AnalysisID); err != nil {
		return nil, err
	}
	info, err := os.Stat(w.Root)
	if err != nil {
		return nil, fmt.Errorf("upload directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("upload directory %s is not a directory", w.Root)
	}

	data, err := analysis.Marshal(rec)
	if err != nil {
		return nil, err
	}

	dir := w.Dir(opts.AnalysisID)
	if err := os.Mkdir(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrOutputExists, dir)
		}
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				log.Error().Err(rmErr).Str("dir", dir).Msg("failed to remove partial upload directory")
			}
		}
	}()

	res = &Result{AnalysisID: opts.AnalysisID, Dir: dir}

	docs := []document{{AnalysisFile, data}}
	if opts.RunXML != "" {
		docs = append(docs, document{RunFile, analysis.MarshalCompanion(opts.RunXML)})
	}
	if opts.ExperimentXML != "" {
		docs = append(docs, document{ExperimentFile, analysis.MarshalCompanion(opts.ExperimentXML)})
	}
	for _, d := range docs {
		path := filepath.Join(dir, d.name)
		if err := os.WriteFile(path, d.data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		res.Documents = append(res.Documents, d.name)
	}

	for _, f := range rec.DataBlock.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("file %s has no location on disk", f.Filename)
		}
		target, err := filepath.Abs(f.Path)
		if err != nil {
			return nil, err
		}
		link := filepath.Join(dir, f.Filename)
		if err := os.Symlink(target, link); err != nil {
			return nil, fmt.Errorf("failed to link %s: %w", f.Filename, err)
		}
		res.Links = append(res.Links, f.Filename)
	}

	log.Info().
		Str("dir", dir).
		Int("files", len(res.Links)).
		Msg("wrote upload directory")
	return res, nil
}
