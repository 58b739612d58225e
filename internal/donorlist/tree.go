package donorlist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrMissingSource is returned when a source record has not been
// downloaded.
var ErrMissingSource = errors.New("source record not downloaded")

// OverrideDirName is the per-donor directory of locally fixed files. It
// holds one <workflow>/<primary_analysis_id> subdirectory per merge.
const OverrideDirName = "fixed_files"

// MetadataFile is the name of a downloaded analysis document.
const MetadataFile = "analysis.xml"

// companion documents share the directory but are not analysis records.
var companions = map[string]bool{"run.xml": true, "experiment.xml": true}

// Tree is the download tree <root>/<donor>/<label>/<analysis_id>/.
type Tree struct {
	Root string
}

// DonorDir returns the directory holding all of a donor's sources.
func (t Tree) DonorDir(donor string) string {
	return filepath.Join(t.Root, donor)
}

// SourceDir returns the download directory of one source record.
func (t Tree) SourceDir(donor string, ref SourceRef) string {
	return filepath.Join(t.Root, donor, ref.Label, ref.AnalysisID)
}

// OverrideDir returns the fixed-files directory of one merge:
// <root>/<donor>/fixed_files/<workflow>/<primary_analysis_id>.
func (t Tree) OverrideDir(row Row) string {
	return filepath.Join(t.Root, row.Donor, OverrideDirName, row.Workflow, row.Primary().AnalysisID)
}

// FindMetadata locates the analysis document of a source. It prefers
// <analysis_id>.xml, then analysis.xml, then the first other XML file
// below the source directory.
func (t Tree) FindMetadata(donor string, ref SourceRef) (string, error) {
	dir := t.SourceDir(donor, ref)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s (%s)", ErrMissingSource, ref, dir)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}

	for _, name := range []string{ref.AnalysisID + ".xml", MetadataFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.xml")
	if err != nil {
		return "", fmt.Errorf("failed to search %s: %w", dir, err)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if companions[filepath.Base(m)] {
			continue
		}
		return filepath.Join(dir, filepath.FromSlash(m)), nil
	}
	return "", fmt.Errorf("%w: no metadata document in %s", ErrMissingSource, dir)
}

// Companion returns the path of run.xml or experiment.xml next to the
// source's metadata, or "" when absent.
func (t Tree) Companion(donor string, ref SourceRef, name string) string {
	path := filepath.Join(t.SourceDir(donor, ref), name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// SaveMetadata stores a fetched document as <analysis_id>.xml, creating
// the source directory.
func (t Tree) SaveMetadata(donor string, ref SourceRef, data []byte) (string, error) {
	dir := t.SourceDir(donor, ref)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, ref.AnalysisID+".xml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
