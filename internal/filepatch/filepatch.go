// Package filepatch rebuilds the file block of a merged record from the
// files actually on disk. Locally fixed files in the override directory
// take precedence over originally downloaded ones.
package filepatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lherron/gnosmerge/internal/analysis"
	"github.com/lherron/gnosmerge/internal/checksum"
	"github.com/lherron/gnosmerge/internal/logging"
	"github.com/lherron/gnosmerge/internal/policy"
	"github.com/lherron/gnosmerge/internal/report"
)

// ErrUnmatchedPattern marks a mandatory file class with no file on disk.
var ErrUnmatchedPattern = errors.New("unmatched file pattern")

// UnmatchedError lists the mandatory file classes nothing matched.
type UnmatchedError struct {
	Owner   string
	Classes []string
}

func (e *UnmatchedError) Error() string {
	return fmt.Sprintf("analysis %s: no file matched mandatory class(es) %s", e.Owner, strings.Join(e.Classes, ", "))
}

// Is implements errors.Is support
func (e *UnmatchedError) Is(target error) bool {
	return target == ErrUnmatchedPattern
}

// Candidate is a file on disk matched to an expected file class.
type Candidate struct {
	Path     string
	Name     string
	Class    string
	Override bool
}

// Input describes one patch run.
type Input struct {
	// Owner identifies the record being patched in messages.
	Owner string
	// Patterns are the expected file classes, in priority order.
	Patterns []policy.FilePattern
	// OverrideDir holds fixed files. It may be empty or absent.
	OverrideDir string
	// OriginalDirs are the download directories searched after OverrideDir.
	OriginalDirs []string
	// Existing is the file list recorded by the source records.
	Existing []analysis.FileEntry
	// VerifyChecksums re-hashes unmodified originals and reports mismatches.
	VerifyChecksums bool
}

// Result is the outcome of a patch run.
type Result struct {
	Files      []analysis.FileEntry
	Candidates []Candidate
	// Patched lists filenames taken from the override directory.
	Patched []string
	// MissingOptional lists optional classes nothing matched.
	MissingOptional []string
}

// Match searches the override directory, then the original directories,
// assigning each file to the first remaining pattern it matches. A
// pattern is consumed by its first match. Files whose name was already
// matched are dropped and reported as duplicates.
func Match(ctx context.Context, in Input, rep *report.Report) ([]Candidate, []string, []string, error) {
	log := logging.FromContext(ctx)

	remaining := make([]policy.FilePattern, len(in.Patterns))
	copy(remaining, in.Patterns)

	type dir struct {
		path     string
		override bool
	}
	var dirs []dir
	if in.OverrideDir != "" {
		dirs = append(dirs, dir{in.OverrideDir, true})
	}
	for _, d := range in.OriginalDirs {
		dirs = append(dirs, dir{d, false})
	}

	var candidates []Candidate
	seen := make(map[string]string)

	for _, d := range dirs {
		names, err := listFiles(d.path)
		if err != nil {
			if d.override && errors.Is(err, os.ErrNotExist) {
				log.Debug().Str("dir", d.path).Msg("no override directory")
				continue
			}
			return nil, nil, nil, fmt.Errorf("failed to list %s: %w", d.path, err)
		}

		for _, name := range names {
			path := filepath.Join(d.path, name)
			if first, dup := seen[name]; dup {
				rep.Add(report.KindDuplicateFile, name,
					"analysis %s: dropped duplicate %s, keeping %s", in.Owner, path, first)
				continue
			}

			idx := -1
			for i := range remaining {
				if remaining[i].Match(name) {
					idx = i
					break
				}
			}
			if idx < 0 {
				log.Debug().Str("file", path).Msg("file matches no remaining pattern")
				continue
			}

			seen[name] = path
			candidates = append(candidates, Candidate{
				Path:     path,
				Name:     name,
				Class:    remaining[idx].Class,
				Override: d.override,
			})
			remaining = append(remaining[:idx], remaining[idx+1:]...)
		}
	}

	var missingMandatory, missingOptional []string
	for _, p := range remaining {
		if p.Optional {
			missingOptional = append(missingOptional, p.Class)
		} else {
			missingMandatory = append(missingMandatory, p.Class)
		}
	}
	return candidates, missingMandatory, missingOptional, nil
}

// Patch matches files on disk and rebuilds the file list. The returned
// list replaces the record's file block entirely.
func Patch(ctx context.Context, in Input, rep *report.Report) (*Result, error) {
	log := logging.FromContext(ctx)

	candidates, missing, optional, err := Match(ctx, in, rep)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &UnmatchedError{Owner: in.Owner, Classes: missing}
	}
	for _, class := range optional {
		rep.Add(report.KindOptionalMissing, class,
			"analysis %s: optional file class %s not found", in.Owner, class)
	}

	recorded := make(map[string]analysis.FileEntry, len(in.Existing))
	for _, f := range in.Existing {
		if _, ok := recorded[f.Filename]; !ok {
			recorded[f.Filename] = f
		}
	}

	res := &Result{Candidates: candidates, MissingOptional: optional}
	for _, c := range candidates {
		filetype, ok := analysis.FiletypeFor(c.Name)
		if !ok {
			rep.Add(report.KindUnknownSuffix, c.Name,
				"analysis %s: unrecognized file suffix, dropped %s", in.Owner, c.Path)
			continue
		}

		sum, err := resolveChecksum(c, recorded, in.VerifyChecksums, in.Owner, rep)
		if err != nil {
			if c.Override {
				return nil, err
			}
			rep.Add(report.KindUnreadableFile, c.Name, "analysis %s: %v", in.Owner, err)
			continue
		}
		if c.Override {
			res.Patched = append(res.Patched, c.Name)
			log.Info().Str("file", c.Name).Str("checksum", sum).Msg("using fixed file")
		}

		res.Files = append(res.Files, analysis.FileEntry{
			Filename:       c.Name,
			Filetype:       filetype,
			ChecksumMethod: analysis.ChecksumMethodMD5,
			Checksum:       sum,
			Path:           c.Path,
		})
	}

	reportUnclaimed(in, candidates, rep)
	return res, nil
}

// reportUnclaimed reports files the source records listed that no file
// class took. Candidates dropped later were already reported under their
// own kind.
func reportUnclaimed(in Input, candidates []Candidate, rep *report.Report) {
	claimed := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		claimed[c.Name] = true
	}
	for _, f := range in.Existing {
		if claimed[f.Filename] {
			continue
		}
		claimed[f.Filename] = true
		rep.Add(report.KindUnmatchedFile, f.Filename,
			"analysis %s: %s is listed by a source record but no expected file class took it; dropped", in.Owner, f.Filename)
	}
}

func resolveChecksum(c Candidate, recorded map[string]analysis.FileEntry, verify bool, owner string, rep *report.Report) (string, error) {
	if c.Override {
		return checksum.File(c.Path)
	}

	prev, ok := recorded[c.Name]
	if !ok || prev.Checksum == "" {
		return checksum.File(c.Path)
	}
	if !verify {
		return prev.Checksum, nil
	}

	actual, err := checksum.File(c.Path)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(actual, prev.Checksum) {
		rep.Add(report.KindChecksumMismatch, c.Name,
			"analysis %s: recorded checksum %s but file hashes to %s; keeping recorded value", owner, prev.Checksum, actual)
	}
	return prev.Checksum, nil
}

// listFiles returns the regular files and symlinks of dir in lexical order.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.Type().IsRegular() || e.Type()&os.ModeSymlink != 0 {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
