package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lherron/gnosmerge/internal/analysis"
	"github.com/lherron/gnosmerge/internal/donorlist"
	"github.com/lherron/gnosmerge/internal/logging"
	"github.com/lherron/gnosmerge/internal/repos"
)

// LoadSources reads every source of row from the download tree, in row
// order. Records missing from the tree are fetched and saved first when
// fetcher is non-nil; otherwise they are a fatal ErrMissingSource.
func LoadSources(ctx context.Context, tree donorlist.Tree, row donorlist.Row, fetcher repos.Fetcher) ([]Source, error) {
	log := logging.FromContext(ctx)

	sources := make([]Source, 0, len(row.Sources))
	for _, ref := range row.Sources {
		doc, path, err := readSource(tree, row.Donor, ref)
		if errors.Is(err, donorlist.ErrMissingSource) && fetcher != nil {
			log.Info().Str("source", ref.String()).Msg("source not downloaded, fetching metadata")
			doc, path, err = FetchSource(ctx, tree, row.Donor, ref, fetcher)
		}
		if err != nil {
			return nil, err
		}

		src := Source{
			Label:         ref.Label,
			Repo:          ref.Repo,
			AnalysisID:    ref.AnalysisID,
			Record:        doc.Record,
			Dir:           tree.SourceDir(row.Donor, ref),
			RunXML:        doc.RunXML,
			ExperimentXML: doc.ExperimentXML,
		}
		if src.RunXML == "" {
			src.RunXML, err = readCompanion(tree.Companion(row.Donor, ref, "run.xml"))
			if err != nil {
				return nil, err
			}
		}
		if src.ExperimentXML == "" {
			src.ExperimentXML, err = readCompanion(tree.Companion(row.Donor, ref, "experiment.xml"))
			if err != nil {
				return nil, err
			}
		}

		log.Debug().
			Str("source", ref.String()).
			Str("path", path).
			Int("attributes", len(doc.Record.Attributes)).
			Int("files", len(doc.Record.DataBlock.Files)).
			Msg("loaded source")
		sources = append(sources, src)
	}
	return sources, nil
}

// FetchSource fetches the metadata of ref and saves it into the download
// tree. The body is parsed before anything is saved, so a response that
// is not a usable analysis document never reaches the tree.
func FetchSource(ctx context.Context, tree donorlist.Tree, donor string, ref donorlist.SourceRef, fetcher repos.Fetcher) (*analysis.Document, string, error) {
	data, err := fetcher.Fetch(ctx, ref.Repo, ref.AnalysisID)
	if err != nil {
		return nil, "", err
	}
	doc, err := analysis.Parse(data, ref.AnalysisID)
	if err != nil {
		return nil, "", fmt.Errorf("source %s: fetched metadata: %w", ref, err)
	}
	path, err := tree.SaveMetadata(donor, ref, data)
	if err != nil {
		return nil, "", err
	}
	return doc, path, nil
}

func readSource(tree donorlist.Tree, donor string, ref donorlist.SourceRef) (*analysis.Document, string, error) {
	path, err := tree.FindMetadata(donor, ref)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := analysis.Parse(data, ref.AnalysisID)
	if err != nil {
		return nil, "", fmt.Errorf("source %s: %w", ref, err)
	}
	return doc, path, nil
}

// readCompanion returns a companion document without its XML declaration.
func readCompanion(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("<?xml")) {
		if end := bytes.Index(data, []byte("?>")); end >= 0 {
			data = data[end+2:]
		}
	}
	return strings.TrimSpace(string(data)), nil
}
