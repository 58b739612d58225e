package merge_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/gnosmerge/internal/analysis"
	"github.com/lherron/gnosmerge/internal/checksum"
	"github.com/lherron/gnosmerge/internal/donorlist"
	"github.com/lherron/gnosmerge/internal/filepatch"
	"github.com/lherron/gnosmerge/internal/logging"
	"github.com/lherron/gnosmerge/internal/merge"
	"github.com/lherron/gnosmerge/internal/report"
	"github.com/lherron/gnosmerge/internal/testutil"
	"github.com/lherron/gnosmerge/internal/upload"
)

const (
	mergedID = "99999999-8888-4777-8666-555555555555"
	snvVCF   = "sample.somatic.snv_mnv.vcf.gz"
	snvTBI   = "sample.somatic.snv_mnv.vcf.gz.tbi"
)

type fixture struct {
	tree    donorlist.Tree
	row     donorlist.Row
	engine  *merge.Engine
	uploads string
}

// newFixture lays out a donor with two downloaded sources. The first
// holds both SNV files, the second a stale copy of the VCF.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	table, _ := testWorkflow(t)

	root := t.TempDir()
	f := &fixture{
		tree:    donorlist.Tree{Root: filepath.Join(root, "work")},
		uploads: testutil.MkdirAll(t, root, "upload"),
		row: donorlist.Row{
			Donor:    "DO1",
			Workflow: "test",
			Sources: []donorlist.SourceRef{
				{Label: "SOURCE1", Repo: "dkfz", AnalysisID: idA},
				{Label: "SOURCE2", Repo: "ebi", AnalysisID: idB},
			},
		},
	}
	f.engine = &merge.Engine{
		Policies: table,
		Writer:   &upload.Writer{Root: f.uploads},
		NewID:    func() string { return mergedID },
	}

	dirA := f.tree.SourceDir("DO1", f.row.Sources[0])
	testutil.WriteFile(t, dirA, snvVCF, "original calls")
	testutil.WriteFile(t, dirA, snvTBI, "original index")
	testutil.WriteFile(t, dirA, "analysis.xml", testutil.AnalysisXML(testutil.AnalysisSpec{
		ID:         idA,
		ReadGroups: []string{"rg1"},
		Files: []testutil.FileSpec{
			{Name: snvVCF, Type: "vcf", Checksum: "recorded-vcf"},
			{Name: snvTBI, Type: "idx", Checksum: "recorded-tbi"},
		},
		Attributes: [][2]string{
			{"dcc_project_code", "PRAD-UK"},
			{"study", "A"},
			{"qc_metrics", `{"x":1}`},
		},
	}))

	dirB := f.tree.SourceDir("DO1", f.row.Sources[1])
	testutil.WriteFile(t, dirB, snvVCF, "stale calls")
	testutil.WriteFile(t, dirB, "analysis.xml", testutil.AnalysisXML(testutil.AnalysisSpec{
		ID:         idB,
		ReadGroups: []string{"rg2"},
		Files: []testutil.FileSpec{
			{Name: snvVCF, Type: "vcf", Checksum: "recorded-stale"},
		},
		Attributes: [][2]string{
			{"dcc_project_code", "PRAD-UK"},
			{"study", "B"},
			{"qc_metrics", `{"x":2}`},
		},
	}))
	testutil.WriteFile(t, dirB, "run.xml", `<?xml version="1.0"?><RUN_SET><RUN alias="r"/></RUN_SET>`)
	return f
}

func (f *fixture) job(t *testing.T) merge.Job {
	t.Helper()
	sources, err := merge.LoadSources(context.Background(), f.tree, f.row, nil)
	require.NoError(t, err)
	return merge.Job{
		Donor:       f.row.Donor,
		Workflow:    f.row.Workflow,
		Sources:     sources,
		OverrideDir: f.tree.OverrideDir(f.row),
	}
}

func TestRunWritesMergedRecord(t *testing.T) {
	f := newFixture(t)
	tl := logging.NewTestLogger(t)

	res, err := f.engine.Run(tl.Context(context.Background()), f.job(t))
	require.NoError(t, err)

	assert.Equal(t, mergedID, res.AnalysisID)
	assert.Equal(t, filepath.Join(f.uploads, mergedID), res.OutputDir)

	rec := res.Record
	assert.Equal(t, []string{snvVCF, snvTBI}, rec.Filenames())
	assert.Equal(t, "recorded-vcf", rec.DataBlock.Files[0].Checksum)
	assert.Equal(t, "recorded-tbi", rec.DataBlock.Files[1].Checksum)

	study, _ := rec.Attribute("study")
	assert.Equal(t, "SOURCE1: A SOURCE2: B", study)
	ids, _ := rec.Attribute("merged_analysis_ids")
	assert.Equal(t, idA+","+idB, ids)

	require.Len(t, res.Conflicts(), 1)
	assert.Equal(t, 1, res.Report.Count(report.KindAttributeConflict))
	assert.Equal(t, 1, res.Report.Count(report.KindDuplicateFile))
	assert.Equal(t, 1, res.Report.Count(report.KindOptionalMissing))
	assert.True(t, tl.Contains("merge complete"))

	written, err := os.ReadFile(filepath.Join(res.OutputDir, upload.AnalysisFile))
	require.NoError(t, err)
	doc, err := analysis.Parse(written, mergedID)
	require.NoError(t, err)
	assert.Equal(t, rec.Filenames(), doc.Record.Filenames())
	assert.NoError(t, doc.Record.Validate())

	// The primary has no run.xml, so none is written.
	_, err = os.Stat(filepath.Join(res.OutputDir, upload.RunFile))
	assert.True(t, os.IsNotExist(err))

	target, err := os.Readlink(filepath.Join(res.OutputDir, snvVCF))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.tree.SourceDir("DO1", f.row.Sources[0]), snvVCF), target)
}

func TestRunPrefersFixedFiles(t *testing.T) {
	f := newFixture(t)
	fixed := testutil.WriteFile(t, f.tree.OverrideDir(f.row), snvVCF, "corrected calls")
	want, err := checksum.File(fixed)
	require.NoError(t, err)

	job := f.job(t)
	job.DryRun = true
	res, err := f.engine.Run(context.Background(), job)
	require.NoError(t, err)

	rec := res.Record
	require.Equal(t, []string{snvVCF, snvTBI}, rec.Filenames())
	assert.Equal(t, want, rec.DataBlock.Files[0].Checksum)
	assert.NotEqual(t, "recorded-vcf", rec.DataBlock.Files[0].Checksum)
	assert.Equal(t, fixed, rec.DataBlock.Files[0].Path)
	assert.Equal(t, "recorded-tbi", rec.DataBlock.Files[1].Checksum)
	assert.Equal(t, []string{snvVCF}, res.Patched)
	assert.Equal(t, 2, res.Report.Count(report.KindDuplicateFile))

	assert.Empty(t, res.OutputDir)
	entries, err := os.ReadDir(f.uploads)
	require.NoError(t, err)
	assert.Empty(t, entries, "dry run must not write")
}

func TestRunUnmatchedMandatoryPattern(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.tree.SourceDir("DO1", f.row.Sources[0]), snvTBI)))

	res, err := f.engine.Run(context.Background(), f.job(t))
	require.ErrorIs(t, err, filepatch.ErrUnmatchedPattern)
	assert.True(t, strings.Contains(err.Error(), "snv_tbi"))

	// Entries gathered before the abort survive.
	require.NotNil(t, res)
	assert.Empty(t, res.AnalysisID)
	assert.Empty(t, res.OutputDir)
	assert.Equal(t, 1, res.Report.Count(report.KindAttributeConflict))
	assert.Equal(t, 1, res.Report.Count(report.KindDuplicateFile))
	assert.Len(t, res.Conflicts(), 1)

	entries, err := os.ReadDir(f.uploads)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunRefusesExistingOutput(t *testing.T) {
	f := newFixture(t)
	testutil.MkdirAll(t, f.uploads, mergedID)

	_, err := f.engine.Run(context.Background(), f.job(t))
	assert.ErrorIs(t, err, upload.ErrOutputExists)
}

func TestRunUnknownWorkflow(t *testing.T) {
	f := newFixture(t)
	job := f.job(t)
	job.Workflow = "nope"

	_, err := f.engine.Run(context.Background(), job)
	assert.ErrorContains(t, err, "unknown workflow")

	job.Workflow = "test"
	job.Sources = nil
	_, err = f.engine.Run(context.Background(), job)
	assert.ErrorIs(t, err, merge.ErrNoSources)
}

type stubFetcher struct {
	calls int
	body  string
}

func (s *stubFetcher) Fetch(ctx context.Context, repo, analysisID string) ([]byte, error) {
	s.calls++
	return []byte(s.body), nil
}

func TestLoadSourcesFetchesMissing(t *testing.T) {
	f := newFixture(t)
	idC := "22222222-3333-4444-8555-666666666666"
	f.row.Sources = append(f.row.Sources, donorlist.SourceRef{Label: "SOURCE3", Repo: "cghub", AnalysisID: idC})

	_, err := merge.LoadSources(context.Background(), f.tree, f.row, nil)
	require.ErrorIs(t, err, donorlist.ErrMissingSource)

	fetcher := &stubFetcher{body: testutil.ResultSetXML(idC, testutil.AnalysisXML(testutil.AnalysisSpec{ID: idC}))}
	sources, err := merge.LoadSources(context.Background(), f.tree, f.row, fetcher)
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, 1, fetcher.calls)

	assert.Equal(t, idA, sources[0].Record.ID)
	assert.Equal(t, "<RUN_SET><RUN alias=\"r\"/></RUN_SET>", sources[1].RunXML)
	assert.Equal(t, idC, sources[2].Record.ID)
	assert.Contains(t, sources[2].ExperimentXML, "EXPERIMENT_SET")
	assert.FileExists(t, filepath.Join(f.tree.SourceDir("DO1", f.row.Sources[2]), idC+".xml"))

	_, err = merge.LoadSources(context.Background(), f.tree, f.row, fetcher)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls, "saved metadata is reused")
}

func TestLoadSourcesDoesNotSaveUnusableMetadata(t *testing.T) {
	f := newFixture(t)
	idC := "22222222-3333-4444-8555-666666666666"
	ref := donorlist.SourceRef{Label: "SOURCE3", Repo: "cghub", AnalysisID: idC}
	f.row.Sources = append(f.row.Sources, ref)

	fetcher := &stubFetcher{body: "<ResultSet></ResultSet>"}
	_, err := merge.LoadSources(context.Background(), f.tree, f.row, fetcher)
	require.ErrorIs(t, err, analysis.ErrNoAnalysis)
	_, err = f.tree.FindMetadata("DO1", ref)
	assert.ErrorIs(t, err, donorlist.ErrMissingSource, "an empty ResultSet must not be cached")

	fetcher.body = testutil.ResultSetXML(idC, testutil.AnalysisXML(testutil.AnalysisSpec{ID: idC}))
	sources, err := merge.LoadSources(context.Background(), f.tree, f.row, fetcher)
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, 2, fetcher.calls)
}
