package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestReportCounts(t *testing.T) {
	r := New("DO1234", nil)
	if !r.Empty() {
		t.Fatal("new report should be empty")
	}

	r.Add(KindDuplicateFile, "x.vcf.gz", "dropped duplicate %s", "x.vcf.gz")
	r.Add(KindAttributeConflict, "study", "sources disagree")
	r.Add(KindAttributeConflict, "center", "sources disagree")

	if r.Count(KindAttributeConflict) != 2 {
		t.Errorf("Count(conflict) = %d, want 2", r.Count(KindAttributeConflict))
	}
	if got := r.Filter(KindDuplicateFile); len(got) != 1 || got[0].Message != "dropped duplicate x.vcf.gz" {
		t.Errorf("Filter(duplicate) = %+v", got)
	}
}

func TestReportFormat(t *testing.T) {
	r := New("DO1", nil)
	if r.Format() != "" {
		t.Error("empty report should format to empty string")
	}
	r.Add(KindUnknownSuffix, "notes.txt", "unrecognized suffix")
	out := r.Format()
	if !strings.Contains(out, "1. [unknown_suffix] notes.txt: unrecognized suffix") {
		t.Errorf("unexpected format: %q", out)
	}
}

func TestReportLogsEntries(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	r := New("DO1", &log)

	r.Add(KindChecksumMismatch, "a.bam", "recorded abc, computed def")

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, `"kind":"checksum_mismatch"`) {
		t.Errorf("expected warn log with kind, got %q", out)
	}
}
