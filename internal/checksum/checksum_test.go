package checksum

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileKnownDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := File(path)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if want := "0cc175b9c0f1b6a831c399e269772661"; got != want {
		t.Errorf("File() = %s, want %s", got, want)
	}
}

func TestFileDeterministicAndSensitive(t *testing.T) {
	dir := t.TempDir()
	content := []byte(strings.Repeat("ACGT", ChunkSize/2+17))
	path := filepath.Join(dir, "reads.bam")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	first, err := File(path)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	second, err := File(path)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if first != second {
		t.Errorf("checksum not deterministic: %s != %s", first, second)
	}

	content[len(content)-1] = 'N'
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	changed, err := File(path)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if changed == first {
		t.Error("changing one byte did not change the checksum")
	}
}

func TestReaderMatchesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.vcf.gz")
	if err := os.WriteFile(path, []byte("##fileformat=VCFv4.1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	fromReader, err := Reader(strings.NewReader("##fileformat=VCFv4.1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if fromFile != fromReader {
		t.Errorf("File() = %s, Reader() = %s", fromFile, fromReader)
	}
}

func TestFileMissing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "missing.bam"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}
