// Package checksum computes the MD5 digests the archive records for data
// files. Files are streamed in fixed-size chunks so multi-gigabyte BAMs
// never sit in memory.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ChunkSize is the read buffer size used when hashing.
const ChunkSize = 1 << 20

// Method is the checksum method name written to file entries.
const Method = "MD5"

// File returns the lowercase hex MD5 digest of the file at path.
// Open and read failures wrap the underlying *fs.PathError.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for checksum: %w", path, err)
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	return sum, nil
}

// Reader returns the lowercase hex MD5 digest of everything read from r.
func Reader(r io.Reader) (string, error) {
	hasher := md5.New()
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(struct{ io.Writer }{hasher}, struct{ io.Reader }{r}, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
