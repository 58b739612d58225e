// Package report accumulates the recoverable issues of one merge run:
// skipped or unclaimed files, optional outputs that were missing,
// checksum mismatches and attribute conflicts. Fatal problems are returned as errors instead.
package report

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Kind classifies a report entry.
type Kind string

const (
	KindUnknownSuffix     Kind = "unknown_suffix"
	KindDuplicateFile     Kind = "duplicate_file"
	KindUnmatchedFile     Kind = "unmatched_file"
	KindOptionalMissing   Kind = "optional_missing"
	KindUnreadableFile    Kind = "unreadable_file"
	KindChecksumMismatch  Kind = "checksum_mismatch"
	KindAttributeConflict Kind = "attribute_conflict"
	KindUnspecified       Kind = "unspecified_policy"
)

// Entry is one recoverable issue.
type Entry struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Subject string `json:"subject" yaml:"subject"`
	Message string `json:"message" yaml:"message"`
}

// Report collects the entries of one donor-level run.
type Report struct {
	Donor   string  `json:"donor" yaml:"donor"`
	Entries []Entry `json:"entries" yaml:"entries"`

	log *zerolog.Logger
}

// New creates a report for donor. Entries are also logged at warn level
// on log when it is non-nil.
func New(donor string, log *zerolog.Logger) *Report {
	return &Report{Donor: donor, Entries: []Entry{}, log: log}
}

// Add records an entry.
func (r *Report) Add(kind Kind, subject, format string, args ...any) {
	e := Entry{Kind: kind, Subject: subject, Message: fmt.Sprintf(format, args...)}
	r.Entries = append(r.Entries, e)
	if r.log != nil {
		r.log.Warn().
			Str("kind", string(kind)).
			Str("subject", subject).
			Msg(e.Message)
	}
}

// Count returns the number of entries of the given kind.
func (r *Report) Count(kind Kind) int {
	n := 0
	for _, e := range r.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Filter returns the entries of the given kind in insertion order.
func (r *Report) Filter(kind Kind) []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Empty reports whether nothing was recorded.
func (r *Report) Empty() bool {
	return len(r.Entries) == 0
}

// Format returns a human-readable listing of the entries.
func (r *Report) Format() string {
	if r.Empty() {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Donor %s: %d warning(s)\n", r.Donor, len(r.Entries))
	for i, e := range r.Entries {
		fmt.Fprintf(&sb, "%d. [%s] %s: %s\n", i+1, e.Kind, e.Subject, e.Message)
	}
	return sb.String()
}
