// Package id generates and validates archive analysis identifiers.
package id

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	// Donor ids are submitter-chosen; keep them safe as a directory name.
	donorPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)
)

// New returns a fresh analysis id for a merged record.
func New() string {
	return uuid.NewString()
}

// Normalize trims and lower-cases an analysis id.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsAnalysisID checks if a string is a valid analysis id (a UUID).
func IsAnalysisID(s string) bool {
	return uuidPattern.MatchString(Normalize(s))
}

// Validate returns an error unless s is a valid analysis id.
func Validate(s string) error {
	if !IsAnalysisID(s) {
		return fmt.Errorf("invalid analysis id: %q", s)
	}
	return nil
}

// ValidateDonor returns an error unless s can name a donor directory.
func ValidateDonor(s string) error {
	if !donorPattern.MatchString(s) || strings.Contains(s, "..") {
		return fmt.Errorf("invalid donor id: %q", s)
	}
	return nil
}
