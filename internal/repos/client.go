package repos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lherron/gnosmerge/internal/logging"
)

// DefaultTimeout bounds one metadata request.
const DefaultTimeout = 30 * time.Second

// MetadataPath is appended to a repository base URL, followed by the id.
const MetadataPath = "cghub/metadata/analysisFull/"

// ErrFetch marks a failed metadata fetch.
var ErrFetch = errors.New("metadata fetch failed")

// FetchError describes a failed metadata fetch.
type FetchError struct {
	Repo       string
	AnalysisID string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s from %s: HTTP %d", e.AnalysisID, e.Repo, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s from %s: %v", e.AnalysisID, e.Repo, e.Err)
}

// Is implements errors.Is support
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves the raw metadata document of an analysis.
type Fetcher interface {
	Fetch(ctx context.Context, repo, analysisID string) ([]byte, error)
}

// Client fetches metadata over HTTP. Requests are not retried.
type Client struct {
	table *Table
	http  *http.Client
}

// NewClient creates a client resolving repositories through table.
func NewClient(table *Table, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		table: table,
		http:  &http.Client{Timeout: timeout},
	}
}

// MetadataURL returns the metadata URL of analysisID in repo.
func (c *Client) MetadataURL(repo, analysisID string) (string, error) {
	base, err := c.table.URL(repo)
	if err != nil {
		return "", err
	}
	return base + MetadataPath + analysisID, nil
}

// Fetch performs a GET of the analysis metadata document.
func (c *Client) Fetch(ctx context.Context, repo, analysisID string) ([]byte, error) {
	url, err := c.MetadataURL(repo, analysisID)
	if err != nil {
		return nil, &FetchError{Repo: repo, AnalysisID: analysisID, Err: err}
	}

	log := logging.FromContext(ctx)
	log.Debug().Str("url", url).Msg("fetching metadata")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Repo: repo, AnalysisID: analysisID, Err: err}
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Repo: repo, AnalysisID: analysisID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Repo: repo, AnalysisID: analysisID, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Repo: repo, AnalysisID: analysisID, Err: err}
	}

	log.Info().
		Str("repo", repo).
		Str("analysis_id", analysisID).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("fetched metadata")
	return body, nil
}
