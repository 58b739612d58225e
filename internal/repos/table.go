// Package repos maps archive repository short names to base URLs and
// fetches analysis metadata from them.
package repos

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed repos.yaml
var defaultRepos []byte

// Repo is one archive repository.
type Repo struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// Table is a bidirectional name/URL table.
type Table struct {
	Repos []Repo `yaml:"repos" json:"repos"`

	byName map[string]Repo
	byURL  map[string]Repo
}

// Parse decodes a YAML repository table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid repository table: %w", err)
	}
	t.byName = make(map[string]Repo, len(t.Repos))
	t.byURL = make(map[string]Repo, len(t.Repos))
	for i, r := range t.Repos {
		if r.Name == "" || r.URL == "" {
			return nil, fmt.Errorf("repository %d needs both name and url", i)
		}
		r.URL = canonicalURL(r.URL)
		t.Repos[i] = r
		if _, dup := t.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate repository name %s", r.Name)
		}
		if _, dup := t.byURL[r.URL]; dup {
			return nil, fmt.Errorf("duplicate repository url %s", r.URL)
		}
		t.byName[r.Name] = r
		t.byURL[r.URL] = r
	}
	return &t, nil
}

// Default returns the built-in repository table.
func Default() (*Table, error) {
	return Parse(defaultRepos)
}

// Load returns the table at path, or the built-in table when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read repository table: %w", err)
	}
	return Parse(data)
}

// URL returns the base URL of the named repository.
func (t *Table) URL(name string) (string, error) {
	r, ok := t.byName[name]
	if !ok {
		return "", fmt.Errorf("unknown repository %q (known: %s)", name, strings.Join(t.Names(), ", "))
	}
	return r.URL, nil
}

// Name returns the short name of the repository at url.
func (t *Table) Name(url string) (string, error) {
	r, ok := t.byURL[canonicalURL(url)]
	if !ok {
		return "", fmt.Errorf("unknown repository url %q", url)
	}
	return r.Name, nil
}

// Resolve accepts either a short name or a base URL and returns the repo.
func (t *Table) Resolve(nameOrURL string) (Repo, error) {
	if r, ok := t.byName[nameOrURL]; ok {
		return r, nil
	}
	if r, ok := t.byURL[canonicalURL(nameOrURL)]; ok {
		return r, nil
	}
	return Repo{}, fmt.Errorf("unknown repository %q", nameOrURL)
}

// Names returns the repository names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// canonicalURL gives every base URL exactly one trailing slash.
func canonicalURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/") + "/"
}
