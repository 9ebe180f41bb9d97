package trust

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
	"gopkg.in/yaml.v3"
)

var Logger = logger.GetLogger("trust")

// File is the layout of the allow-list file
type File struct {
	Categories []string `yaml:"categories"`
	Statements []string `yaml:"statements"`
}

// AllowList answers whether a category or statement is trusted. It is
// immutable after construction and safe for concurrent use.
type AllowList struct {
	categories map[string]struct{}
	statements map[string]struct{}
}

// New creates an allow-list from category names and statement texts
func New(categories, statements []string) *AllowList {
	a := &AllowList{
		categories: make(map[string]struct{}, len(categories)),
		statements: make(map[string]struct{}, len(statements)),
	}
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			a.categories[c] = struct{}{}
		}
	}
	for _, s := range statements {
		if s = strings.TrimSpace(s); s != "" {
			a.statements[s] = struct{}{}
		}
	}
	return a
}

// Load reads an allow-list file
func Load(path string) (*AllowList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust file: %w", err)
	}
	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	Logger.Infof("loaded %d trusted categories and %d trusted statements from %s",
		len(a.categories), len(a.statements), path)
	return a, nil
}

// Parse parses the YAML content of an allow-list file
func Parse(data []byte) (*AllowList, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse trust file: %w", err)
	}
	return New(f.Categories, f.Statements), nil
}

// WithCategories returns a copy of the list that also trusts the given categories
func (a *AllowList) WithCategories(names ...string) *AllowList {
	return New(append(a.Categories(), names...), a.Statements())
}

// IsTrustedCategory reports whether the category may be registered
func (a *AllowList) IsTrustedCategory(name string) bool {
	_, ok := a.categories[name]
	return ok
}

// IsTrustedStatement reports whether the statement may be prepared
func (a *AllowList) IsTrustedStatement(text string) bool {
	_, ok := a.statements[strings.TrimSpace(text)]
	return ok
}

// Categories returns the sorted trusted category names
func (a *AllowList) Categories() []string {
	return sortedKeys(a.categories)
}

// Statements returns the sorted trusted statement texts
func (a *AllowList) Statements() []string {
	return sortedKeys(a.statements)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
