// Package modules maps changed paths to named modules. A module is a path
// prefix, defined in config or in the repository's .gitsubtrees file.
package modules

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/gcfg"

	"github.com/zjrosen/gitfold/internal/log"
)

// SubtreesFile is the conventional name of the subtree definitions file.
const SubtreesFile = ".gitsubtrees"

// Definition names a path prefix.
type Definition struct {
	Name string `mapstructure:"name" yaml:"name"`
	Path string `mapstructure:"path" yaml:"path"`
}

// Set is an immutable collection of module definitions.
type Set struct {
	defs        []Definition
	fingerprint string
}

// New validates and normalizes defs. Duplicate names keep the last
// definition.
func New(defs []Definition) (*Set, error) {
	byName := make(map[string]Definition, len(defs))
	for i, d := range defs {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return nil, fmt.Errorf("module %d: name is required", i)
		}
		p, err := normalize(d.Path)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", d.Name, err)
		}
		d.Path = p
		byName[d.Name] = d
	}

	s := &Set{defs: make([]Definition, 0, len(byName))}
	for _, d := range byName {
		s.defs = append(s.defs, d)
	}
	sort.Slice(s.defs, func(i, j int) bool { return s.defs[i].Name < s.defs[j].Name })

	h := sha256.New()
	for _, d := range s.defs {
		fmt.Fprintf(h, "%s=%s\n", d.Name, d.Path)
	}
	s.fingerprint = hex.EncodeToString(h.Sum(nil))[:16]
	return s, nil
}

func normalize(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("path is required")
	}
	p = path.Clean(strings.TrimPrefix(p, "./"))
	if p == "." || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q must be relative to the repository root", p)
	}
	return p, nil
}

// Definitions returns the definitions sorted by name.
func (s *Set) Definitions() []Definition {
	return append([]Definition(nil), s.defs...)
}

// Len returns the number of modules.
func (s *Set) Len() int { return len(s.defs) }

// Fingerprint identifies the definitions; cached classifications are only
// valid for the fingerprint they were computed with.
func (s *Set) Fingerprint() string { return s.fingerprint }

// Classify returns the names of modules touched by paths, sorted.
func (s *Set) Classify(paths []string) []string {
	var out []string
	for _, d := range s.defs {
		for _, p := range paths {
			if p == d.Path || strings.HasPrefix(p, d.Path+"/") {
				out = append(out, d.Name)
				break
			}
		}
	}
	return out
}

// subtreesConfig mirrors the git-config style .gitsubtrees file:
//
//	[subtree "lib"]
//		path = vendor/lib
//		url = https://example.com/lib.git
type subtreesConfig struct {
	Subtree map[string]*struct {
		Path     string
		URL      string
		Upstream string
		Origin   string
		Version  string
	}
}

// ParseSubtrees reads subtree definitions. A subtree without a path uses
// its name as the path.
func ParseSubtrees(r io.Reader) ([]Definition, error) {
	var cfg subtreesConfig
	if err := gcfg.FatalOnly(gcfg.ReadInto(&cfg, r)); err != nil {
		return nil, fmt.Errorf("parse %s: %w", SubtreesFile, err)
	}

	defs := make([]Definition, 0, len(cfg.Subtree))
	for name, st := range cfg.Subtree {
		p := name
		if st != nil && st.Path != "" {
			p = st.Path
		}
		defs = append(defs, Definition{Name: name, Path: p})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// LoadSubtrees reads the subtrees file at path. A missing file yields no
// definitions.
func LoadSubtrees(path string) ([]Definition, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is inside the repository
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	defs, err := ParseSubtrees(f)
	if err != nil {
		return nil, err
	}
	log.Debug(log.CatConfig, "loaded subtree modules", "path", path, "count", len(defs))
	return defs, nil
}

// Load combines configured definitions with those in the subtrees file.
// Configured definitions win on name clashes.
func Load(configured []Definition, subtreesPath string) (*Set, error) {
	var all []Definition
	if subtreesPath != "" {
		defs, err := LoadSubtrees(subtreesPath)
		if err != nil {
			return nil, err
		}
		all = append(all, defs...)
	}
	all = append(all, configured...)
	return New(all)
}
