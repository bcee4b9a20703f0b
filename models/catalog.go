package models

import (
	_ "embed"
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Entry describes a known model.
type Entry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Size        string `yaml:"size"`
}

// Catalog is the list of models offered for download.
type Catalog struct {
	Repo   string  `yaml:"repo"`
	Models []Entry `yaml:"models"`
}

// LoadCatalog parses a catalog document.
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	if c.Repo == "" {
		return nil, fmt.Errorf("catalog: missing repo")
	}
	for _, m := range c.Models {
		if err := ValidateID(m.ID); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	i := slices.IndexFunc(c.Models, func(m Entry) bool { return m.ID == id })
	if i < 0 {
		return Entry{}, false
	}
	return c.Models[i], true
}

// SizeBytes returns the catalog size estimate in bytes, or 0 if unknown.
func (e Entry) SizeBytes() int64 {
	n, err := humanize.ParseBytes(e.Size)
	if err != nil {
		return 0
	}
	return int64(n)
}
