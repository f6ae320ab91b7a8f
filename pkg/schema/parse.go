package schema

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"sigs.k8s.io/yaml"
)

// ParseDocument parses a schema document from YAML or JSON bytes. Tables,
// fields, and views declared without an explicit id are assigned fresh
// UUIDs; documents that should diff cleanly across revisions ought to
// declare stable ids.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema document: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("schema document declares no tables")
	}
	assignIDs(&doc)
	return &doc, nil
}

// ParseFile reads and parses a schema document from disk.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema document: %w", err)
	}
	return ParseDocument(data)
}

func assignIDs(doc *Document) {
	for _, t := range doc.Tables {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		for _, f := range t.Fields {
			if f.ID == "" {
				f.ID = uuid.NewString()
			}
		}
		for _, v := range t.Views {
			if v.ID == "" {
				v.ID = uuid.NewString()
			}
		}
	}
}
