// Package model loads the local custom-node model document. The document
// is sent to the server verbatim; loading only confirms it is well-formed
// JSON with an object at the top level and surfaces kind names for logging.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// DefaultPath is the conventional model filename next to the binary
const DefaultPath = "model.json"

// FileError reports a model file that could not be read
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("model file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// FormatError reports a model file that is not well-formed JSON
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("model file %s is not valid JSON: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Document is a parsed-but-opaque model file
type Document struct {
	path string
	raw  []byte
	top  map[string]json.RawMessage
}

// Load reads and parses the model document at path. It returns a FileError
// when the file cannot be read and a FormatError when it is not a JSON
// object; either way no network call has happened yet.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	return &Document{path: path, raw: raw, top: top}, nil
}

// Path returns the file the document was loaded from
func (d *Document) Path() string {
	return d.path
}

// Bytes returns the document exactly as read from disk
func (d *Document) Bytes() []byte {
	return d.raw
}

// KindNames returns the node kind names declared under custom_types,
// sorted. A document without a custom_types object yields nil; the server
// is the authority on the model schema, this exists for log output only.
func (d *Document) KindNames() []string {
	rawKinds, ok := d.top["custom_types"]
	if !ok {
		return nil
	}

	var kinds map[string]json.RawMessage
	if err := json.Unmarshal(rawKinds, &kinds); err != nil {
		return nil
	}

	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KindCount returns how many node kinds the document declares
func (d *Document) KindCount() int {
	return len(d.KindNames())
}
