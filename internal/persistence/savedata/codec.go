package savedata

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed savedata.schema.json
var schemaJSON string

var ErrUnsupportedVersion = errors.New("unsupported save data version")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("savedata.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Validate checks raw file contents against the save data schema.
func Validate(b []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile save schema: %w", err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("save data json: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("save data schema: %w", err)
	}
	return nil
}

// Encode renders r as indented JSON. Map keys come out sorted, so equal
// records encode to equal bytes.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		r = NewRecord()
	}
	out := r.Clone()
	out.Version = CurrentVersion
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode save data: %w", err)
	}
	return append(b, '\n'), nil
}

func Decode(b []byte) (*Record, error) {
	if err := Validate(b); err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode save data: %w", err)
	}
	if r.Version == 0 {
		r.Version = 1
	}
	if r.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.Version)
	}
	r.Version = CurrentVersion
	r.ensureMaps()
	return &r, nil
}

func ReadFile(path string) (*Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// WriteFile encodes r to path, creating the containing directory. The write
// is a plain truncate-and-write.
func WriteFile(path string, r *Record) ([]byte, error) {
	b, err := Encode(r)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return nil, err
	}
	return b, nil
}

func Digest(r *Record) string {
	b, err := Encode(r)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
