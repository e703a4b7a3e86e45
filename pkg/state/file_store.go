package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Format selects the FileStore encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FileStore keeps one document per Ref under Dir, named after the ref
// identifier with the format extension.
type FileStore struct {
	Dir    string
	Format Format

	mu sync.Mutex
}

type fileDocument struct {
	Meta Meta           `json:"meta" yaml:"meta"`
	Data map[string]any `json:"data" yaml:"data"`
}

// NewFileStore returns a store rooted at dir. An empty format means YAML.
func NewFileStore(dir string, format Format) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("state: file store directory is required")
	}
	switch format {
	case "":
		format = FormatYAML
	case FormatYAML, FormatJSON:
	default:
		return nil, fmt.Errorf("state: unsupported file format %q", format)
	}
	return &FileStore{Dir: filepath.Clean(dir), Format: format}, nil
}

// Path returns the file backing ref.
func (s *FileStore) Path(ref Ref) (string, error) {
	key, err := ref.Identifier()
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, filepath.FromSlash(key)+"."+string(s.format())), nil
}

func (s *FileStore) format() Format {
	if s.Format == "" {
		return FormatYAML
	}
	return s.Format
}

func (s *FileStore) Load(_ context.Context, ref Ref) (map[string]any, Meta, bool, error) {
	path, err := s.Path(ref)
	if err != nil {
		return nil, Meta{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok, err := s.read(path)
	if err != nil || !ok {
		return nil, Meta{}, ok, err
	}
	return doc.Data, doc.Meta, true, nil
}

func (s *FileStore) Save(_ context.Context, ref Ref, data map[string]any, meta Meta) (Meta, error) {
	path, err := s.Path(ref)
	if err != nil {
		return Meta{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok, err := s.read(path)
	if err != nil {
		return Meta{}, err
	}
	if ok {
		if err := CheckETag(meta.ETag, current.Meta.ETag); err != nil {
			return Meta{}, err
		}
	}

	saved, err := stamp(meta, data)
	if err != nil {
		return Meta{}, err
	}
	if data == nil {
		data = map[string]any{}
	}
	encoded, err := s.encode(fileDocument{Meta: saved, Data: data})
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode %s: %w", path, err)
	}
	if err := writeFileAtomic(path, encoded); err != nil {
		return Meta{}, err
	}
	return cloneMeta(saved), nil
}

func (s *FileStore) read(path string) (fileDocument, bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileDocument{}, false, nil
	}
	if err != nil {
		return fileDocument{}, false, fmt.Errorf("state: read %s: %w", path, err)
	}
	var doc fileDocument
	if err := s.decode(raw, &doc); err != nil {
		return fileDocument{}, false, fmt.Errorf("state: decode %s: %w", path, err)
	}
	if doc.Data == nil {
		doc.Data = map[string]any{}
	}
	return doc, true, nil
}

func (s *FileStore) encode(doc fileDocument) ([]byte, error) {
	if s.format() == FormatJSON {
		return json.MarshalIndent(doc, "", "  ")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *FileStore) decode(raw []byte, doc *fileDocument) error {
	if s.format() == FormatJSON {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		return dec.Decode(doc)
	}
	return yaml.Unmarshal(raw, doc)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("state: create %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".stored-*")
	if err != nil {
		return fmt.Errorf("state: write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("state: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("state: write %s: %w", path, err)
	}
	return nil
}
