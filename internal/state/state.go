package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
)

const DefaultPath = "~/.emrlift/clusters.yaml"

// Record is what the host persists for one cluster: the configuration it was
// started with, the plugin data returned by start and the last connection
// metadata.
type Record struct {
	ID        string         `yaml:"id" json:"id"`
	Name      string         `yaml:"name" json:"name"`
	Type      string         `yaml:"type" json:"type"` // create, attach or copy
	Config    map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	Data      map[string]any `yaml:"data,omitempty" json:"data,omitempty"`
	Metadata  map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	UpdatedAt time.Time      `yaml:"updated_at" json:"updated_at"`
}

// Store keeps records in a single YAML file. It is not safe for concurrent
// use across processes; hold the lock package's file lock while mutating.
type Store struct {
	path    string
	Records map[string]*Record `yaml:"records"`
}

// Open reads the store at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	path = config.ExpandHome(path)

	s := &Store{path: path, Records: make(map[string]*Record)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing state %s: %w", path, err)
	}
	if s.Records == nil {
		s.Records = make(map[string]*Record)
	}
	for id, r := range s.Records {
		r.ID = id
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the record for id.
func (s *Store) Get(id string) (*Record, error) {
	r, ok := s.Records[id]
	if !ok {
		return nil, &errdefs.NotFoundError{Kind: "cluster record", ID: id}
	}
	return r, nil
}

// Put inserts or replaces a record and writes the store.
func (s *Store) Put(r *Record) error {
	if r.ID == "" {
		return fmt.Errorf("record without id")
	}
	r.UpdatedAt = time.Now().UTC()
	s.Records[r.ID] = r
	return s.Save()
}

// Delete removes a record and writes the store. Deleting an unknown id is
// not an error.
func (s *Store) Delete(id string) error {
	if _, ok := s.Records[id]; !ok {
		return nil
	}
	delete(s.Records, id)
	return s.Save()
}

// List returns the records sorted by id.
func (s *Store) List() []*Record {
	out := make([]*Record, 0, len(s.Records))
	for _, r := range s.Records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Save writes the store to disk.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return os.Rename(tmp, s.path)
}
