package state

import (
	"path/filepath"
	"testing"

	"github.com/emrlift/emrlift/internal/errdefs"
)

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "clusters.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.List()) != 0 {
		t.Errorf("expected empty store, got %d records", len(s.List()))
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clusters.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	rec := &Record{
		ID:   "analytics",
		Name: "dss-analytics",
		Type: "create",
		Config: map[string]any{
			"release": "6.15.0",
			"core":    map[string]any{"instance_type": "m5.xlarge", "instance_count": 2},
		},
		Data: map[string]any{"emrClusterId": "j-1"},
	}
	if err := s.Put(rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.Get("analytics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != "create" || got.Data["emrClusterId"] != "j-1" {
		t.Errorf("unexpected record: %+v", got)
	}
	core, ok := got.Config["core"].(map[string]any)
	if !ok || core["instance_type"] != "m5.xlarge" {
		t.Errorf("nested config lost: %#v", got.Config["core"])
	}
}

func TestGetUnknown(t *testing.T) {
	s, _ := Open(filepath.Join(t.TempDir(), "c.yaml"))
	if _, err := s.Get("nope"); !errdefs.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDeleteAndList(t *testing.T) {
	s, _ := Open(filepath.Join(t.TempDir(), "c.yaml"))
	for _, id := range []string{"b", "a", "c"} {
		if err := s.Put(&Record{ID: id, Type: "attach"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("missing"); err != nil {
		t.Fatalf("deleting unknown id: %v", err)
	}

	list := s.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Errorf("unexpected list: %v", list)
	}
}

func TestPutRequiresID(t *testing.T) {
	s, _ := Open(filepath.Join(t.TempDir(), "c.yaml"))
	if err := s.Put(&Record{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}
