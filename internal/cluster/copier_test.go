package cluster

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	"github.com/emrlift/emrlift/internal/errdefs"
	"github.com/emrlift/emrlift/internal/logging"
	"github.com/emrlift/emrlift/internal/state"
)

func newRecordStore(t *testing.T, records ...*state.Record) *state.Store {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "clusters.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if err := store.Put(r); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func templateRecord(t *testing.T, id, kind string) *state.Record {
	t.Helper()
	cc := baseClusterConfig()
	cc.Tags = nil
	cc.EMRClusterID = "j-OLD"
	raw, err := cc.ToMap()
	if err != nil {
		t.Fatal(err)
	}
	return &state.Record{ID: id, Name: id, Type: kind, Config: raw}
}

func TestCopier_Merge(t *testing.T) {
	store := newRecordStore(t, templateRecord(t, "analytics", "create"))
	c := NewCopier(store, nil, []string{"attach"}, logging.Discard())

	cc, err := c.Merge("analytics", map[string]any{
		"core":       map[string]any{"instance_count": 5, "instance_type": ""},
		"master":     map[string]any{"instance_type": ""},
		"release":    "7.1.0",
		"nodes_role": "",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cc.Core.InstanceCount != 5 {
		t.Errorf("core count = %d, want 5", cc.Core.InstanceCount)
	}
	if cc.Core.InstanceType != "m5.2xlarge" {
		t.Errorf("nested keys not kept: core type = %q", cc.Core.InstanceType)
	}
	if cc.Release != "7.1.0" || cc.Master.InstanceType != "m5.xlarge" {
		t.Errorf("merge result: release=%q master=%q", cc.Release, cc.Master.InstanceType)
	}
	if cc.NodesRole != "EMR_EC2_DefaultRole" || cc.ServiceRole != "EMR_DefaultRole" {
		t.Errorf("roles not inherited: nodes=%q service=%q", cc.NodesRole, cc.ServiceRole)
	}
	if cc.EMRClusterID != "" {
		t.Errorf("attach key inherited: %q", cc.EMRClusterID)
	}

	rec, _ := store.Get("analytics")
	if core := rec.Config["core"].(map[string]any); core["instance_count"] != 2 {
		t.Errorf("template modified: %v", core)
	}
}

func TestCopier_MergeInheritsTemplate(t *testing.T) {
	store := newRecordStore(t, templateRecord(t, "analytics", "create"))
	c := NewCopier(store, nil, nil, logging.Discard())

	cc, err := c.Merge("analytics", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := baseClusterConfig()
	if cc.Release != want.Release || cc.Master.InstanceType != want.Master.InstanceType ||
		cc.Core.InstanceType != want.Core.InstanceType || cc.Core.InstanceCount != want.Core.InstanceCount {
		t.Errorf("template not inherited: %+v", cc)
	}
}

func TestPruneBlank(t *testing.T) {
	got := PruneBlank(map[string]any{
		"release": "7.0.0",
		"logs":    "",
		"tags":    []any{},
		"master":  map[string]any{"instance_type": ""},
		"core":    map[string]any{"instance_type": "", "instance_count": 0},
		"task":    nil,
	})
	if len(got) != 2 || got["release"] != "7.0.0" {
		t.Fatalf("PruneBlank = %v", got)
	}
	core := got["core"].(map[string]any)
	if _, ok := core["instance_type"]; ok || core["instance_count"] != 0 {
		t.Errorf("core = %v", core)
	}
}

func TestCopier_Errors(t *testing.T) {
	store := newRecordStore(t,
		templateRecord(t, "attached", "attach"),
		&state.Record{ID: "empty", Name: "empty", Type: "create"},
	)
	c := NewCopier(store, nil, []string{"attach"}, logging.Discard())

	if _, err := c.Merge("missing", nil); !errdefs.IsNotFound(err) {
		t.Errorf("missing: expected NotFoundError, got %v", err)
	}
	if _, err := c.Merge("attached", nil); !errdefs.IsPolicy(err) {
		t.Errorf("excluded type: expected PolicyError, got %v", err)
	}
	if _, err := c.Merge("empty", nil); !errdefs.IsPolicy(err) {
		t.Errorf("empty config: expected PolicyError, got %v", err)
	}
}

func TestCopier_Copy(t *testing.T) {
	f := newFixture()
	store := newRecordStore(t, templateRecord(t, "analytics", "create"))
	c := NewCopier(store, NewProvisioner(f.svc, ""), nil, logging.Discard())

	meta, h, err := c.Copy(context.Background(), CopyRequest{
		SourceID:      "analytics",
		Name:          "dss-analytics-copy",
		Overrides:     map[string]any{"core": map[string]any{"instance_count": 5}},
		DefaultRegion: "us-east-1",
		DefaultSubnet: "subnet-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.ID != "j-1" || meta == nil {
		t.Fatalf("handle=%+v meta=%v", h, meta)
	}

	req := f.emr.RunInputs[0]
	if aws.ToString(req.Name) != "dss-analytics-copy" {
		t.Errorf("name = %q", aws.ToString(req.Name))
	}
	if aws.ToString(req.ReleaseLabel) != "emr-6.15.0" {
		t.Errorf("release = %q", aws.ToString(req.ReleaseLabel))
	}
	if aws.ToString(req.JobFlowRole) != "EMR_EC2_DefaultRole" {
		t.Errorf("nodes role = %q", aws.ToString(req.JobFlowRole))
	}
	for _, g := range req.Instances.InstanceGroups {
		switch g.InstanceRole {
		case types.InstanceRoleTypeCore:
			if aws.ToInt32(g.InstanceCount) != 5 || aws.ToString(g.InstanceType) != "m5.2xlarge" {
				t.Errorf("core = %d x %s", aws.ToInt32(g.InstanceCount), aws.ToString(g.InstanceType))
			}
		case types.InstanceRoleTypeMaster:
			if aws.ToString(g.InstanceType) != "m5.xlarge" {
				t.Errorf("master type = %q", aws.ToString(g.InstanceType))
			}
		}
	}
}
