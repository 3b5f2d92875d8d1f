package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"dario.cat/mergo"

	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
	"github.com/emrlift/emrlift/internal/state"
)

// RecordSource looks up persisted cluster records.
type RecordSource interface {
	Get(id string) (*state.Record, error)
}

// CopyRequest names the template cluster and what to change.
type CopyRequest struct {
	SourceID  string
	Name      string
	Overrides map[string]any

	// Used when neither the template nor the overrides set them.
	DefaultRegion string
	DefaultSubnet string
}

// Copier provisions a new cluster from a stored cluster's configuration.
// Only configuration is inherited; no data is copied.
type Copier struct {
	records     RecordSource
	provisioner *Provisioner
	excluded    []string
	logger      *slog.Logger
}

// NewCopier creates a Copier refusing templates whose type is in excluded.
func NewCopier(records RecordSource, provisioner *Provisioner, excluded []string, logger *slog.Logger) *Copier {
	return &Copier{records: records, provisioner: provisioner, excluded: excluded, logger: logger}
}

// Merge returns the template config with overrides applied. Overrides win
// per key and nested sections merge key by key. Blank override values, at any
// depth, inherit from the template.
func (c *Copier) Merge(sourceID string, overrides map[string]any) (*config.ClusterConfig, error) {
	rec, err := c.records.Get(sourceID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(c.excluded, rec.Type) {
		return nil, &errdefs.PolicyError{Reason: fmt.Sprintf("cluster %s is of type %q, which cannot be copied", sourceID, rec.Type)}
	}
	if len(rec.Config) == 0 {
		return nil, &errdefs.PolicyError{Reason: fmt.Sprintf("cluster %s has no stored configuration to copy", sourceID)}
	}

	merged := cloneMap(rec.Config)
	// Attach and copy keys describe the source record, not the new cluster.
	for _, k := range []string{"emr_cluster_id", "source_cluster_id", "excluded_cluster_types"} {
		delete(merged, k)
	}
	if err := mergo.Merge(&merged, PruneBlank(overrides), mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging overrides into %s: %w", sourceID, err)
	}

	cc, err := config.DecodeClusterConfig(merged)
	if err != nil {
		return nil, errdefs.Configf("overrides", "%v", err)
	}
	if err := cc.ResolveSecrets(); err != nil {
		return nil, errdefs.Configf("overrides", "%v", err)
	}
	return cc, nil
}

// Copy merges the template with the overrides and provisions the result.
func (c *Copier) Copy(ctx context.Context, req CopyRequest) (*ConnectionMetadata, Handle, error) {
	cc, err := c.Merge(req.SourceID, req.Overrides)
	if err != nil {
		return nil, Handle{}, err
	}

	spec, err := config.NewBuilder(*cc).Named(req.Name).WithDefaults(req.DefaultRegion, req.DefaultSubnet).Build()
	if err != nil {
		return nil, Handle{}, err
	}

	c.logger.Info("copying cluster", "source", req.SourceID, "name", req.Name, "overrides", len(req.Overrides))
	return c.provisioner.Provision(ctx, spec)
}

// PruneBlank returns a deep copy of m without nil, empty-string and empty
// collection values. Sections left empty after pruning are dropped too.
func PruneBlank(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = PruneBlank(nested)
		} else {
			v = cloneValue(v)
		}
		if isBlank(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func isBlank(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
