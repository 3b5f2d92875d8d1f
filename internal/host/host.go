// Package host implements the contract the data-science platform drives:
// cluster lifecycles it starts and stops, and macros it runs against
// clusters it already manages.
package host

import (
	"context"
	"log/slog"
	"strings"

	"github.com/emrlift/emrlift/internal/cluster"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
	"github.com/emrlift/emrlift/internal/state"
)

// Kind selects a lifecycle implementation.
type Kind string

const (
	KindCreate Kind = "create"
	KindAttach Kind = "attach"
	KindCopy   Kind = "copy"
)

// ParseKind validates a lifecycle kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCreate, KindAttach, KindCopy:
		return k, nil
	default:
		return "", errdefs.Configf("type", "unknown cluster type %q (want create, attach or copy)", s)
	}
}

// Data is the plugin data the host persists for a started cluster. Stop
// receives it back.
type Data struct {
	EMRClusterID string `json:"emrClusterId" yaml:"emrClusterId"`
	Region       string `json:"region,omitempty" yaml:"region,omitempty"`
}

// Handle converts the data into a cluster handle.
func (d *Data) Handle() cluster.Handle {
	return cluster.Handle{ID: d.EMRClusterID, Region: d.Region}
}

// Map returns the data in the raw form stored in a state.Record.
func (d *Data) Map() map[string]any {
	m := map[string]any{"emrClusterId": d.EMRClusterID}
	if d.Region != "" {
		m["region"] = d.Region
	}
	return m
}

// DataFromMap reads the plugin data persisted by Map.
func DataFromMap(m map[string]any) (*Data, error) {
	id, _ := m["emrClusterId"].(string)
	if id == "" {
		return nil, errdefs.Configf("emrClusterId", "no EMR cluster id in the stored cluster data")
	}
	region, _ := m["region"].(string)
	return &Data{EMRClusterID: id, Region: region}, nil
}

// RecordStore reads the clusters the host manages.
type RecordStore interface {
	Get(id string) (*state.Record, error)
}

// Connector builds provider services for one cluster configuration.
type Connector func(ctx context.Context, cc *config.ClusterConfig) (cluster.Services, error)

// Deps are the collaborators every lifecycle and macro uses.
type Deps struct {
	Connect  Connector
	Records  RecordStore
	HomeUser string

	// Used when a cluster config leaves region or subnet empty.
	DefaultRegion string
	DefaultSubnet string

	Logger *slog.Logger
}

// ClusterName derives the EMR cluster name from the host's cluster id,
// prefixing it unless the id already carries the prefix.
func ClusterName(prefix, clusterID string) string {
	if strings.HasPrefix(clusterID, prefix) {
		return clusterID
	}
	return prefix + clusterID
}

func decodeConfig(raw map[string]any) (*config.ClusterConfig, error) {
	cc, err := config.DecodeClusterConfig(raw)
	if err != nil {
		return nil, errdefs.Configf("config", "%v", err)
	}
	if err := cc.ResolveSecrets(); err != nil {
		return nil, errdefs.Configf("config", "%v", err)
	}
	return cc, nil
}
