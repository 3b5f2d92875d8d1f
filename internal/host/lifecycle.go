package host

import (
	"context"

	"github.com/emrlift/emrlift/internal/cluster"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
)

// Lifecycle starts and stops one host-managed cluster.
//
// Start returns the data to persist even when it also returns an error, as
// long as a cluster was created: the host must keep the id to stop it.
type Lifecycle interface {
	Start(ctx context.Context) (*cluster.ConnectionMetadata, *Data, error)
	Stop(ctx context.Context, data *Data) error
}

// copyKeys describe the copy request itself and never override the template.
var copyKeys = []string{"source_cluster_id", "excluded_cluster_types"}

// NewLifecycle builds the lifecycle for kind. clusterID and clusterName are
// the host's identifiers; raw is the cluster config as the host stores it.
func NewLifecycle(kind Kind, clusterID, clusterName string, raw map[string]any, plugin config.PluginConfig, deps Deps) (Lifecycle, error) {
	cc, err := decodeConfig(raw)
	if err != nil {
		return nil, err
	}

	b := base{
		clusterID:   clusterID,
		clusterName: clusterName,
		cfg:         cc,
		plugin:      plugin,
		deps:        deps,
	}
	switch kind {
	case KindCreate:
		return &createLifecycle{b}, nil
	case KindAttach:
		return &attachLifecycle{b}, nil
	case KindCopy:
		return &copyLifecycle{base: b, raw: raw}, nil
	default:
		return nil, errdefs.Configf("type", "unknown cluster type %q", kind)
	}
}

type base struct {
	clusterID   string
	clusterName string
	cfg         *config.ClusterConfig
	plugin      config.PluginConfig
	deps        Deps
}

func (b *base) emrName() string {
	return ClusterName(b.plugin.NamePrefix, b.clusterID)
}

func dataFor(h cluster.Handle) *Data {
	if h.ID == "" {
		return nil
	}
	return &Data{EMRClusterID: h.ID, Region: h.Region}
}

func (b *base) terminate(ctx context.Context, data *Data) error {
	if data == nil || data.EMRClusterID == "" {
		b.deps.Logger.Info("no EMR cluster recorded, nothing to stop", "cluster", b.clusterID)
		return nil
	}
	svc, err := b.deps.Connect(ctx, b.cfg)
	if err != nil {
		return err
	}
	return cluster.NewTerminator(svc).Terminate(ctx, data.Handle())
}

type createLifecycle struct {
	base
}

func (l *createLifecycle) Start(ctx context.Context) (*cluster.ConnectionMetadata, *Data, error) {
	spec, err := config.NewBuilder(*l.cfg).
		Named(l.emrName()).
		WithDefaults(l.deps.DefaultRegion, l.deps.DefaultSubnet).
		Build()
	if err != nil {
		return nil, nil, err
	}

	svc, err := l.deps.Connect(ctx, l.cfg)
	if err != nil {
		return nil, nil, err
	}

	l.deps.Logger.Info("starting cluster", "cluster", l.clusterID, "display_name", l.clusterName, "emr_name", spec.Name)
	meta, h, err := cluster.NewProvisioner(svc, l.deps.HomeUser).Provision(ctx, spec)
	return meta, dataFor(h), err
}

func (l *createLifecycle) Stop(ctx context.Context, data *Data) error {
	return l.terminate(ctx, data)
}

type attachLifecycle struct {
	base
}

func (l *attachLifecycle) Start(ctx context.Context) (*cluster.ConnectionMetadata, *Data, error) {
	if l.cfg.EMRClusterID == "" {
		return nil, nil, errdefs.Configf("emr_cluster_id", "cluster id is required to attach")
	}
	svc, err := l.deps.Connect(ctx, l.cfg)
	if err != nil {
		return nil, nil, err
	}

	meta, h, err := cluster.NewAttacher(svc, l.deps.HomeUser).Attach(ctx, l.cfg.EMRClusterID)
	return meta, dataFor(h), err
}

// Stop detaches. The cluster belongs to someone else and keeps running.
func (l *attachLifecycle) Stop(_ context.Context, data *Data) error {
	id := ""
	if data != nil {
		id = data.EMRClusterID
	}
	l.deps.Logger.Info("detaching, nothing to do", "cluster", l.clusterID, "emr_cluster", id)
	return nil
}

type copyLifecycle struct {
	base
	raw map[string]any
}

func (l *copyLifecycle) Start(ctx context.Context) (*cluster.ConnectionMetadata, *Data, error) {
	source := l.cfg.SourceClusterID
	if source == "" {
		return nil, nil, errdefs.Configf("source_cluster_id", "a source cluster is required to copy")
	}

	excluded := append([]string(nil), l.plugin.ExcludedClusterTypes...)
	excluded = append(excluded, config.SplitList(l.cfg.ExcludedClusterTypes)...)

	svc, err := l.deps.Connect(ctx, l.cfg)
	if err != nil {
		return nil, nil, err
	}

	copier := cluster.NewCopier(l.deps.Records, cluster.NewProvisioner(svc, l.deps.HomeUser), excluded, l.deps.Logger)
	meta, h, err := copier.Copy(ctx, cluster.CopyRequest{
		SourceID:      source,
		Name:          l.emrName(),
		Overrides:     overrides(l.raw),
		DefaultRegion: l.deps.DefaultRegion,
		DefaultSubnet: l.deps.DefaultSubnet,
	})
	return meta, dataFor(h), err
}

func (l *copyLifecycle) Stop(ctx context.Context, data *Data) error {
	return l.terminate(ctx, data)
}

// overrides keeps the keys of raw that carry a value. Host forms submit
// every field, so blanks mean "inherit from the template".
func overrides(raw map[string]any) map[string]any {
	out := cluster.PruneBlank(raw)
	for _, k := range copyKeys {
		delete(out, k)
	}
	return out
}
