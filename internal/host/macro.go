package host

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/emrlift/emrlift/internal/cluster"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
)

// Progress receives human readable steps while a macro runs. It may be nil.
type Progress func(step string)

// Macro is an action run against a cluster the host already manages.
type Macro interface {
	Run(ctx context.Context, progress Progress) (map[string]any, error)
}

// ScaleConfig is the scale macro's form.
type ScaleConfig struct {
	CoreTarget        int32 `yaml:"core_group_target_instances" json:"coreGroupTargetInstances"`
	TaskTarget        int32 `yaml:"task_group_target_instances" json:"taskGroupTargetInstances"`
	WaitForCompletion bool  `yaml:"wait_for_completion" json:"waitForCompletion"`
}

// NewMacro builds the named macro ("scale" or "info") against target, the
// host's cluster id. raw is the macro form.
func NewMacro(name, target string, raw map[string]any, plugin config.PluginConfig, deps Deps) (Macro, error) {
	switch name {
	case "scale":
		var cfg ScaleConfig
		if err := decodeForm(raw, &cfg); err != nil {
			return nil, errdefs.Configf("macro", "%v", err)
		}
		return NewScaleMacro(target, cfg, plugin, deps), nil
	case "info":
		return NewInfoMacro(target, plugin, deps), nil
	default:
		return nil, errdefs.Configf("macro", "unknown macro %q", name)
	}
}

func decodeForm(raw map[string]any, out any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encoding macro config: %w", err)
	}
	return yaml.Unmarshal(data, out)
}

type macroBase struct {
	target string
	plugin config.PluginConfig
	deps   Deps
}

type resolvedTarget struct {
	svc    cluster.Services
	handle cluster.Handle
	cfg    *config.ClusterConfig
}

// resolve loads the target's record, connects and waits for the cluster to
// be running.
func (m *macroBase) resolve(ctx context.Context, progress Progress) (*resolvedTarget, error) {
	rec, err := m.deps.Records.Get(m.target)
	if err != nil {
		return nil, err
	}
	data, err := DataFromMap(rec.Data)
	if err != nil {
		return nil, err
	}
	cc, err := decodeConfig(rec.Config)
	if err != nil {
		return nil, err
	}

	svc, err := m.deps.Connect(ctx, cc)
	if err != nil {
		return nil, err
	}

	progress(fmt.Sprintf("waiting for cluster %s to be running", data.EMRClusterID))
	if _, err := cluster.WaitForRunning(ctx, svc.EMR, data.EMRClusterID, svc.Wait, svc.Logger); err != nil {
		return nil, err
	}
	return &resolvedTarget{svc: svc, handle: data.Handle(), cfg: cc}, nil
}

func orNoop(p Progress) Progress {
	if p == nil {
		return func(string) {}
	}
	return p
}

// ScaleMacro resizes the core and task groups of a managed cluster.
type ScaleMacro struct {
	macroBase
	cfg ScaleConfig
}

// NewScaleMacro creates a ScaleMacro.
func NewScaleMacro(target string, cfg ScaleConfig, plugin config.PluginConfig, deps Deps) *ScaleMacro {
	return &ScaleMacro{macroBase: macroBase{target: target, plugin: plugin, deps: deps}, cfg: cfg}
}

func (m *ScaleMacro) Run(ctx context.Context, progress Progress) (map[string]any, error) {
	progress = orNoop(progress)
	t, err := m.resolve(ctx, progress)
	if err != nil {
		return nil, err
	}

	progress(fmt.Sprintf("scaling to core=%d task=%d", m.cfg.CoreTarget, m.cfg.TaskTarget))
	res, err := cluster.NewScaler(t.svc).Scale(ctx, t.handle, cluster.ScaleRequest{
		Core:             m.cfg.CoreTarget,
		Task:             m.cfg.TaskTarget,
		CoreInstanceType: t.cfg.Core.InstanceType,
		TaskInstanceType: t.cfg.Task.InstanceType,
		Wait:             m.cfg.WaitForCompletion,
	})
	if err != nil {
		if res != nil && len(res.Changes) > 0 {
			// Part of the resize went through; report it with the error.
			return map[string]any{"status": "Failed", "changes": res.Changes}, err
		}
		return nil, err
	}

	out := map[string]any{"status": "Done", "changes": res.Changes}
	if res.Groups != nil {
		out["instanceGroups"] = res.Groups
	}
	progress("done")
	return out, nil
}

// InfoMacro reports the master, workers and instance groups of a managed
// cluster.
type InfoMacro struct {
	macroBase
}

// NewInfoMacro creates an InfoMacro.
func NewInfoMacro(target string, plugin config.PluginConfig, deps Deps) *InfoMacro {
	return &InfoMacro{macroBase{target: target, plugin: plugin, deps: deps}}
}

func (m *InfoMacro) Run(ctx context.Context, progress Progress) (map[string]any, error) {
	progress = orNoop(progress)
	t, err := m.resolve(ctx, progress)
	if err != nil {
		return nil, err
	}

	progress("retrieving instances")
	info, err := cluster.NewInspector(t.svc).Info(ctx, t.handle)
	if err != nil {
		return nil, err
	}
	return InfoReport(info), nil
}

// InfoReport flattens a cluster report into the macro result shape.
func InfoReport(info *cluster.Info) map[string]any {
	var master map[string]any
	if info.Master != nil {
		master = map[string]any{"privateIpAddress": info.Master.PrivateIPAddress}
	}

	workers := make([]map[string]any, 0, len(info.Workers))
	for _, w := range info.Workers {
		workers = append(workers, map[string]any{"privateIpAddress": w.PrivateIPAddress})
	}

	groups := make([]map[string]any, 0, len(info.Groups))
	for _, g := range info.Groups {
		groups = append(groups, map[string]any{
			"instanceGroupId":      g.ID,
			"runningInstanceCount": g.Running,
			"instanceType":         g.InstanceType,
			"instanceGroupType":    string(g.Role),
			"status":               string(g.State),
		})
	}

	return map[string]any{
		"clusterId":      info.ClusterID,
		"name":           info.Name,
		"state":          info.State,
		"masterInstance": master,
		"slaveInstances": workers,
		"instanceGroups": groups,
	}
}
