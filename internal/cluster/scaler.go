package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
)

// ScaleRequest is the desired worker topology. The instance types are only
// needed when a role has no group yet and one must be added.
type ScaleRequest struct {
	Core             int32
	Task             int32
	CoreInstanceType string
	TaskInstanceType string
	Wait             bool
}

// GroupChange is one resize the scaler issued.
type GroupChange struct {
	GroupID string                  `json:"groupId,omitempty"`
	Role    types.InstanceGroupType `json:"role"`
	From    int32                   `json:"from"`
	To      int32                   `json:"to"`
	Added   bool                    `json:"added,omitempty"`
}

// ScaleResult reports what changed and, after a wait, the settled groups.
// When a call fails, Changes holds only what EMR accepted before it.
type ScaleResult struct {
	Changes []GroupChange        `json:"changes"`
	Groups  []InstanceGroupState `json:"instanceGroups,omitempty"`
}

// Scaler resizes the core and task groups of a running cluster.
type Scaler struct {
	emr    awsapi.EMRAPI
	wait   WaitPolicy
	logger *slog.Logger
}

// NewScaler creates a Scaler.
func NewScaler(svc Services) *Scaler {
	return &Scaler{emr: svc.EMR, wait: svc.Wait, logger: svc.Logger}
}

// Scale brings core and task groups to the requested counts. Only the
// requested instance count of each group is compared, so a group that exists
// with zero instances is modified rather than re-added. Every request is
// validated before the first call is made. Missing groups are added before
// existing ones are resized. Resizes are not idempotent and are never retried.
func (s *Scaler) Scale(ctx context.Context, h Handle, req ScaleRequest) (*ScaleResult, error) {
	if req.Core < 0 || req.Task < 0 {
		return nil, errdefs.Configf("instance_count", "negative counts requested (core %d, task %d)", req.Core, req.Task)
	}

	groups, err := listGroups(ctx, s.emr, h.ID)
	if err != nil {
		return nil, err
	}

	byRole := make(map[types.InstanceGroupType][]InstanceGroupState)
	for _, g := range groups {
		byRole[g.Role] = append(byRole[g.Role], g)
	}
	for _, role := range []types.InstanceGroupType{types.InstanceGroupTypeCore, types.InstanceGroupTypeTask} {
		if n := len(byRole[role]); n > 1 {
			return nil, errdefs.Configf(strings.ToLower(string(role)), "cluster %s has %d %s instance groups, only one per role is supported", h.ID, n, role)
		}
	}

	result := &ScaleResult{Changes: []GroupChange{}}
	var modify []types.InstanceGroupModifyConfig
	var add []types.InstanceGroupConfig
	var modified, added []GroupChange

	targets := []struct {
		role         types.InstanceGroupType
		instanceRole types.InstanceRoleType
		desired      int32
		instanceType string
	}{
		{types.InstanceGroupTypeCore, types.InstanceRoleTypeCore, req.Core, req.CoreInstanceType},
		{types.InstanceGroupTypeTask, types.InstanceRoleTypeTask, req.Task, req.TaskInstanceType},
	}
	for _, t := range targets {
		existing := byRole[t.role]
		if len(existing) == 1 {
			g := existing[0]
			if g.Requested == t.desired {
				continue
			}
			modify = append(modify, types.InstanceGroupModifyConfig{
				InstanceGroupId: aws.String(g.ID),
				InstanceCount:   aws.Int32(t.desired),
			})
			modified = append(modified, GroupChange{GroupID: g.ID, Role: t.role, From: g.Requested, To: t.desired})
			continue
		}

		if t.desired == 0 {
			continue
		}
		if t.instanceType == "" {
			field := strings.ToLower(string(t.role)) + ".instance_type"
			return nil, errdefs.Configf(field, "cluster %s has no %s group and the cluster config names no instance type to add one", h.ID, t.role)
		}
		name := strings.ToUpper(string(t.role[:1])) + strings.ToLower(string(t.role[1:]))
		cfg, err := InstanceGroupConfig(name, t.instanceRole, config.GroupSpec{InstanceType: t.instanceType, Count: t.desired}, true)
		if err != nil {
			return nil, err
		}
		add = append(add, cfg)
		added = append(added, GroupChange{Role: t.role, To: t.desired, Added: true})
	}

	if len(add) > 0 {
		s.logger.Info("adding instance groups", "cluster", h.ID, "groups", len(add))
		out, err := s.emr.AddInstanceGroups(ctx, &emr.AddInstanceGroupsInput{
			JobFlowId:      aws.String(h.ID),
			InstanceGroups: add,
		})
		if err != nil {
			return result, errdefs.Provider("AddInstanceGroups", h.ID, err)
		}
		for i := range added {
			if i < len(out.InstanceGroupIds) {
				added[i].GroupID = out.InstanceGroupIds[i]
			}
		}
		result.Changes = append(result.Changes, added...)
	}

	if len(modify) > 0 {
		s.logger.Info("resizing instance groups", "cluster", h.ID, "groups", len(modify))
		_, err := s.emr.ModifyInstanceGroups(ctx, &emr.ModifyInstanceGroupsInput{
			ClusterId:      aws.String(h.ID),
			InstanceGroups: modify,
		})
		if err != nil {
			return result, errdefs.Provider("ModifyInstanceGroups", h.ID, err)
		}
		result.Changes = append(result.Changes, modified...)
	}

	if len(result.Changes) == 0 {
		s.logger.Info("instance groups already at requested size", "cluster", h.ID, "core", req.Core, "task", req.Task)
	}

	if !req.Wait || len(result.Changes) == 0 {
		return result, nil
	}

	result.Groups, err = s.waitForResize(ctx, h.ID)
	return result, err
}

// waitForResize sleeps for the settle delay, then polls until no core or
// task group is provisioning or resizing.
func (s *Scaler) waitForResize(ctx context.Context, clusterID string) ([]InstanceGroupState, error) {
	s.logger.Info("waiting for resize to settle", "cluster", clusterID, "settle", s.wait.ResizeSettle)
	if err := sleep(ctx, s.wait.ResizeSettle); err != nil {
		return nil, err
	}

	var groups []InstanceGroupState
	err := poll(ctx, s.logger, "resize", clusterID, s.wait.ResizeInterval, s.wait.ResizeMaxPolls, func(ctx context.Context) (bool, string, error) {
		g, err := listGroups(ctx, s.emr, clusterID)
		if err != nil {
			return false, "", err
		}
		groups = g

		var pending []string
		for _, grp := range g {
			if grp.Role != types.InstanceGroupTypeMaster && grp.Transitional() {
				pending = append(pending, fmt.Sprintf("%s %s (%d/%d running)", grp.Role, grp.State, grp.Running, grp.Requested))
			}
		}
		if len(pending) > 0 {
			return false, strings.Join(pending, ", "), nil
		}
		return true, "", nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("resize complete", "cluster", clusterID)
	return groups, nil
}
