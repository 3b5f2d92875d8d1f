// Package cluster drives the EMR cluster lifecycle: building the RunJobFlow
// request, provisioning, attaching, copying, scaling, inspecting and
// terminating clusters, and deriving connection metadata for the host.
package cluster

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/errdefs"
	"github.com/emrlift/emrlift/internal/remote"
)

// Handle identifies a cluster the provider created or we attached to.
type Handle struct {
	ID     string `json:"emrClusterId" yaml:"emr_cluster_id"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// Services are the collaborators shared by the lifecycle components.
type Services struct {
	EMR    awsapi.EMRAPI
	Glue   awsapi.GlueAPI
	STS    awsapi.STSAPI
	Runner remote.Runner
	Region string
	Wait   WaitPolicy
	Logger *slog.Logger
}

// InstanceGroupState is a point-in-time view of one instance group.
type InstanceGroupState struct {
	ID           string                   `json:"id"`
	Role         types.InstanceGroupType  `json:"groupType"`
	InstanceType string                   `json:"instanceType"`
	Requested    int32                    `json:"requestedCount"`
	Running      int32                    `json:"runningCount"`
	State        types.InstanceGroupState `json:"state"`
}

// Transitional reports whether the group is still changing size.
func (g InstanceGroupState) Transitional() bool {
	return g.State == types.InstanceGroupStateProvisioning ||
		g.State == types.InstanceGroupStateResizing
}

func describeCluster(ctx context.Context, api awsapi.EMRAPI, clusterID string) (*types.Cluster, error) {
	out, err := api.DescribeCluster(ctx, &emr.DescribeClusterInput{ClusterId: aws.String(clusterID)})
	if err != nil {
		if awsapi.IsClusterNotFound(err) {
			return nil, &errdefs.NotFoundError{Kind: "cluster", ID: clusterID}
		}
		return nil, errdefs.Provider("DescribeCluster", clusterID, err)
	}
	if out.Cluster == nil || out.Cluster.Status == nil {
		return nil, &errdefs.NotFoundError{Kind: "cluster", ID: clusterID}
	}
	return out.Cluster, nil
}

func listGroups(ctx context.Context, api awsapi.EMRAPI, clusterID string) ([]InstanceGroupState, error) {
	var groups []InstanceGroupState
	paginator := emr.NewListInstanceGroupsPaginator(api, &emr.ListInstanceGroupsInput{
		ClusterId: aws.String(clusterID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errdefs.Provider("ListInstanceGroups", clusterID, err)
		}
		for _, g := range page.InstanceGroups {
			s := InstanceGroupState{
				ID:           aws.ToString(g.Id),
				Role:         g.InstanceGroupType,
				InstanceType: aws.ToString(g.InstanceType),
				Requested:    aws.ToInt32(g.RequestedInstanceCount),
				Running:      aws.ToInt32(g.RunningInstanceCount),
			}
			if g.Status != nil {
				s.State = g.Status.State
			}
			groups = append(groups, s)
		}
	}
	return groups, nil
}

func listInstances(ctx context.Context, api awsapi.EMRAPI, clusterID string, roles []types.InstanceGroupType, states []types.InstanceState) ([]types.Instance, error) {
	var instances []types.Instance
	paginator := emr.NewListInstancesPaginator(api, &emr.ListInstancesInput{
		ClusterId:          aws.String(clusterID),
		InstanceGroupTypes: roles,
		InstanceStates:     states,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errdefs.Provider("ListInstances", clusterID, err)
		}
		instances = append(instances, page.Instances...)
	}
	return instances, nil
}
