package cluster

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	awsapi "github.com/emrlift/emrlift/internal/aws"
)

// InstanceInfo describes one cluster node.
type InstanceInfo struct {
	ID               string `json:"id"`
	EC2InstanceID    string `json:"ec2InstanceId"`
	PrivateIPAddress string `json:"privateIpAddress"`
	PrivateDNSName   string `json:"privateDnsName,omitempty"`
	State            string `json:"state"`
}

// Info is the cluster report shown by the info macro.
type Info struct {
	ClusterID string               `json:"clusterId"`
	Name      string               `json:"name"`
	State     string               `json:"state"`
	Master    *InstanceInfo        `json:"master,omitempty"`
	Workers   []InstanceInfo       `json:"workers"`
	Groups    []InstanceGroupState `json:"instanceGroups"`
}

// Inspector reports on running clusters.
type Inspector struct {
	emr    awsapi.EMRAPI
	logger *slog.Logger
}

// NewInspector creates an Inspector.
func NewInspector(svc Services) *Inspector {
	return &Inspector{emr: svc.EMR, logger: svc.Logger}
}

// Info gathers master, worker and instance group details for h.
func (i *Inspector) Info(ctx context.Context, h Handle) (*Info, error) {
	c, err := describeCluster(ctx, i.emr, h.ID)
	if err != nil {
		return nil, err
	}

	info := &Info{
		ClusterID: h.ID,
		Name:      aws.ToString(c.Name),
		State:     string(c.Status.State),
		Workers:   []InstanceInfo{},
	}

	masters, err := listInstances(ctx, i.emr, h.ID, []types.InstanceGroupType{types.InstanceGroupTypeMaster}, liveStates)
	if err != nil {
		return nil, err
	}
	if len(masters) > 0 {
		m := instanceInfo(masters[len(masters)-1])
		info.Master = &m
	}

	workers, err := listInstances(ctx, i.emr, h.ID,
		[]types.InstanceGroupType{types.InstanceGroupTypeCore, types.InstanceGroupTypeTask},
		liveStates)
	if err != nil {
		return nil, err
	}
	for _, w := range workers {
		info.Workers = append(info.Workers, instanceInfo(w))
	}

	info.Groups, err = listGroups(ctx, i.emr, h.ID)
	if err != nil {
		return nil, err
	}

	i.logger.Debug("cluster info", "cluster", h.ID, "workers", len(info.Workers), "groups", len(info.Groups))
	return info, nil
}

func instanceInfo(inst types.Instance) InstanceInfo {
	info := InstanceInfo{
		ID:               aws.ToString(inst.Id),
		EC2InstanceID:    aws.ToString(inst.Ec2InstanceId),
		PrivateIPAddress: aws.ToString(inst.PrivateIpAddress),
		PrivateDNSName:   aws.ToString(inst.PrivateDnsName),
	}
	if inst.Status != nil {
		info.State = string(inst.Status.State)
	}
	return info
}
