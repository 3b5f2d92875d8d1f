package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"
)

func TestMockEMR_DescribeWalksSnapshots(t *testing.T) {
	mock := NewMockEMR("j-1")
	mock.Clusters = []types.Cluster{
		MockCluster("j-1", types.ClusterStateStarting),
		MockCluster("j-1", types.ClusterStateWaiting),
	}

	var states []types.ClusterState
	for range 3 {
		out, err := mock.DescribeCluster(context.Background(), &emr.DescribeClusterInput{ClusterId: aws.String("j-1")})
		if err != nil {
			t.Fatal(err)
		}
		states = append(states, out.Cluster.Status.State)
	}
	want := []types.ClusterState{types.ClusterStateStarting, types.ClusterStateWaiting, types.ClusterStateWaiting}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("call %d: state = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestMockEMR_UnknownCluster(t *testing.T) {
	mock := &MockEMR{}
	_, err := mock.DescribeCluster(context.Background(), &emr.DescribeClusterInput{ClusterId: aws.String("j-x")})
	if !IsClusterNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMockEMR_TerminateChangesState(t *testing.T) {
	mock := NewMockEMR("j-1")
	if _, err := mock.TerminateJobFlows(context.Background(), &emr.TerminateJobFlowsInput{JobFlowIds: []string{"j-1"}}); err != nil {
		t.Fatal(err)
	}
	out, err := mock.DescribeCluster(context.Background(), &emr.DescribeClusterInput{ClusterId: aws.String("j-1")})
	if err != nil {
		t.Fatal(err)
	}
	if out.Cluster.Status.State != types.ClusterStateTerminated {
		t.Errorf("state = %s", out.Cluster.Status.State)
	}
}

func TestMockEMR_ListInstancesFilters(t *testing.T) {
	mock := NewMockEMR("j-1")
	mock.Instances[types.InstanceGroupTypeMaster] = []types.Instance{
		MockInstance("m1", "10.0.0.4", types.InstanceStateTerminated),
		MockInstance("m2", "10.0.0.5", types.InstanceStateRunning),
	}
	mock.Instances[types.InstanceGroupTypeCore] = []types.Instance{
		MockInstance("c1", "10.0.0.6", types.InstanceStateRunning),
	}

	out, err := mock.ListInstances(context.Background(), &emr.ListInstancesInput{
		ClusterId:          aws.String("j-1"),
		InstanceGroupTypes: []types.InstanceGroupType{types.InstanceGroupTypeMaster},
		InstanceStates:     []types.InstanceState{types.InstanceStateRunning},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Instances) != 1 || aws.ToString(out.Instances[0].PrivateIpAddress) != "10.0.0.5" {
		t.Errorf("unexpected instances: %+v", out.Instances)
	}
}
