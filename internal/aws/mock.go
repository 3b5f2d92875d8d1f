package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// MockEMR is a test double for EMRAPI. DescribeCluster and
// ListInstanceGroups walk through their scripted snapshots one call at a
// time and repeat the last one.
type MockEMR struct {
	mu sync.Mutex

	JobFlowID   string
	RunErr      error
	Clusters    []types.Cluster // empty means the cluster id is unknown
	DescribeErr error

	GroupSnapshots [][]types.InstanceGroup
	ListGroupsErr  error

	Instances        map[types.InstanceGroupType][]types.Instance
	ListInstancesErr error

	AddErr       error
	ModifyErr    error
	ProtectErr   error
	TerminateErr error

	// Track calls
	RunInputs        []*emr.RunJobFlowInput
	AddInputs        []*emr.AddInstanceGroupsInput
	ModifyInputs     []*emr.ModifyInstanceGroupsInput
	ProtectionInputs []*emr.SetTerminationProtectionInput
	TerminateInputs  []*emr.TerminateJobFlowsInput
	DescribeCalls    int
	ListGroupsCalls  int

	terminated bool
}

// NewMockEMR creates a MockEMR whose cluster is already running.
func NewMockEMR(clusterID string) *MockEMR {
	return &MockEMR{
		JobFlowID: clusterID,
		Clusters:  []types.Cluster{MockCluster(clusterID, types.ClusterStateWaiting)},
		Instances: map[types.InstanceGroupType][]types.Instance{},
	}
}

// MutatingCalls counts requests that change the cluster.
func (m *MockEMR) MutatingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RunInputs) + len(m.AddInputs) + len(m.ModifyInputs) + len(m.ProtectionInputs) + len(m.TerminateInputs)
}

func (m *MockEMR) RunJobFlow(_ context.Context, in *emr.RunJobFlowInput, _ ...func(*emr.Options)) (*emr.RunJobFlowOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunInputs = append(m.RunInputs, in)
	if m.RunErr != nil {
		return nil, m.RunErr
	}
	return &emr.RunJobFlowOutput{JobFlowId: aws.String(m.JobFlowID)}, nil
}

func (m *MockEMR) DescribeCluster(_ context.Context, in *emr.DescribeClusterInput, _ ...func(*emr.Options)) (*emr.DescribeClusterOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DescribeCalls++
	if m.DescribeErr != nil {
		return nil, m.DescribeErr
	}
	if len(m.Clusters) == 0 {
		return nil, &smithy.GenericAPIError{
			Code:    "InvalidRequestException",
			Message: fmt.Sprintf("Cluster id '%s' is not valid.", aws.ToString(in.ClusterId)),
			Fault:   smithy.FaultClient,
		}
	}

	c := m.Clusters[min(m.DescribeCalls, len(m.Clusters))-1]
	if m.terminated {
		c.Status = &types.ClusterStatus{State: types.ClusterStateTerminated}
	}
	return &emr.DescribeClusterOutput{Cluster: &c}, nil
}

func (m *MockEMR) ListInstanceGroups(_ context.Context, _ *emr.ListInstanceGroupsInput, _ ...func(*emr.Options)) (*emr.ListInstanceGroupsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListGroupsCalls++
	if m.ListGroupsErr != nil {
		return nil, m.ListGroupsErr
	}
	if len(m.GroupSnapshots) == 0 {
		return &emr.ListInstanceGroupsOutput{}, nil
	}
	groups := m.GroupSnapshots[min(m.ListGroupsCalls, len(m.GroupSnapshots))-1]
	return &emr.ListInstanceGroupsOutput{InstanceGroups: slices.Clone(groups)}, nil
}

func (m *MockEMR) ListInstances(_ context.Context, in *emr.ListInstancesInput, _ ...func(*emr.Options)) (*emr.ListInstancesOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListInstancesErr != nil {
		return nil, m.ListInstancesErr
	}

	var out []types.Instance
	for _, groupType := range []types.InstanceGroupType{types.InstanceGroupTypeMaster, types.InstanceGroupTypeCore, types.InstanceGroupTypeTask} {
		if len(in.InstanceGroupTypes) > 0 && !slices.Contains(in.InstanceGroupTypes, groupType) {
			continue
		}
		for _, inst := range m.Instances[groupType] {
			if len(in.InstanceStates) > 0 && (inst.Status == nil || !slices.Contains(in.InstanceStates, inst.Status.State)) {
				continue
			}
			out = append(out, inst)
		}
	}
	return &emr.ListInstancesOutput{Instances: out}, nil
}

func (m *MockEMR) AddInstanceGroups(_ context.Context, in *emr.AddInstanceGroupsInput, _ ...func(*emr.Options)) (*emr.AddInstanceGroupsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddInputs = append(m.AddInputs, in)
	if m.AddErr != nil {
		return nil, m.AddErr
	}
	ids := make([]string, len(in.InstanceGroups))
	for i := range in.InstanceGroups {
		ids[i] = fmt.Sprintf("ig-NEW%d", len(m.AddInputs)*10+i)
	}
	return &emr.AddInstanceGroupsOutput{JobFlowId: in.JobFlowId, InstanceGroupIds: ids}, nil
}

func (m *MockEMR) ModifyInstanceGroups(_ context.Context, in *emr.ModifyInstanceGroupsInput, _ ...func(*emr.Options)) (*emr.ModifyInstanceGroupsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModifyInputs = append(m.ModifyInputs, in)
	if m.ModifyErr != nil {
		return nil, m.ModifyErr
	}
	return &emr.ModifyInstanceGroupsOutput{}, nil
}

func (m *MockEMR) SetTerminationProtection(_ context.Context, in *emr.SetTerminationProtectionInput, _ ...func(*emr.Options)) (*emr.SetTerminationProtectionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProtectionInputs = append(m.ProtectionInputs, in)
	if m.ProtectErr != nil {
		return nil, m.ProtectErr
	}
	return &emr.SetTerminationProtectionOutput{}, nil
}

func (m *MockEMR) TerminateJobFlows(_ context.Context, in *emr.TerminateJobFlowsInput, _ ...func(*emr.Options)) (*emr.TerminateJobFlowsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TerminateInputs = append(m.TerminateInputs, in)
	if m.TerminateErr != nil {
		return nil, m.TerminateErr
	}
	m.terminated = true
	return &emr.TerminateJobFlowsOutput{}, nil
}

// MockCluster builds a described cluster in the given state.
func MockCluster(id string, state types.ClusterState) types.Cluster {
	return types.Cluster{
		Id:     aws.String(id),
		Name:   aws.String("dss-" + strings.ToLower(id)),
		Status: &types.ClusterStatus{State: state},
	}
}

// MockGroup builds an instance group snapshot.
func MockGroup(id string, groupType types.InstanceGroupType, instanceType string, requested, running int32, state types.InstanceGroupState) types.InstanceGroup {
	return types.InstanceGroup{
		Id:                     aws.String(id),
		InstanceGroupType:      groupType,
		InstanceType:           aws.String(instanceType),
		RequestedInstanceCount: aws.Int32(requested),
		RunningInstanceCount:   aws.Int32(running),
		Status:                 &types.InstanceGroupStatus{State: state},
	}
}

// MockInstance builds a cluster instance with a private address.
func MockInstance(id, privateIP string, state types.InstanceState) types.Instance {
	return types.Instance{
		Id:               aws.String(id),
		Ec2InstanceId:    aws.String("i-" + id),
		PrivateIpAddress: aws.String(privateIP),
		PrivateDnsName:   aws.String("ip-" + strings.ReplaceAll(privateIP, ".", "-") + ".ec2.internal"),
		Status:           &types.InstanceStatus{State: state},
	}
}

// MockGlue is a test double for GlueAPI.
type MockGlue struct {
	Existing map[string]bool
	Err      error

	Created    []string
	CatalogIDs []string
}

func (m *MockGlue) CreateDatabase(_ context.Context, in *glue.CreateDatabaseInput, _ ...func(*glue.Options)) (*glue.CreateDatabaseOutput, error) {
	m.CatalogIDs = append(m.CatalogIDs, aws.ToString(in.CatalogId))
	if m.Err != nil {
		return nil, m.Err
	}
	name := aws.ToString(in.DatabaseInput.Name)
	if m.Existing[name] {
		return nil, &smithy.GenericAPIError{Code: "AlreadyExistsException", Message: "Database already exists."}
	}
	m.Created = append(m.Created, name)
	return &glue.CreateDatabaseOutput{}, nil
}

// MockSTS is a test double for STSAPI.
type MockSTS struct {
	Identity CallerIdentity
	Err      error
	Calls    int
}

// NewMockSTS returns a MockSTS for a test account.
func NewMockSTS() *MockSTS {
	return &MockSTS{Identity: CallerIdentity{
		Account: "123456789012",
		ARN:     "arn:aws:iam::123456789012:user/test",
		UserID:  "AIDA12345",
	}}
}

func (m *MockSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(m.Identity.Account),
		Arn:     aws.String(m.Identity.ARN),
		UserId:  aws.String(m.Identity.UserID),
	}, nil
}

// MockIAM is a test double for IAMAPI; actions in Allowed evaluate to allowed.
type MockIAM struct {
	Allowed map[string]bool
	Err     error
}

func (m *MockIAM) SimulatePrincipalPolicy(_ context.Context, in *iam.SimulatePrincipalPolicyInput, _ ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	out := &iam.SimulatePrincipalPolicyOutput{}
	for _, action := range in.ActionNames {
		decision := iamtypes.PolicyEvaluationDecisionTypeImplicitDeny
		if m.Allowed[action] {
			decision = iamtypes.PolicyEvaluationDecisionTypeAllowed
		}
		out.EvaluationResults = append(out.EvaluationResults, iamtypes.EvaluationResult{
			EvalActionName: aws.String(action),
			EvalDecision:   decision,
		})
	}
	return out, nil
}

// MockS3 serves objects keyed by "bucket/key".
type MockS3 struct {
	Objects map[string][]byte
}

func (m *MockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.Objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

// MockIMDS is a test double for IMDSAPI.
type MockIMDS struct {
	Region    string
	AccountID string
	Metadata  map[string]string
	Err       error
}

func (m *MockIMDS) GetRegion(_ context.Context, _ *imds.GetRegionInput, _ ...func(*imds.Options)) (*imds.GetRegionOutput, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &imds.GetRegionOutput{Region: m.Region}, nil
}

func (m *MockIMDS) GetMetadata(_ context.Context, in *imds.GetMetadataInput, _ ...func(*imds.Options)) (*imds.GetMetadataOutput, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	v, ok := m.Metadata[in.Path]
	if !ok {
		return nil, fmt.Errorf("metadata path %s not found", in.Path)
	}
	return &imds.GetMetadataOutput{Content: io.NopCloser(strings.NewReader(v))}, nil
}

func (m *MockIMDS) GetInstanceIdentityDocument(_ context.Context, _ *imds.GetInstanceIdentityDocumentInput, _ ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &imds.GetInstanceIdentityDocumentOutput{
		InstanceIdentityDocument: imds.InstanceIdentityDocument{AccountID: m.AccountID, Region: m.Region},
	}, nil
}
