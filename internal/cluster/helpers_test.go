package cluster

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/logging"
	"github.com/emrlift/emrlift/internal/remote"
)

var fastWait = WaitPolicy{
	RunningInterval: time.Millisecond,
	RunningMaxPolls: 5,
	ResizeSettle:    0,
	ResizeInterval:  time.Millisecond,
	ResizeMaxPolls:  5,
}

type fixture struct {
	emr    *awsapi.MockEMR
	glue   *awsapi.MockGlue
	sts    *awsapi.MockSTS
	runner *remote.MockRunner
	svc    Services
}

// newFixture returns services around a running cluster j-1 whose master is
// 10.0.0.5.
func newFixture() *fixture {
	f := &fixture{
		emr:    awsapi.NewMockEMR("j-1"),
		glue:   &awsapi.MockGlue{},
		sts:    awsapi.NewMockSTS(),
		runner: &remote.MockRunner{},
	}
	f.emr.Instances[types.InstanceGroupTypeMaster] = []types.Instance{
		awsapi.MockInstance("m1", "10.0.0.5", types.InstanceStateRunning),
	}
	f.svc = Services{
		EMR:    f.emr,
		Glue:   f.glue,
		STS:    f.sts,
		Runner: f.runner,
		Region: "us-east-1",
		Wait:   fastWait,
		Logger: logging.Discard(),
	}
	return f
}

func baseClusterConfig() config.ClusterConfig {
	return config.ClusterConfig{
		Release:     "6.15.0",
		Master:      config.GroupConfig{InstanceType: "m5.xlarge"},
		Core:        config.GroupConfig{InstanceType: "m5.2xlarge", InstanceCount: 2},
		NodesRole:   "EMR_EC2_DefaultRole",
		ServiceRole: "EMR_DefaultRole",
	}
}

func buildSpec(t *testing.T, mutate func(*config.ClusterConfig)) *config.Spec {
	t.Helper()
	cc := baseClusterConfig()
	if mutate != nil {
		mutate(&cc)
	}
	spec, err := config.NewBuilder(cc).Named("dss-analytics").WithDefaults("us-east-1", "subnet-1").Build()
	if err != nil {
		t.Fatalf("building spec: %v", err)
	}
	return spec
}
