package host

import (
	"context"
	"time"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/cluster"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/logging"
	"github.com/emrlift/emrlift/internal/remote"
)

// MockDeps wires Deps to in-memory provider doubles with a fast wait policy.
// Records is left for the caller to set.
func MockDeps(emr *awsapi.MockEMR, runner remote.Runner) Deps {
	svc := cluster.Services{
		EMR:    emr,
		Glue:   &awsapi.MockGlue{},
		STS:    awsapi.NewMockSTS(),
		Runner: runner,
		Region: "us-east-1",
		Wait: cluster.WaitPolicy{
			RunningInterval: time.Millisecond,
			RunningMaxPolls: 3,
			ResizeInterval:  time.Millisecond,
			ResizeMaxPolls:  3,
		},
		Logger: logging.Discard(),
	}
	return Deps{
		Connect: func(context.Context, *config.ClusterConfig) (cluster.Services, error) {
			return svc, nil
		},
		HomeUser:      "hadoop-user",
		DefaultRegion: "us-east-1",
		DefaultSubnet: "subnet-1",
		Logger:        logging.Discard(),
	}
}
