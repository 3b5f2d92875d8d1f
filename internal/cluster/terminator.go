package cluster

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/errdefs"
)

// Terminator tears clusters down.
type Terminator struct {
	emr    awsapi.EMRAPI
	logger *slog.Logger
}

// NewTerminator creates a Terminator.
func NewTerminator(svc Services) *Terminator {
	return &Terminator{emr: svc.EMR, logger: svc.Logger}
}

// Terminate clears termination protection and terminates the cluster. A
// cluster that is already terminating, terminated or unknown counts as done,
// so calling Terminate twice is safe.
func (t *Terminator) Terminate(ctx context.Context, h Handle) error {
	c, err := describeCluster(ctx, t.emr, h.ID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			t.logger.Info("cluster already gone", "cluster", h.ID)
			return nil
		}
		return err
	}

	switch c.Status.State {
	case types.ClusterStateTerminating, types.ClusterStateTerminated, types.ClusterStateTerminatedWithErrors:
		t.logger.Info("cluster already terminated", "cluster", h.ID, "state", c.Status.State)
		return nil
	}

	_, err = t.emr.SetTerminationProtection(ctx, &emr.SetTerminationProtectionInput{
		JobFlowIds:           []string{h.ID},
		TerminationProtected: aws.Bool(false),
	})
	if err != nil {
		return errdefs.Provider("SetTerminationProtection", h.ID, err)
	}

	if _, err := t.emr.TerminateJobFlows(ctx, &emr.TerminateJobFlowsInput{JobFlowIds: []string{h.ID}}); err != nil {
		return errdefs.Provider("TerminateJobFlows", h.ID, err)
	}
	t.logger.Info("cluster terminating", "cluster", h.ID)
	return nil
}
