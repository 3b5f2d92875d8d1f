package cluster

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"
	"github.com/cenkalti/backoff/v4"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
)

// WaitPolicy bounds every blocking wait. A wait gives up with a
// TimeoutError after MaxPolls status reads.
type WaitPolicy struct {
	RunningInterval time.Duration
	RunningMaxPolls int
	ResizeSettle    time.Duration
	ResizeInterval  time.Duration
	ResizeMaxPolls  int
}

// DefaultWaitPolicy matches the defaults of config.WaitConfig.
func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicyFrom(config.Default().Wait)
}

// WaitPolicyFrom converts the app config section.
func WaitPolicyFrom(w config.WaitConfig) WaitPolicy {
	return WaitPolicy{
		RunningInterval: w.RunningInterval,
		RunningMaxPolls: w.RunningMaxPolls,
		ResizeSettle:    w.ResizeSettle,
		ResizeInterval:  w.ResizeInterval,
		ResizeMaxPolls:  w.ResizeMaxPolls,
	}
}

var errNotReady = errors.New("condition not reached")

// pollFunc reports whether the awaited condition holds. detail describes the
// current state for logs and timeout messages.
type pollFunc func(ctx context.Context) (done bool, detail string, err error)

func poll(ctx context.Context, logger *slog.Logger, op, clusterID string, interval time.Duration, maxPolls int, check pollFunc) error {
	if maxPolls < 1 {
		maxPolls = 1
	}

	attempts := 0
	detail := ""
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxPolls-1)),
		ctx,
	)

	err := backoff.RetryNotify(func() error {
		attempts++
		done, d, err := check(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		detail = d
		if !done {
			return errNotReady
		}
		return nil
	}, b, func(_ error, next time.Duration) {
		logger.Debug("waiting", "op", op, "cluster", clusterID, "state", detail, "attempt", attempts, "next", next)
	})

	if errors.Is(err, errNotReady) {
		return &errdefs.TimeoutError{Op: op, ClusterID: clusterID, Attempts: attempts, Detail: detail}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitForRunning blocks until the cluster is RUNNING or WAITING. A cluster
// that terminates first yields a ProviderError carrying the state change
// reason.
func WaitForRunning(ctx context.Context, api awsapi.EMRAPI, clusterID string, policy WaitPolicy, logger *slog.Logger) (*types.Cluster, error) {
	var cluster *types.Cluster

	err := poll(ctx, logger, "wait for running", clusterID, policy.RunningInterval, policy.RunningMaxPolls, func(ctx context.Context) (bool, string, error) {
		c, err := describeCluster(ctx, api, clusterID)
		if err != nil {
			return false, "", err
		}
		cluster = c

		switch c.Status.State {
		case types.ClusterStateRunning, types.ClusterStateWaiting:
			return true, string(c.Status.State), nil
		case types.ClusterStateTerminating, types.ClusterStateTerminated, types.ClusterStateTerminatedWithErrors:
			reason := string(c.Status.State)
			if c.Status.StateChangeReason != nil && c.Status.StateChangeReason.Message != nil {
				reason += ": " + aws.ToString(c.Status.StateChangeReason.Message)
			}
			return false, "", errdefs.Provider("wait for running", clusterID, errors.New(reason))
		default:
			return false, string(c.Status.State), nil
		}
	})
	if err != nil {
		return nil, err
	}

	logger.Info("cluster running", "cluster", clusterID, "state", cluster.Status.State)
	return cluster, nil
}
