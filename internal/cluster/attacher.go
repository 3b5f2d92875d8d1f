package cluster

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/errdefs"
)

// Attacher connects to a cluster that already exists.
type Attacher struct {
	emr      awsapi.EMRAPI
	metadata *MetadataBuilder
	region   string
	homeUser string
	logger   *slog.Logger
}

// NewAttacher creates an Attacher.
func NewAttacher(svc Services, homeUser string) *Attacher {
	return &Attacher{
		emr:      svc.EMR,
		metadata: NewMetadataBuilder(svc),
		region:   svc.Region,
		homeUser: homeUser,
		logger:   svc.Logger,
	}
}

// Attach resolves clusterID into connection metadata. A cluster that does
// not exist, or is already gone, yields a NotFoundError.
func (a *Attacher) Attach(ctx context.Context, clusterID string) (*ConnectionMetadata, Handle, error) {
	if clusterID == "" {
		return nil, Handle{}, errdefs.Configf("emr_cluster_id", "cluster id is required to attach")
	}

	c, err := describeCluster(ctx, a.emr, clusterID)
	if err != nil {
		return nil, Handle{}, err
	}
	switch c.Status.State {
	case types.ClusterStateTerminating, types.ClusterStateTerminated, types.ClusterStateTerminatedWithErrors:
		return nil, Handle{}, &errdefs.NotFoundError{Kind: "live cluster", ID: clusterID}
	}

	h := Handle{ID: clusterID, Region: a.region}
	a.logger.Info("attaching to cluster", "cluster", clusterID, "state", c.Status.State)

	meta, err := a.metadata.Build(ctx, h, BootstrapOptions{HomeUser: a.homeUser})
	if err != nil {
		return meta, h, err
	}
	return meta, h, nil
}
