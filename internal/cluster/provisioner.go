package cluster

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
)

// Provisioner creates clusters and waits until they are usable.
type Provisioner struct {
	emr      awsapi.EMRAPI
	sts      awsapi.STSAPI
	metadata *MetadataBuilder
	region   string
	wait     WaitPolicy
	homeUser string
	logger   *slog.Logger
}

// NewProvisioner creates a Provisioner. homeUser, when set, gets an HDFS home
// directory on every cluster whose spec asks for one.
func NewProvisioner(svc Services, homeUser string) *Provisioner {
	return &Provisioner{
		emr:      svc.EMR,
		sts:      svc.STS,
		metadata: NewMetadataBuilder(svc),
		region:   svc.Region,
		wait:     svc.Wait,
		homeUser: homeUser,
		logger:   svc.Logger,
	}
}

// Provision submits the cluster described by spec, waits for it to run and
// returns its connection metadata. Once RunJobFlow succeeds the handle is
// always returned, even with an error: a cluster whose metadata or bootstrap
// step failed keeps running and must be terminated by the caller.
func (p *Provisioner) Provision(ctx context.Context, spec *config.Spec) (*ConnectionMetadata, Handle, error) {
	spec, err := p.resolveCatalog(ctx, spec)
	if err != nil {
		return nil, Handle{}, err
	}

	input, err := BuildRequest(spec)
	if err != nil {
		return nil, Handle{}, err
	}

	p.logger.Info("creating cluster", "name", spec.Name, "release", spec.Release, "core", spec.Core.Count, "metastore", spec.Metastore.Mode())
	out, err := p.emr.RunJobFlow(ctx, input)
	if err != nil {
		return nil, Handle{}, errdefs.Provider("RunJobFlow", "", err)
	}

	h := Handle{ID: aws.ToString(out.JobFlowId), Region: p.region}
	if spec.Region != "" {
		h.Region = spec.Region
	}
	p.logger.Info("cluster submitted", "cluster", h.ID)

	if _, err := WaitForRunning(ctx, p.emr, h.ID, p.wait, p.logger); err != nil {
		return nil, h, err
	}

	opts := BootstrapOptions{Databases: spec.Databases, Metastore: spec.Metastore}
	if spec.CreateUserDir {
		opts.HomeUser = p.homeUser
	}
	meta, err := p.metadata.Build(ctx, h, opts)
	if err != nil {
		p.logger.Error("cluster running but not ready for use", "cluster", h.ID, "error", err)
		return meta, h, err
	}
	return meta, h, nil
}

// resolveCatalog fills an empty Glue catalog id with the caller's account.
func (p *Provisioner) resolveCatalog(ctx context.Context, spec *config.Spec) (*config.Spec, error) {
	glue, ok := spec.Metastore.(config.GlueCatalogMetastore)
	if !ok || glue.CatalogID != "" {
		return spec, nil
	}

	id, err := awsapi.GetCallerIdentity(ctx, p.sts)
	if err != nil {
		return nil, errdefs.Provider("GetCallerIdentity", "", err)
	}
	return spec.WithMetastore(config.GlueCatalogMetastore{CatalogID: id.Account}), nil
}
