package cluster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
)

// KV is one configuration override.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// HadoopSettings are passed to every Hadoop client the host starts.
type HadoopSettings struct {
	ExtraConf []KV `json:"extraConf"`
}

// HiveSettings configure the host's HiveServer2 connection.
type HiveSettings struct {
	Enabled                          bool   `json:"enabled"`
	HiveServer2Host                  string `json:"hiveServer2Host,omitempty"`
	ExecutionConfigsGenericOverrides []KV   `json:"executionConfigsGenericOverrides"`
}

// ImpalaSettings configure Impala, which EMR does not ship.
type ImpalaSettings struct {
	Enabled bool `json:"enabled"`
}

// SparkSettings configure Spark jobs submitted by the host.
type SparkSettings struct {
	SparkEnabled                     bool `json:"sparkEnabled"`
	ExecutionConfigsGenericOverrides []KV `json:"executionConfigsGenericOverrides"`
}

// ConnectionMetadata is what the host needs to talk to a running cluster.
// It is always recomputed from the master address, never stored as truth.
type ConnectionMetadata struct {
	Hadoop HadoopSettings `json:"hadoop"`
	Hive   HiveSettings   `json:"hive"`
	Impala ImpalaSettings `json:"impala"`
	Spark  SparkSettings  `json:"spark"`
}

// Lookup returns the value of key in kvs.
func Lookup(kvs []KV, key string) (string, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// EngineConfig derives the per-engine overrides for a cluster whose master
// has the given private address. metastoreFactory, when set, is forwarded to
// Spark so it reads the same metastore as Hive.
func EngineConfig(master, metastoreFactory string) *ConnectionMetadata {
	defaultFS := fmt.Sprintf("hdfs://%s:8020", master)
	rmAddress := master + ":8032"
	schedulerAddress := master + ":8030"
	webProxy := master + ":20888"

	meta := &ConnectionMetadata{
		Hadoop: HadoopSettings{ExtraConf: []KV{
			{"fs.defaultFS", defaultFS},
			{"yarn.resourcemanager.address", rmAddress},
			{"yarn.resourcemanager.scheduler.address", schedulerAddress},
			{"yarn.timeline-service.hostname", master},
			{"yarn.web-proxy.address", webProxy},
			{"mapreduce.jobhistory.address", master + ":10020"},
			{"yarn.resourcemanager.hostname", master},
		}},
		Hive: HiveSettings{
			Enabled:         true,
			HiveServer2Host: master,
			ExecutionConfigsGenericOverrides: []KV{
				{"fs.defaultFS", defaultFS},
				{"yarn.resourcemanager.address", rmAddress},
				{"yarn.resourcemanager.scheduler.address", schedulerAddress},
				{"yarn.timeline-service.hostname", master},
				{"tez.tez-ui.history-url.base", fmt.Sprintf("http://%s:8080/tez-ui/", master)},
			},
		},
		Impala: ImpalaSettings{Enabled: false},
		Spark: SparkSettings{
			SparkEnabled: true,
			ExecutionConfigsGenericOverrides: []KV{
				{"spark.hadoop.fs.defaultFS", defaultFS},
				{"spark.hadoop.yarn.resourcemanager.address", rmAddress},
				{"spark.hadoop.yarn.resourcemanager.scheduler.address", schedulerAddress},
				{"spark.hadoop.hive.metastore.uris", fmt.Sprintf("thrift://%s:9083", master)},
				{"spark.hadoop.yarn.web-proxy.address", webProxy},
				{"spark.yarn.historyServer.address", master + ":18080"},
				{"spark.eventLog.dir", "hdfs:///var/log/spark/apps"},
			},
		},
	}

	if metastoreFactory != "" {
		meta.Spark.ExecutionConfigsGenericOverrides = append(meta.Spark.ExecutionConfigsGenericOverrides,
			KV{"spark.hadoop." + metastoreFactoryKey, metastoreFactory})
	}
	return meta
}

// BootstrapOptions select the one-shot side effects run after metadata is
// derived. Zero value runs nothing.
type BootstrapOptions struct {
	HomeUser  string // create hdfs:///user/<HomeUser> when set
	Databases []string
	Metastore config.Metastore
}

// MetadataBuilder resolves a running cluster's master and derives its
// connection metadata.
type MetadataBuilder struct {
	emr          awsapi.EMRAPI
	bootstrapper *Bootstrapper
	logger       *slog.Logger
}

// NewMetadataBuilder creates a MetadataBuilder.
func NewMetadataBuilder(svc Services) *MetadataBuilder {
	return &MetadataBuilder{
		emr:          svc.EMR,
		bootstrapper: NewBootstrapper(svc.Runner, svc.Glue, svc.Logger),
		logger:       svc.Logger,
	}
}

// Build derives connection metadata for h and then runs the requested
// bootstrap steps, each at most once.
func (b *MetadataBuilder) Build(ctx context.Context, h Handle, opts BootstrapOptions) (*ConnectionMetadata, error) {
	master, err := MasterAddress(ctx, b.emr, h.ID)
	if err != nil {
		return nil, err
	}

	c, err := describeCluster(ctx, b.emr, h.ID)
	if err != nil {
		return nil, err
	}
	factory := metastoreFactoryClass(c.Configurations)

	meta := EngineConfig(master, factory)
	b.logger.Info("connection metadata ready", "cluster", h.ID, "master", master, "metastore_factory", factory)

	if opts.HomeUser != "" {
		if err := b.bootstrapper.CreateHomeDir(ctx, master, opts.HomeUser); err != nil {
			return meta, err
		}
	}
	if len(opts.Databases) > 0 {
		if err := b.bootstrapper.CreateDatabases(ctx, master, opts.Databases, opts.Metastore); err != nil {
			return meta, err
		}
	}
	return meta, nil
}

// liveStates are the instance states of a node that is coming up or serving.
var liveStates = []types.InstanceState{
	types.InstanceStateAwaitingFulfillment,
	types.InstanceStateProvisioning,
	types.InstanceStateBootstrapping,
	types.InstanceStateRunning,
}

// MasterAddress returns the private IP of the cluster's master node. If EMR
// reports several live master instances the last one wins.
func MasterAddress(ctx context.Context, api awsapi.EMRAPI, clusterID string) (string, error) {
	instances, err := listInstances(ctx, api, clusterID, []types.InstanceGroupType{types.InstanceGroupTypeMaster}, liveStates)
	if err != nil {
		return "", err
	}

	address := ""
	for _, inst := range instances {
		if ip := aws.ToString(inst.PrivateIpAddress); ip != "" {
			address = ip
		}
	}
	if address == "" {
		return "", &errdefs.NotFoundError{Kind: "master instance", ID: clusterID}
	}
	return address, nil
}

func metastoreFactoryClass(configs []types.Configuration) string {
	for _, c := range configs {
		if aws.ToString(c.Classification) != hiveSiteClassification {
			continue
		}
		if v, ok := c.Properties[metastoreFactoryKey]; ok {
			return v
		}
	}
	return ""
}
