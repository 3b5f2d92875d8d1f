package cluster

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
)

const (
	hiveSiteClassification      = "hive-site"
	sparkHiveSiteClassification = "spark-hive-site"

	metastoreFactoryKey   = "hive.metastore.client.factory.class"
	glueCatalogIDKey      = "hive.metastore.glue.catalogid"
	glueMetastoreFactory  = "com.amazonaws.glue.catalog.metastore.AWSGlueDataCatalogHiveClientFactory"
	mysqlMetastoreDriver  = "org.mariadb.jdbc.Driver"
	jdoConnectionURL      = "javax.jdo.option.ConnectionURL"
	jdoConnectionDriver   = "javax.jdo.option.ConnectionDriverName"
	jdoConnectionUser     = "javax.jdo.option.ConnectionUserName"
	jdoConnectionPassword = "javax.jdo.option.ConnectionPassword"

	ebsVolumeType = "gp2"
	nameTagKey    = "Name"
)

// BuildRequest maps a validated spec onto a RunJobFlow request. It makes no
// provider calls and is deterministic: the same spec always produces the
// same request.
func BuildRequest(spec *config.Spec) (*emr.RunJobFlowInput, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	groups, err := instanceGroups(spec)
	if err != nil {
		return nil, err
	}

	var steps []types.BootstrapActionConfig
	for _, ba := range spec.BootstrapActions {
		steps = append(steps, types.BootstrapActionConfig{
			Name: aws.String(ba.Name),
			ScriptBootstrapAction: &types.ScriptBootstrapActionConfig{
				Path: aws.String(ba.Path),
				Args: ba.Args,
			},
		})
	}

	apps := make([]types.Application, 0, len(spec.Applications))
	for _, name := range spec.Applications {
		apps = append(apps, types.Application{Name: aws.String(name)})
	}

	input := &emr.RunJobFlowInput{
		Name:         aws.String(spec.Name),
		ReleaseLabel: aws.String(spec.Release),
		Applications: apps,
		Instances: &types.JobFlowInstancesConfig{
			InstanceGroups:                 groups,
			Ec2SubnetId:                    optString(spec.SubnetID),
			Ec2KeyName:                     optString(spec.EC2KeyName),
			AdditionalMasterSecurityGroups: spec.SecurityGroups,
			AdditionalSlaveSecurityGroups:  spec.SecurityGroups,
			KeepJobFlowAliveWhenNoSteps:    aws.Bool(true),
			TerminationProtected:           aws.Bool(spec.TerminationProtected),
		},
		Configurations:        toConfigurations(MergeClassifications(spec.SoftwareConfig, MetastoreClassifications(spec.Metastore))),
		BootstrapActions:      steps,
		Tags:                  mergeTags(spec.Name, spec.Tags),
		LogUri:                optString(spec.LogURI),
		JobFlowRole:           optString(spec.NodesRole),
		ServiceRole:           optString(spec.ServiceRole),
		AutoScalingRole:       optString(spec.AutoScalingRole),
		SecurityConfiguration: optString(spec.SecurityConfiguration),
		EbsRootVolumeSize:     aws.Int32(spec.EBSRootVolumeSize),
		VisibleToAllUsers:     aws.Bool(true),
	}
	return input, nil
}

func instanceGroups(spec *config.Spec) ([]types.InstanceGroupConfig, error) {
	master, err := InstanceGroupConfig("Master", types.InstanceRoleTypeMaster, spec.Master, spec.EBSOptimized)
	if err != nil {
		return nil, err
	}
	core, err := InstanceGroupConfig("Core", types.InstanceRoleTypeCore, spec.Core, spec.EBSOptimized)
	if err != nil {
		return nil, err
	}
	groups := []types.InstanceGroupConfig{master, core}

	if spec.Task != nil {
		task, err := InstanceGroupConfig("Task", types.InstanceRoleTypeTask, *spec.Task, spec.EBSOptimized)
		if err != nil {
			return nil, err
		}
		groups = append(groups, task)
	}
	return groups, nil
}

// InstanceGroupConfig builds the request block for one group. Master groups
// are always a single on-demand instance without autoscaling.
func InstanceGroupConfig(name string, role types.InstanceRoleType, g config.GroupSpec, ebsOptimized bool) (types.InstanceGroupConfig, error) {
	count := g.Count
	if role == types.InstanceRoleTypeMaster {
		count = 1
	}

	cfg := types.InstanceGroupConfig{
		Name:          aws.String(name),
		InstanceRole:  role,
		InstanceType:  aws.String(g.InstanceType),
		InstanceCount: aws.Int32(count),
		Market:        types.MarketTypeOnDemand,
	}

	if g.Spot && role != types.InstanceRoleTypeMaster {
		cfg.Market = types.MarketTypeSpot
		cfg.BidPrice = optString(g.BidPrice)
	}

	if g.EBSSizeGB > 0 {
		volumes := g.EBSVolumeCount
		if volumes < 1 {
			volumes = config.DefaultEBSVolumeCount
		}
		cfg.EbsConfiguration = &types.EbsConfiguration{
			EbsBlockDeviceConfigs: []types.EbsBlockDeviceConfig{{
				VolumeSpecification: &types.VolumeSpecification{
					VolumeType: aws.String(ebsVolumeType),
					SizeInGB:   aws.Int32(g.EBSSizeGB),
				},
				VolumesPerInstance: aws.Int32(volumes),
			}},
			EbsOptimized: aws.Bool(ebsOptimized),
		}
	}

	if g.AutoScalingPolicy != "" && role != types.InstanceRoleTypeMaster {
		var policy types.AutoScalingPolicy
		if err := json.Unmarshal([]byte(g.AutoScalingPolicy), &policy); err != nil {
			field := fmt.Sprintf("%s.autoscaling_policy", lowerRole(role))
			return types.InstanceGroupConfig{}, errdefs.Configf(field, "invalid policy: %v", err)
		}
		cfg.AutoScalingPolicy = &policy
	}

	return cfg, nil
}

// MetastoreClassifications returns the software configuration blocks a
// metastore variant requires.
func MetastoreClassifications(m config.Metastore) []config.Classification {
	switch m := m.(type) {
	case config.CustomJDBCMetastore:
		return []config.Classification{{
			Classification: hiveSiteClassification,
			Properties:     jdoProperties(m.URL, m.Driver, m.User, m.Password),
		}}
	case config.MySQLMetastore:
		url := fmt.Sprintf("jdbc:mysql://%s:3306/hive?createDatabaseIfNotExist=true", m.Host)
		return []config.Classification{{
			Classification: hiveSiteClassification,
			Properties:     jdoProperties(url, mysqlMetastoreDriver, m.User, m.Password),
		}}
	case config.GlueCatalogMetastore:
		hive := map[string]string{metastoreFactoryKey: glueMetastoreFactory}
		if m.CatalogID != "" {
			hive[glueCatalogIDKey] = m.CatalogID
		}
		return []config.Classification{
			{Classification: hiveSiteClassification, Properties: hive},
			{Classification: sparkHiveSiteClassification, Properties: map[string]string{metastoreFactoryKey: glueMetastoreFactory}},
		}
	case config.LocalMetastore, nil:
		return nil
	default:
		panic(fmt.Sprintf("unhandled metastore %T", m))
	}
}

func jdoProperties(url, driver, user, password string) map[string]string {
	props := map[string]string{
		jdoConnectionURL:    url,
		jdoConnectionDriver: driver,
	}
	if user != "" {
		props[jdoConnectionUser] = user
	}
	if password != "" {
		props[jdoConnectionPassword] = password
	}
	return props
}

// MergeClassifications merges extra into base without mutating either.
// Blocks with the same classification are combined and extra wins on
// duplicate keys; new classifications are appended in order.
func MergeClassifications(base, extra []config.Classification) []config.Classification {
	out := make([]config.Classification, 0, len(base)+len(extra))
	index := make(map[string]int, len(base))
	for _, c := range base {
		props := make(map[string]string, len(c.Properties))
		for k, v := range c.Properties {
			props[k] = v
		}
		index[c.Classification] = len(out)
		out = append(out, config.Classification{Classification: c.Classification, Properties: props})
	}

	for _, c := range extra {
		if i, ok := index[c.Classification]; ok {
			for k, v := range c.Properties {
				out[i].Properties[k] = v
			}
			continue
		}
		props := make(map[string]string, len(c.Properties))
		for k, v := range c.Properties {
			props[k] = v
		}
		index[c.Classification] = len(out)
		out = append(out, config.Classification{Classification: c.Classification, Properties: props})
	}
	return out
}

func toConfigurations(in []config.Classification) []types.Configuration {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.Configuration, len(in))
	for i, c := range in {
		out[i] = types.Configuration{
			Classification: aws.String(c.Classification),
			Properties:     c.Properties,
		}
	}
	return out
}

// mergeTags puts the Name tag first. A user-supplied Name replaces the
// default rather than adding a second one.
func mergeTags(name string, user []config.Tag) []types.Tag {
	tags := []types.Tag{{Key: aws.String(nameTagKey), Value: aws.String(name)}}
	for _, t := range user {
		if t.Key == nameTagKey {
			tags[0].Value = aws.String(t.Value)
			continue
		}
		tags = append(tags, types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	return tags
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func lowerRole(role types.InstanceRoleType) string {
	switch role {
	case types.InstanceRoleTypeMaster:
		return "master"
	case types.InstanceRoleTypeCore:
		return "core"
	default:
		return "task"
	}
}
