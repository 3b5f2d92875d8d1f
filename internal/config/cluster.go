package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClusterConfig is the cluster definition as the host supplies it: every
// field optional, nothing validated. Build a Spec from it before use.
type ClusterConfig struct {
	Region     string `yaml:"region,omitempty"`
	Profile    string `yaml:"profile,omitempty"`
	AssumeRole string `yaml:"assume_role,omitempty"`
	AccessKey  string `yaml:"access_key,omitempty"`
	SecretKey  string `yaml:"secret_key,omitempty"`

	Release string `yaml:"release,omitempty"` // e.g. 6.15.0

	Master GroupConfig `yaml:"master,omitempty"`
	Core   GroupConfig `yaml:"core,omitempty"`
	Task   GroupConfig `yaml:"task,omitempty"`

	EBSOptimized      *bool `yaml:"ebs_optimized,omitempty"`
	EBSRootVolumeSize int   `yaml:"ebs_root_volume_size,omitempty"`

	LogsPath                 string `yaml:"logs_path,omitempty"`
	SecurityConfiguration    string `yaml:"security_configuration,omitempty"`
	SubnetID                 string `yaml:"subnet_id,omitempty"`
	AdditionalSecurityGroups string `yaml:"additional_security_groups,omitempty"` // comma separated
	EC2KeyName               string `yaml:"ec2_key_name,omitempty"`
	TerminationProtected     bool   `yaml:"termination_protected,omitempty"`

	NodesRole       string `yaml:"nodes_role,omitempty"`
	ServiceRole     string `yaml:"service_role,omitempty"`
	AutoScalingRole string `yaml:"autoscaling_role,omitempty"`

	Tags             []Tag             `yaml:"tags,omitempty"`
	Metastore        MetastoreConfig   `yaml:"metastore,omitempty"`
	SoftwareConfig   SoftwareConfig    `yaml:"software_config,omitempty"`
	Applications     []string          `yaml:"applications,omitempty"`
	BootstrapActions []BootstrapAction `yaml:"bootstrap_actions,omitempty"`

	DatabasesToCreate string `yaml:"databases_to_create,omitempty"` // comma separated
	CreateUserDir     *bool  `yaml:"create_user_dir,omitempty"`

	// Attach
	EMRClusterID string `yaml:"emr_cluster_id,omitempty"`

	// Copy
	SourceClusterID      string `yaml:"source_cluster_id,omitempty"`
	ExcludedClusterTypes string `yaml:"excluded_cluster_types,omitempty"` // comma separated
}

// GroupConfig describes one instance group role.
type GroupConfig struct {
	InstanceType      string `yaml:"instance_type,omitempty"`
	InstanceCount     int    `yaml:"instance_count,omitempty"`
	EBSSizeGB         int    `yaml:"ebs_size_gb,omitempty"`
	EBSVolumeCount    int    `yaml:"ebs_volume_count,omitempty"`
	UseSpot           bool   `yaml:"use_spot,omitempty"`
	BidPrice          string `yaml:"bid_price,omitempty"`
	AutoScalingPolicy string `yaml:"autoscaling_policy,omitempty"` // JSON, EMR AutoScalingPolicy shape
}

// Tag is a cluster tag.
type Tag struct {
	Key   string `yaml:"key" json:"Key"`
	Value string `yaml:"value" json:"Value"`
}

// BootstrapAction is a script run on every node at startup.
type BootstrapAction struct {
	Path string `yaml:"path"`
	Args string `yaml:"args,omitempty"` // comma separated
}

// Classification is one EMR software configuration block.
type Classification struct {
	Classification string            `yaml:"classification" json:"Classification"`
	Properties     map[string]string `yaml:"properties,omitempty" json:"Properties,omitempty"`
}

// SoftwareConfig accepts either a YAML list of classifications or a JSON
// string in the EMR console format.
type SoftwareConfig []Classification

func (s *SoftwareConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Value == "" {
			*s = nil
			return nil
		}
		var list []Classification
		if err := json.Unmarshal([]byte(node.Value), &list); err != nil {
			return fmt.Errorf("software_config: decoding JSON: %w", err)
		}
		*s = list
		return nil
	}
	var list []Classification
	if err := node.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

// LoadClusterConfig reads a cluster definition file and resolves its secret
// references.
func LoadClusterConfig(path string) (*ClusterConfig, error) {
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("reading cluster config: %w", err)
	}

	cc := &ClusterConfig{}
	if err := yaml.Unmarshal(data, cc); err != nil {
		return nil, fmt.Errorf("parsing cluster config: %w", err)
	}
	if err := cc.ResolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}
	return cc, nil
}

// DecodeClusterConfig converts a raw mapping (as persisted by the host) into
// a ClusterConfig.
func DecodeClusterConfig(raw map[string]any) (*ClusterConfig, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding cluster config: %w", err)
	}
	cc := &ClusterConfig{}
	if err := yaml.Unmarshal(data, cc); err != nil {
		return nil, fmt.Errorf("decoding cluster config: %w", err)
	}
	return cc, nil
}

// ToMap converts the config into the raw mapping form used for persistence
// and template merging.
func (c *ClusterConfig) ToMap() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding cluster config: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding cluster config: %w", err)
	}
	return raw, nil
}

// ResolveSecrets replaces ${ENV|VAULT|AWS_SM:...} references in credential
// and metastore password fields.
func (c *ClusterConfig) ResolveSecrets() error {
	fields := []struct {
		name string
		val  *string
	}{
		{"access_key", &c.AccessKey},
		{"secret_key", &c.SecretKey},
		{"metastore.jdbc_password", &c.Metastore.JDBCPassword},
		{"metastore.mysql_password", &c.Metastore.MySQLPassword},
	}
	for _, f := range fields {
		v, err := ResolveValue(*f.val)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.val = v
	}
	return nil
}
