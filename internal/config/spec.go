package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/emrlift/emrlift/internal/errdefs"
)

const (
	DefaultMasterEBSSizeGB   = 32
	DefaultEBSVolumeCount    = 1
	DefaultEBSRootVolumeSize = 25
)

// DefaultApplications are installed when a cluster config names none.
var DefaultApplications = []string{"Hadoop", "Hive", "Tez", "Pig", "Spark", "Zookeeper"}

var logURISchemes = []string{"s3://", "s3n://", "s3a://"}

var databaseNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Spec is a validated cluster definition. Obtain one from Builder.Build; the
// mapper only accepts specs that pass Validate.
type Spec struct {
	Name    string
	Release string // full EMR release label, e.g. emr-6.15.0
	Region  string

	Master GroupSpec
	Core   GroupSpec
	Task   *GroupSpec

	EBSOptimized      bool
	EBSRootVolumeSize int32

	LogURI                string
	SecurityConfiguration string
	SubnetID              string
	SecurityGroups        []string
	EC2KeyName            string
	TerminationProtected  bool

	NodesRole       string
	ServiceRole     string
	AutoScalingRole string

	Tags             []Tag
	Metastore        Metastore
	SoftwareConfig   []Classification
	Applications     []string
	BootstrapActions []BootstrapStep

	Databases     []string
	CreateUserDir bool
}

// GroupSpec is one validated instance group.
type GroupSpec struct {
	InstanceType      string
	Count             int32
	EBSSizeGB         int32
	EBSVolumeCount    int32
	Spot              bool
	BidPrice          string
	AutoScalingPolicy string
}

// BootstrapStep is a validated bootstrap action.
type BootstrapStep struct {
	Name string
	Path string
	Args []string
}

// WithMetastore returns a copy of s using m.
func (s *Spec) WithMetastore(m Metastore) *Spec {
	cp := *s
	cp.Metastore = m
	return &cp
}

// Validate checks the invariants every request built from s relies on.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return errdefs.Configf("name", "cluster name is required")
	}
	if s.Release == "" {
		return errdefs.Configf("release", "EMR release is required")
	}
	if s.Master.InstanceType == "" {
		return errdefs.Configf("master.instance_type", "missing master instance type")
	}
	if s.Master.Count != 1 {
		return errdefs.Configf("master.instance_count", "exactly one master instance is supported, got %d", s.Master.Count)
	}
	if s.Core.InstanceType == "" {
		return errdefs.Configf("core.instance_type", "missing core instance type")
	}
	if s.Core.Count < 1 {
		return errdefs.Configf("core.instance_count", "%d core instances requested, at least 1 is required", s.Core.Count)
	}
	if s.Task != nil {
		if s.Task.Count < 1 {
			return errdefs.Configf("task.instance_count", "task group present with count %d", s.Task.Count)
		}
		if s.Task.InstanceType == "" {
			return errdefs.Configf("task.instance_type", "missing task instance type")
		}
	}
	if s.LogURI != "" && !hasLogScheme(s.LogURI) {
		return errdefs.Configf("logs_path", "%q is not a valid S3 path", s.LogURI)
	}
	if s.Metastore == nil {
		return errdefs.Configf("metastore", "metastore not resolved")
	}
	for _, db := range s.Databases {
		if !databaseNamePattern.MatchString(db) {
			return errdefs.Configf("databases_to_create", "invalid database name %q", db)
		}
	}
	return nil
}

func hasLogScheme(uri string) bool {
	for _, scheme := range logURISchemes {
		if strings.HasPrefix(uri, scheme) && len(uri) > len(scheme) {
			return true
		}
	}
	return false
}

// Builder turns a ClusterConfig into a Spec, applying defaults and
// rejecting invalid combinations.
type Builder struct {
	cfg           ClusterConfig
	name          string
	defaultRegion string
	defaultSubnet string
}

// NewBuilder starts a Spec from cfg. The config is copied.
func NewBuilder(cfg ClusterConfig) *Builder {
	return &Builder{cfg: cfg}
}

// Named sets the cluster name, which also becomes the default Name tag.
func (b *Builder) Named(name string) *Builder {
	b.name = name
	return b
}

// WithDefaults supplies region and subnet used when the config omits them,
// usually discovered from the instance metadata service.
func (b *Builder) WithDefaults(region, subnet string) *Builder {
	b.defaultRegion = region
	b.defaultSubnet = subnet
	return b
}

// Build validates the config and returns the Spec.
func (b *Builder) Build() (*Spec, error) {
	c := b.cfg

	if c.Release == "" {
		return nil, errdefs.Configf("release", "EMR release is required")
	}
	release := c.Release
	if !strings.HasPrefix(release, "emr-") {
		release = "emr-" + release
	}

	metastore, err := c.Metastore.Resolve()
	if err != nil {
		return nil, err
	}

	core, err := b.group("core", c.Core, 0)
	if err != nil {
		return nil, err
	}
	if c.Core.InstanceType == "" {
		return nil, errdefs.Configf("core.instance_type", "missing core instance type")
	}
	if c.Core.InstanceCount < 1 {
		return nil, errdefs.Configf("core.instance_count", "%d core instances requested, at least 1 is required", c.Core.InstanceCount)
	}

	var task *GroupSpec
	if c.Task.InstanceCount > 0 {
		if c.Task.InstanceType == "" {
			return nil, errdefs.Configf("task.instance_type", "missing task instance type")
		}
		t, err := b.group("task", c.Task, 0)
		if err != nil {
			return nil, err
		}
		task = &t
	} else if c.Task.InstanceCount < 0 {
		return nil, errdefs.Configf("task.instance_count", "negative count %d", c.Task.InstanceCount)
	}

	master, err := b.group("master", c.Master, DefaultMasterEBSSizeGB)
	if err != nil {
		return nil, err
	}
	master.Count = 1
	master.Spot = false
	master.BidPrice = ""

	ebsOptimized := true
	if c.EBSOptimized != nil {
		ebsOptimized = *c.EBSOptimized
	}

	rootSize := c.EBSRootVolumeSize
	if rootSize == 0 {
		rootSize = DefaultEBSRootVolumeSize
	}

	region := c.Region
	if region == "" {
		region = b.defaultRegion
	}
	subnet := c.SubnetID
	if subnet == "" {
		subnet = b.defaultSubnet
	}

	apps := c.Applications
	if len(apps) == 0 {
		apps = DefaultApplications
	}

	var steps []BootstrapStep
	for i, ba := range c.BootstrapActions {
		if ba.Path == "" {
			return nil, errdefs.Configf(fmt.Sprintf("bootstrap_actions[%d].path", i), "script path is required")
		}
		steps = append(steps, BootstrapStep{
			Name: fmt.Sprintf("action_%d", i),
			Path: ba.Path,
			Args: SplitList(ba.Args),
		})
	}

	createUserDir := true
	if c.CreateUserDir != nil {
		createUserDir = *c.CreateUserDir
	}

	spec := &Spec{
		Name:                  b.name,
		Release:               release,
		Region:                region,
		Master:                master,
		Core:                  core,
		Task:                  task,
		EBSOptimized:          ebsOptimized,
		EBSRootVolumeSize:     int32(rootSize),
		LogURI:                c.LogsPath,
		SecurityConfiguration: c.SecurityConfiguration,
		SubnetID:              subnet,
		SecurityGroups:        SplitList(c.AdditionalSecurityGroups),
		EC2KeyName:            strings.TrimSpace(c.EC2KeyName),
		TerminationProtected:  c.TerminationProtected,
		NodesRole:             c.NodesRole,
		ServiceRole:           c.ServiceRole,
		AutoScalingRole:       c.AutoScalingRole,
		Tags:                  append([]Tag(nil), c.Tags...),
		Metastore:             metastore,
		SoftwareConfig:        cloneClassifications(c.SoftwareConfig),
		Applications:          append([]string(nil), apps...),
		BootstrapActions:      steps,
		Databases:             SplitList(c.DatabasesToCreate),
		CreateUserDir:         createUserDir,
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (b *Builder) group(role string, g GroupConfig, defaultSize int) (GroupSpec, error) {
	size := g.EBSSizeGB
	if size == 0 {
		size = defaultSize
	}
	volumes := g.EBSVolumeCount
	if volumes == 0 {
		volumes = DefaultEBSVolumeCount
	}
	if g.AutoScalingPolicy != "" && !json.Valid([]byte(g.AutoScalingPolicy)) {
		return GroupSpec{}, errdefs.Configf(role+".autoscaling_policy", "not valid JSON")
	}
	if g.BidPrice != "" && !g.UseSpot {
		return GroupSpec{}, errdefs.Configf(role+".bid_price", "bid price requires use_spot")
	}
	return GroupSpec{
		InstanceType:      g.InstanceType,
		Count:             int32(g.InstanceCount),
		EBSSizeGB:         int32(size),
		EBSVolumeCount:    int32(volumes),
		Spot:              g.UseSpot,
		BidPrice:          g.BidPrice,
		AutoScalingPolicy: g.AutoScalingPolicy,
	}, nil
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cloneClassifications(in []Classification) []Classification {
	if in == nil {
		return nil
	}
	out := make([]Classification, len(in))
	for i, c := range in {
		props := make(map[string]string, len(c.Properties))
		for k, v := range c.Properties {
			props[k] = v
		}
		out[i] = Classification{Classification: c.Classification, Properties: props}
	}
	return out
}
