package host

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strings"
	"time"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/cluster"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
	"github.com/emrlift/emrlift/internal/remote"
)

const discoveryTimeout = 3 * time.Second

// NewDeps wires real AWS clients, the configured command runner and the
// environment defaults of the current machine.
func NewDeps(ctx context.Context, app *config.Config, records RecordStore, logger *slog.Logger) Deps {
	env := DiscoverDefaults(ctx, awsapi.NewIMDS(), logger)

	region := app.AWS.Region
	if region == "" {
		region = env.Region
	}
	return Deps{
		Connect:       NewConnector(app, logger),
		Records:       records,
		HomeUser:      HomeUser(app.Plugin),
		DefaultRegion: region,
		DefaultSubnet: env.SubnetID,
		Logger:        logger,
	}
}

// NewConnector returns a Connector backed by real AWS clients. Cluster
// config credentials win over the app defaults.
func NewConnector(app *config.Config, logger *slog.Logger) Connector {
	return func(ctx context.Context, cc *config.ClusterConfig) (cluster.Services, error) {
		clients, err := awsapi.Connect(ctx, Credentials(app, cc))
		if err != nil {
			return cluster.Services{}, err
		}

		runner, err := NewRunner(ctx, app.Remote, clients.S3, logger)
		if err != nil {
			return cluster.Services{}, err
		}

		return cluster.Services{
			EMR:    clients.EMR,
			Glue:   clients.Glue,
			STS:    clients.STS,
			Runner: runner,
			Region: clients.Region,
			Wait:   cluster.WaitPolicyFrom(app.Wait),
			Logger: logger,
		}, nil
	}
}

// Credentials picks the session settings for cc, falling back to the app
// defaults for profile and region.
func Credentials(app *config.Config, cc *config.ClusterConfig) awsapi.Credentials {
	return awsapi.Credentials{
		Profile:    firstNonEmpty(cc.Profile, app.AWS.Profile),
		Region:     firstNonEmpty(cc.Region, app.AWS.Region),
		AssumeRole: cc.AssumeRole,
		AccessKey:  cc.AccessKey,
		SecretKey:  cc.SecretKey,
	}
}

// NewRunner selects how bootstrap commands reach the master node.
func NewRunner(ctx context.Context, rc config.RemoteConfig, s3 awsapi.S3API, logger *slog.Logger) (remote.Runner, error) {
	switch rc.Mode {
	case "", "local":
		return remote.NewLocalRunner(logger), nil
	case "ssh":
		key, err := loadKey(ctx, rc.KeyPath, s3)
		if err != nil {
			return nil, err
		}
		return remote.NewSSHRunner(remote.SSHConfig{User: rc.User, Port: rc.Port, PrivateKey: key}, logger)
	default:
		return nil, errdefs.Configf("remote.mode", "unknown mode %q (want local or ssh)", rc.Mode)
	}
}

func loadKey(ctx context.Context, path string, s3 awsapi.S3API) ([]byte, error) {
	if path == "" {
		return nil, errdefs.Configf("remote.key_path", "required for ssh mode")
	}
	if strings.HasPrefix(path, "s3://") {
		return awsapi.FetchObject(ctx, s3, path)
	}
	key, err := os.ReadFile(config.ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("reading SSH key: %w", err)
	}
	return key, nil
}

// DiscoverDefaults reads region and subnet from the instance metadata
// service. Off EC2 it returns an empty environment.
func DiscoverDefaults(ctx context.Context, client awsapi.IMDSAPI, logger *slog.Logger) awsapi.Environment {
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	env, err := awsapi.DiscoverEnvironment(ctx, client)
	if err != nil {
		logger.Debug("instance metadata unavailable", "error", err)
		return awsapi.Environment{}
	}
	logger.Debug("discovered environment", "region", env.Region, "subnet", env.SubnetID)
	return *env
}

// HomeUser returns the configured HDFS home directory owner, defaulting to
// the user running emrlift.
func HomeUser(plugin config.PluginConfig) string {
	if plugin.HomeUser != "" {
		return plugin.HomeUser
	}
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
