package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const roleSessionName = "emrlift"

// Credentials selects how a session authenticates. AssumeRole wins over
// static keys; with neither set the default chain (env, profile, instance
// role) is used.
type Credentials struct {
	Profile    string
	Region     string
	AssumeRole string
	AccessKey  string
	SecretKey  string
}

// LoadConfig builds an aws.Config for the given credentials.
func LoadConfig(ctx context.Context, creds Credentials) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if creds.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(creds.Profile))
	}
	if creds.Region != "" {
		opts = append(opts, awsconfig.WithRegion(creds.Region))
	}
	if creds.AccessKey != "" || creds.SecretKey != "" {
		if creds.AccessKey == "" || creds.SecretKey == "" {
			return aws.Config{}, fmt.Errorf("access key and secret key must be set together")
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}

	if creds.AssumeRole != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), creds.AssumeRole,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = roleSessionName
			})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return cfg, nil
}

// Clients bundles the service clients one cluster operation needs. Every
// field is an interface so tests can swap in the mocks from this package.
type Clients struct {
	Region string
	EMR    EMRAPI
	Glue   GlueAPI
	STS    STSAPI
	IAM    IAMAPI
	S3     S3API
}

// NewClients creates service clients sharing cfg.
func NewClients(cfg aws.Config) *Clients {
	return &Clients{
		Region: cfg.Region,
		EMR:    emr.NewFromConfig(cfg),
		Glue:   glue.NewFromConfig(cfg),
		STS:    sts.NewFromConfig(cfg),
		IAM:    iam.NewFromConfig(cfg),
		S3:     s3.NewFromConfig(cfg),
	}
}

// Connect loads a session for creds and returns its clients.
func Connect(ctx context.Context, creds Credentials) (*Clients, error) {
	cfg, err := LoadConfig(ctx, creds)
	if err != nil {
		return nil, err
	}
	return NewClients(cfg), nil
}
