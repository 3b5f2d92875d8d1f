package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsLookupTimeout bounds a single Secrets Manager lookup made while
// loading a cluster config.
const secretsLookupTimeout = 30 * time.Second

// resolveAWSSecretsManager resolves an AWS Secrets Manager reference.
// Format: secret-name or secret-name@region
func resolveAWSSecretsManager(ref string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), secretsLookupTimeout)
	defer cancel()

	name, region, _ := strings.Cut(ref, "@")

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("loading AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", name, err)
	}

	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value (binary secrets not supported)", name)
	}

	return *out.SecretString, nil
}
