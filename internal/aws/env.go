package aws

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// IMDSAPI is the instance metadata surface used for environment discovery.
type IMDSAPI interface {
	GetRegion(ctx context.Context, params *imds.GetRegionInput, optFns ...func(*imds.Options)) (*imds.GetRegionOutput, error)
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
	GetInstanceIdentityDocument(ctx context.Context, params *imds.GetInstanceIdentityDocumentInput, optFns ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error)
}

// Environment is what the host machine tells us about where it runs.
type Environment struct {
	Region    string
	SubnetID  string
	AccountID string
}

// NewIMDS returns a metadata client with default settings.
func NewIMDS() *imds.Client {
	return imds.New(imds.Options{})
}

// DiscoverEnvironment reads region, subnet and account id of the current
// EC2 instance. It fails off EC2.
func DiscoverEnvironment(ctx context.Context, client IMDSAPI) (*Environment, error) {
	region, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return nil, fmt.Errorf("reading region from instance metadata: %w", err)
	}

	mac, err := readMetadata(ctx, client, "mac")
	if err != nil {
		return nil, err
	}
	subnet, err := readMetadata(ctx, client, "network/interfaces/macs/"+mac+"/subnet-id")
	if err != nil {
		return nil, err
	}

	doc, err := client.GetInstanceIdentityDocument(ctx, &imds.GetInstanceIdentityDocumentInput{})
	if err != nil {
		return nil, fmt.Errorf("reading instance identity document: %w", err)
	}

	return &Environment{
		Region:    region.Region,
		SubnetID:  subnet,
		AccountID: doc.AccountID,
	}, nil
}

func readMetadata(ctx context.Context, client IMDSAPI, path string) (string, error) {
	out, err := client.GetMetadata(ctx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		return "", fmt.Errorf("reading instance metadata %s: %w", path, err)
	}
	defer out.Content.Close()

	data, err := io.ReadAll(out.Content)
	if err != nil {
		return "", fmt.Errorf("reading instance metadata %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
