package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
)

// EnsureDatabases creates each database in the Glue Data Catalog, leaving
// existing ones untouched. An empty catalogID means the caller's account.
func EnsureDatabases(ctx context.Context, client GlueAPI, catalogID string, names []string) error {
	for _, name := range names {
		input := &glue.CreateDatabaseInput{
			DatabaseInput: &gluetypes.DatabaseInput{Name: aws.String(name)},
		}
		if catalogID != "" {
			input.CatalogId = aws.String(catalogID)
		}

		if _, err := client.CreateDatabase(ctx, input); err != nil {
			if IsAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("creating Glue database %s: %w", name, err)
		}
	}
	return nil
}
