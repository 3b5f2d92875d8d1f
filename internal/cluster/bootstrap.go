package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/remote"
)

const hdfsSuperuser = "hadoop"

// Bootstrapper performs the post-start side effects on a cluster. Nothing is
// retried; the first failure is returned.
type Bootstrapper struct {
	runner remote.Runner
	glue   awsapi.GlueAPI
	logger *slog.Logger
}

// NewBootstrapper creates a Bootstrapper. glue may be nil when no cluster
// uses the Glue catalog.
func NewBootstrapper(runner remote.Runner, glue awsapi.GlueAPI, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{runner: runner, glue: glue, logger: logger}
}

// HomeDirCommands returns the idempotent commands that give user a home
// directory on the cluster's HDFS.
func HomeDirCommands(master, user string) []remote.Command {
	dir := fmt.Sprintf("hdfs://%s:8020/user/%s", master, user)
	env := []string{"HADOOP_USER_NAME=" + hdfsSuperuser}
	return []remote.Command{
		{Name: "hdfs", Args: []string{"dfs", "-mkdir", "-p", dir}, Env: env},
		{Name: "hdfs", Args: []string{"dfs", "-chown", user, dir}, Env: env},
	}
}

// CreateDatabasesCommand returns the beeline call creating every database.
func CreateDatabasesCommand(master string, databases []string) remote.Command {
	var stmts []string
	for _, db := range databases {
		stmts = append(stmts, fmt.Sprintf("create database if not exists `%s`;", db))
	}
	return remote.Command{
		Name: "beeline",
		Args: []string{"-u", fmt.Sprintf("jdbc:hive2://%s:10000", master), "-e", strings.Join(stmts, " ")},
	}
}

// CreateHomeDir creates and chowns the user's HDFS home directory.
func (b *Bootstrapper) CreateHomeDir(ctx context.Context, master, user string) error {
	if b.runner == nil {
		return fmt.Errorf("creating home directory for %s: no command runner configured", user)
	}
	for _, cmd := range HomeDirCommands(master, user) {
		if _, err := b.runner.Run(ctx, master, cmd); err != nil {
			return fmt.Errorf("creating home directory for %s: %w", user, err)
		}
	}
	b.logger.Info("home directory ready", "user", user, "master", master)
	return nil
}

// CreateDatabases creates the databases in the metastore. Glue catalogs are
// written through the Glue API; every other metastore goes through
// HiveServer2 on the master.
func (b *Bootstrapper) CreateDatabases(ctx context.Context, master string, databases []string, metastore config.Metastore) error {
	if glue, ok := metastore.(config.GlueCatalogMetastore); ok && b.glue != nil {
		if err := awsapi.EnsureDatabases(ctx, b.glue, glue.CatalogID, databases); err != nil {
			return err
		}
		b.logger.Info("glue databases ready", "databases", databases, "catalog", glue.CatalogID)
		return nil
	}

	if b.runner == nil {
		return fmt.Errorf("creating databases: no command runner configured")
	}
	if _, err := b.runner.Run(ctx, master, CreateDatabasesCommand(master, databases)); err != nil {
		return fmt.Errorf("creating databases %s: %w", strings.Join(databases, ","), err)
	}
	b.logger.Info("databases ready", "databases", databases, "master", master)
	return nil
}
