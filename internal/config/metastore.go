package config

import (
	"github.com/emrlift/emrlift/internal/errdefs"
)

// MetastoreMode names the Hive metastore backing a cluster.
type MetastoreMode string

const (
	MetastoreLocal      MetastoreMode = "LOCAL"
	MetastoreCustomJDBC MetastoreMode = "CUSTOM_JDBC"
	MetastoreMySQL      MetastoreMode = "MYSQL"
	MetastoreGlue       MetastoreMode = "AWS_GLUE_DATA_CATALOG"
)

// MetastoreConfig is the loosely typed metastore section of a ClusterConfig.
type MetastoreConfig struct {
	Mode          MetastoreMode `yaml:"mode,omitempty"`
	JDBCURL       string        `yaml:"jdbc_url,omitempty"`
	JDBCDriver    string        `yaml:"jdbc_driver,omitempty"`
	JDBCUser      string        `yaml:"jdbc_user,omitempty"`
	JDBCPassword  string        `yaml:"jdbc_password,omitempty"`
	MySQLHost     string        `yaml:"mysql_host,omitempty"`
	MySQLUser     string        `yaml:"mysql_user,omitempty"`
	MySQLPassword string        `yaml:"mysql_password,omitempty"`
	GlueCatalogID string        `yaml:"glue_catalog_id,omitempty"`
}

// Metastore is one of LocalMetastore, CustomJDBCMetastore, MySQLMetastore or
// GlueCatalogMetastore. The set is closed.
type Metastore interface {
	Mode() MetastoreMode
	isMetastore()
}

// LocalMetastore keeps the metastore on the master node's embedded database.
type LocalMetastore struct{}

// CustomJDBCMetastore points Hive at an arbitrary JDBC database.
type CustomJDBCMetastore struct {
	URL      string
	Driver   string
	User     string
	Password string
}

// MySQLMetastore points Hive at a MySQL/MariaDB host, database "hive".
type MySQLMetastore struct {
	Host     string
	User     string
	Password string
}

// GlueCatalogMetastore uses the AWS Glue Data Catalog. An empty CatalogID is
// filled with the caller's account id at provisioning time.
type GlueCatalogMetastore struct {
	CatalogID string
}

func (LocalMetastore) Mode() MetastoreMode       { return MetastoreLocal }
func (CustomJDBCMetastore) Mode() MetastoreMode  { return MetastoreCustomJDBC }
func (MySQLMetastore) Mode() MetastoreMode       { return MetastoreMySQL }
func (GlueCatalogMetastore) Mode() MetastoreMode { return MetastoreGlue }

func (LocalMetastore) isMetastore()       {}
func (CustomJDBCMetastore) isMetastore()  {}
func (MySQLMetastore) isMetastore()       {}
func (GlueCatalogMetastore) isMetastore() {}

// Resolve validates the section and returns the matching variant. Fields
// belonging to another mode are rejected as contradictory.
func (m MetastoreConfig) Resolve() (Metastore, error) {
	jdbcSet := m.JDBCURL != "" || m.JDBCDriver != "" || m.JDBCUser != "" || m.JDBCPassword != ""
	mysqlSet := m.MySQLHost != "" || m.MySQLUser != "" || m.MySQLPassword != ""
	glueSet := m.GlueCatalogID != ""

	switch m.Mode {
	case "", MetastoreLocal:
		if jdbcSet || mysqlSet || glueSet {
			return nil, errdefs.Configf("metastore.mode", "mode %s takes no connection settings", MetastoreLocal)
		}
		return LocalMetastore{}, nil

	case MetastoreCustomJDBC:
		if mysqlSet || glueSet {
			return nil, errdefs.Configf("metastore", "mysql or glue settings given with mode %s", m.Mode)
		}
		if m.JDBCURL == "" {
			return nil, errdefs.Configf("metastore.jdbc_url", "required for mode %s", m.Mode)
		}
		if m.JDBCDriver == "" {
			return nil, errdefs.Configf("metastore.jdbc_driver", "required for mode %s", m.Mode)
		}
		return CustomJDBCMetastore{URL: m.JDBCURL, Driver: m.JDBCDriver, User: m.JDBCUser, Password: m.JDBCPassword}, nil

	case MetastoreMySQL:
		if jdbcSet || glueSet {
			return nil, errdefs.Configf("metastore", "jdbc or glue settings given with mode %s", m.Mode)
		}
		if m.MySQLHost == "" {
			return nil, errdefs.Configf("metastore.mysql_host", "required for mode %s", m.Mode)
		}
		return MySQLMetastore{Host: m.MySQLHost, User: m.MySQLUser, Password: m.MySQLPassword}, nil

	case MetastoreGlue:
		if jdbcSet || mysqlSet {
			return nil, errdefs.Configf("metastore", "jdbc or mysql settings given with mode %s", m.Mode)
		}
		return GlueCatalogMetastore{CatalogID: m.GlueCatalogID}, nil

	default:
		return nil, errdefs.Configf("metastore.mode", "unknown mode %q", m.Mode)
	}
}
