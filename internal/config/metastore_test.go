package config

import (
	"testing"

	"github.com/emrlift/emrlift/internal/errdefs"
)

func TestMetastoreResolve(t *testing.T) {
	tests := []struct {
		name    string
		cfg     MetastoreConfig
		want    Metastore
		wantErr bool
	}{
		{"empty is local", MetastoreConfig{}, LocalMetastore{}, false},
		{"explicit local", MetastoreConfig{Mode: MetastoreLocal}, LocalMetastore{}, false},
		{
			"custom jdbc",
			MetastoreConfig{Mode: MetastoreCustomJDBC, JDBCURL: "jdbc:postgresql://db/hive", JDBCDriver: "org.postgresql.Driver", JDBCUser: "u", JDBCPassword: "p"},
			CustomJDBCMetastore{URL: "jdbc:postgresql://db/hive", Driver: "org.postgresql.Driver", User: "u", Password: "p"},
			false,
		},
		{"custom jdbc without url", MetastoreConfig{Mode: MetastoreCustomJDBC, JDBCDriver: "d"}, nil, true},
		{"custom jdbc without driver", MetastoreConfig{Mode: MetastoreCustomJDBC, JDBCURL: "jdbc:x"}, nil, true},
		{
			"mysql",
			MetastoreConfig{Mode: MetastoreMySQL, MySQLHost: "db", MySQLUser: "hive", MySQLPassword: "pw"},
			MySQLMetastore{Host: "db", User: "hive", Password: "pw"},
			false,
		},
		{"mysql without host", MetastoreConfig{Mode: MetastoreMySQL, MySQLUser: "hive"}, nil, true},
		{"glue", MetastoreConfig{Mode: MetastoreGlue}, GlueCatalogMetastore{}, false},
		{"glue with catalog", MetastoreConfig{Mode: MetastoreGlue, GlueCatalogID: "111"}, GlueCatalogMetastore{CatalogID: "111"}, false},
		{"mysql fields under jdbc", MetastoreConfig{Mode: MetastoreCustomJDBC, JDBCURL: "u", JDBCDriver: "d", MySQLHost: "db"}, nil, true},
		{"jdbc fields under glue", MetastoreConfig{Mode: MetastoreGlue, JDBCURL: "u"}, nil, true},
		{"settings under local", MetastoreConfig{MySQLHost: "db"}, nil, true},
		{"unknown", MetastoreConfig{Mode: "ORACLE"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.Resolve()
			if tt.wantErr {
				if !errdefs.IsConfig(err) {
					t.Fatalf("expected ConfigError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestMetastoreModes(t *testing.T) {
	variants := map[Metastore]MetastoreMode{
		LocalMetastore{}:       MetastoreLocal,
		CustomJDBCMetastore{}:  MetastoreCustomJDBC,
		MySQLMetastore{}:       MetastoreMySQL,
		GlueCatalogMetastore{}: MetastoreGlue,
	}
	for m, want := range variants {
		if m.Mode() != want {
			t.Errorf("%T.Mode() = %s, want %s", m, m.Mode(), want)
		}
	}
}
