// Package preflight checks, before a cluster is created, that the caller's
// credentials work, that they allow every EMR call emrlift makes and that
// an external metastore database answers.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
)

const defaultTimeout = 10 * time.Second

var defaultPorts = map[string]string{
	"postgresql": "5432",
	"mysql":      "3306",
	"mariadb":    "3306",
	"sqlserver":  "1433",
	"oracle":     "1521",
}

// Check is the outcome of one verification.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report collects every check run.
type Report struct {
	Account string  `json:"account,omitempty"`
	ARN     string  `json:"arn,omitempty"`
	Checks  []Check `json:"checks"`
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

func (r *Report) add(name string, err error, detail string) {
	c := Check{Name: name, Passed: err == nil, Detail: detail}
	if err != nil {
		c.Detail = err.Error()
	}
	r.Checks = append(r.Checks, c)
}

// Checker runs the pre-flight checks.
type Checker struct {
	sts     awsapi.STSAPI
	iam     awsapi.IAMAPI
	timeout time.Duration
	logger  *slog.Logger

	pingPostgres func(ctx context.Context, connString, user, password string) error
	dial         func(ctx context.Context, network, address string) (net.Conn, error)
}

// New creates a Checker.
func New(sts awsapi.STSAPI, iam awsapi.IAMAPI, logger *slog.Logger) *Checker {
	d := &net.Dialer{}
	return &Checker{
		sts:          sts,
		iam:          iam,
		timeout:      defaultTimeout,
		logger:       logger,
		pingPostgres: pingPostgres,
		dial:         d.DialContext,
	}
}

// Run checks credentials, permissions and, when spec uses an external
// metastore, its reachability. Failed checks are recorded in the report;
// the returned error is only set when the caller identity is unknown and
// nothing else can be checked.
func (c *Checker) Run(ctx context.Context, spec *config.Spec) (*Report, error) {
	report := &Report{}

	id, err := awsapi.GetCallerIdentity(ctx, c.sts)
	if err != nil {
		report.add("credentials", err, "")
		return report, errdefs.Provider("GetCallerIdentity", "", err)
	}
	report.Account, report.ARN = id.Account, id.ARN
	report.add("credentials", nil, id.ARN)

	principal := PrincipalARN(id.ARN)
	allowed, err := awsapi.SimulateActions(ctx, c.iam, principal, awsapi.LifecycleActions)
	if err != nil {
		report.add("permissions", err, "")
	} else {
		actions := make([]string, 0, len(allowed))
		for a := range allowed {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		for _, a := range actions {
			var denied error
			if !allowed[a] {
				denied = fmt.Errorf("%s is not allowed for %s", a, principal)
			}
			report.add(a, denied, "allowed")
		}
	}

	if spec != nil {
		detail, err := c.checkMetastore(ctx, spec.Metastore)
		report.add("metastore", err, detail)
	}

	c.logger.Info("preflight finished", "account", id.Account, "checks", len(report.Checks), "ok", report.OK())
	return report, nil
}

func (c *Checker) checkMetastore(ctx context.Context, m config.Metastore) (detail string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch m := m.(type) {
	case config.LocalMetastore, nil:
		detail = "embedded on the master node"
	case config.GlueCatalogMetastore:
		detail = "AWS Glue Data Catalog"
	case config.MySQLMetastore:
		detail = withPort(m.Host, defaultPorts["mysql"])
		err = c.dialTCP(ctx, detail)
	case config.CustomJDBCMetastore:
		var scheme string
		scheme, detail, err = parseJDBC(m.URL)
		switch {
		case err != nil:
		case scheme == "postgresql":
			err = c.pingPostgres(ctx, strings.TrimPrefix(m.URL, "jdbc:"), m.User, m.Password)
		default:
			err = c.dialTCP(ctx, detail)
		}
	default:
		panic(fmt.Sprintf("unhandled metastore %T", m))
	}
	return detail, err
}

func (c *Checker) dialTCP(ctx context.Context, addr string) error {
	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn.Close()
}

func pingPostgres(ctx context.Context, connString, user, password string) error {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("parsing metastore URL: %w", err)
	}
	if user != "" {
		cfg.User = user
	}
	if password != "" {
		cfg.Password = password
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL metastore: %w", err)
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx)
}

// parseJDBC returns the subprotocol and host:port of a JDBC URL such as
// jdbc:mysql://db.internal:3306/hive.
func parseJDBC(raw string) (scheme, addr string, err error) {
	if !strings.HasPrefix(raw, "jdbc:") {
		return "", "", errdefs.Configf("metastore.jdbc_url", "%q is not a JDBC URL", raw)
	}
	u, err := url.Parse(strings.TrimPrefix(raw, "jdbc:"))
	if err != nil || u.Host == "" {
		return "", "", errdefs.Configf("metastore.jdbc_url", "cannot find a host in %q", raw)
	}
	port := u.Port()
	if port == "" {
		port = defaultPorts[u.Scheme]
	}
	if port == "" {
		return "", "", errdefs.Configf("metastore.jdbc_url", "no port in %q", raw)
	}
	return u.Scheme, net.JoinHostPort(u.Hostname(), port), nil
}

func withPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}

// PrincipalARN turns an STS assumed-role ARN into the IAM role ARN that
// policy simulation accepts. Other ARNs are returned unchanged.
func PrincipalARN(arn string) string {
	// arn:aws:sts::123456789012:assumed-role/Role/session
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) != 6 || parts[2] != "sts" || !strings.HasPrefix(parts[5], "assumed-role/") {
		return arn
	}
	resource := strings.Split(parts[5], "/")
	if len(resource) < 2 {
		return arn
	}
	return fmt.Sprintf("arn:%s:iam::%s:role/%s", parts[1], parts[4], resource[1])
}
