package commands

import (
	"context"
	"time"

	"github.com/openconverge/converge/pkg/config"
	"github.com/openconverge/converge/pkg/engine"
	"github.com/openconverge/converge/pkg/registry"
	"github.com/openconverge/converge/pkg/stores"
	"github.com/openconverge/converge/pkg/telemetry"
	"github.com/openconverge/converge/pkg/transports/ssh"
	"github.com/openconverge/converge/resources/archive"
	"github.com/openconverge/converge/resources/remotefile"
	"github.com/openconverge/converge/resources/sentinel"
	"github.com/openconverge/converge/resources/sqlitelogin"
)

// shutdownTimeout bounds the final telemetry flush.
const shutdownTimeout = 5 * time.Second

// wrapStartup resolves the exit code for failures that happen before any
// resource type is known, against the default table.
func wrapStartup(err error) error {
	return engine.DefaultExitTable().WrapExit(err)
}

// app wires one invocation: configuration, telemetry, the resource registry,
// and the engine runner. A converge process serves exactly one operation, so
// everything here is built for that operation and torn down right after.
type app struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	registry *registry.Registry
	runner   *engine.Runner

	authDB  *stores.AuthDB
	dbReady bool
}

// newApp loads configuration, starts telemetry, and registers every resource
// type this binary serves.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, engine.NewInvalidArgumentError("invalid configuration", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if jsonLog {
		cfg.LogFormat = "json"
	}

	telCfg := cfg.Telemetry(appVersion)
	tel, err := telemetry.NewTelemetry(&telCfg)
	if err != nil {
		return nil, engine.NewGenericError("failed to start telemetry", err)
	}

	authDB, err := stores.New(stores.Config{Path: cfg.AuthDBPath})
	if err != nil {
		return nil, engine.NewInvalidArgumentError("invalid auth database path", err)
	}

	a := &app{
		cfg:      cfg,
		tel:      tel,
		runner:   engine.NewRunner(engine.WithTelemetry(tel)),
		authDB:   authDB,
		registry: registry.New(),
	}

	a.registry.MustRegister(sentinel.New(cfg.SentinelStateDir))
	a.registry.MustRegister(sqlitelogin.New(authDB))
	a.registry.MustRegister(archive.New())
	a.registry.MustRegister(remotefile.New(a.sshBase()))

	return a, nil
}

// sshBase builds the connection template for remote file management. The
// host slot stays empty; each desired state fills it.
func (a *app) sshBase() ssh.Config {
	base := ssh.DefaultConfig("", a.cfg.SSHUser)
	if a.cfg.SSHPrivateKey != "" {
		base.PrivateKeyPath = a.cfg.SSHPrivateKey
	}
	if a.cfg.SSHKnownHosts != "" {
		base.KnownHostsPath = a.cfg.SSHKnownHosts
	}
	if a.cfg.SSHConnectTimeout > 0 {
		base.ConnectTimeout = a.cfg.SSHConnectTimeout
	}
	return *base
}

// resolve looks up the resource type and prepares the backend it needs. The
// auth database opens lazily so an invocation against one resource type
// never depends on another type's backend.
func (a *app) resolve(ctx context.Context, typeName string) (engine.Resource, engine.ExitTable, error) {
	res, err := a.registry.Get(typeName)
	if err != nil {
		return nil, engine.DefaultExitTable(), err
	}
	table := res.TypeInfo().ExitTableOrDefault()

	if typeName == sqlitelogin.TypeName {
		if err := a.openAuthDB(ctx); err != nil {
			return nil, table, err
		}
	}
	return res, table, nil
}

func (a *app) openAuthDB(ctx context.Context) error {
	if a.dbReady {
		return nil
	}
	if err := a.authDB.Init(ctx); err != nil {
		return engine.NewGenericError("failed to open auth database", err)
	}
	if err := a.authDB.Migrate(ctx); err != nil {
		_ = a.authDB.Close()
		return engine.NewGenericError("failed to migrate auth database", err)
	}
	a.dbReady = true
	return nil
}

// Close tears the invocation down: backends first, then telemetry, whose
// shutdown performs the final metrics flush. The shutdown context is fresh
// so a cancelled invocation still gets its telemetry out.
func (a *app) Close() {
	if a.dbReady {
		if err := a.authDB.Close(); err != nil {
			a.tel.Logger.WithError(err).Warn("Failed to close auth database")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.tel.Logger.WithError(err).Warn("Telemetry shutdown failed")
	}
}
