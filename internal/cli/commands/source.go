package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/addrspace"
	"github.com/conduit-lang/uadiscover/internal/cli/config"
	"github.com/conduit-lang/uadiscover/internal/discovery"
	"github.com/conduit-lang/uadiscover/internal/session"
)

var (
	errNoSource   = errors.New("no source configured: set --endpoint or --snapshot")
	errOpenSource = errors.New("open source")
)

// addSourceFlags registers the flags shared by commands that run discovery
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("endpoint", "", "OPC UA endpoint URL (opc.tcp://host:port)")
	cmd.Flags().String("snapshot", "", "Address space snapshot file (YAML)")
	cmd.Flags().Int("concurrency", 0, "Dictionaries extracted at once (0 keeps the configured value)")
	cmd.Flags().Bool("no-verify", false, "Skip the constructor check after extraction")
}

// loadConfig loads the configuration and applies the command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint, _ = flags.GetString("endpoint")
		cfg.Snapshot = ""
	}
	if flags.Changed("snapshot") {
		cfg.Snapshot, _ = flags.GetString("snapshot")
		if !flags.Changed("endpoint") {
			cfg.Endpoint = ""
		}
	}
	if n, _ := flags.GetInt("concurrency"); n > 0 {
		cfg.Discovery.Concurrency = n
	}
	if skip, _ := flags.GetBool("no-verify"); skip {
		cfg.Discovery.Verify = false
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		cfg.Serve.Addr, _ = flags.GetString("addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSession returns the session described by cfg and the function that
// releases it
func openSession(ctx context.Context, cfg *config.Config) (session.Session, func(), error) {
	switch {
	case cfg.Snapshot != "":
		space, err := addrspace.LoadSnapshotFile(cfg.Snapshot)
		if err != nil {
			return nil, nil, fmt.Errorf("load snapshot: %w", err)
		}
		return space, func() {}, nil

	case cfg.Endpoint != "":
		c, err := session.Dial(ctx, cfg.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		return session.NewClient(c), func() { _ = c.Close(context.Background()) }, nil

	default:
		return nil, nil, errNoSource
	}
}

// run is one discovery run over a configured source
type run struct {
	manager *discovery.Manager
	report  *discovery.Report
	stats   session.Stats
}

func discover(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*run, error) {
	s, release, err := openSession(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errOpenSource, err)
	}
	defer release()

	counting := session.NewCounting(s)
	m := discovery.NewManager()
	rep, err := discovery.Populate(ctx, counting, m,
		discovery.WithLogger(logger.Named("discovery")),
		discovery.WithTracer(otel.Tracer("github.com/conduit-lang/uadiscover")),
		discovery.WithConcurrency(cfg.Discovery.Concurrency),
		discovery.WithVerify(cfg.Discovery.Verify),
	)
	if err != nil {
		return nil, err
	}
	return &run{manager: m, report: rep, stats: counting.Stats()}, nil
}
