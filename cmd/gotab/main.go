package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hfi/gotab/internal/apperr"
	"github.com/hfi/gotab/internal/audit"
	"github.com/hfi/gotab/internal/config"
	"github.com/hfi/gotab/internal/logging"
	"github.com/hfi/gotab/internal/manager"
	"github.com/hfi/gotab/internal/mapping"
	"github.com/hfi/gotab/internal/resolver"
	"github.com/hfi/gotab/internal/storage"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Exit codes
const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
)

// app holds everything a command needs once configuration is loaded
type app struct {
	configPath string

	cfg      *config.Config
	logger   zerolog.Logger
	backend  storage.Backend
	store    *mapping.Store
	auditor  *audit.Logger
	manager  *manager.Manager
	resolver *resolver.Resolver
}

// open loads configuration and wires the store. source names the surface
// in audit events.
func open(configPath string, stderr io.Writer, source string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LoggerConfig(), stderr)
	if err != nil {
		return nil, err
	}

	// A disabled audit logger writes nothing but can be enabled on reload
	auditCfg := cfg.Logging.Audit
	auditor, err := audit.NewLogger(&auditCfg)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	backend, err := storage.New(cfg.StorageOptions())
	if err != nil {
		auditor.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	store := mapping.NewStore(backend, cfg.Storage.Key)
	logger.Debug().Str("storage", cfg.Storage.Type).Str("key", cfg.Storage.Key).Msg("storage opened")

	return &app{
		configPath: configPath,

		cfg:      cfg,
		logger:   logger,
		backend:  backend,
		store:    store,
		auditor:  auditor,
		manager:  manager.New(store, auditor, logger, source),
		resolver: resolver.New(store, cfg.Resolver.SearchURL),
	}, nil
}

// loadConfig reads configPath, or the default location when it is empty,
// and validates the result
func loadConfig(configPath string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// reloadAudit re-reads the configuration and applies its audit switch and
// level. Output, format and URL redaction keep their startup values.
func (a *app) reloadAudit() error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}

	settings := cfg.Logging.Audit
	if settings.Enabled {
		a.auditor.Enable()
	} else {
		a.auditor.Disable()
	}
	a.auditor.SetLevel(settings.Level)
	a.logger.Info().Bool("enabled", settings.Enabled).Str("level", settings.Level).Msg("audit settings reloaded")
	return nil
}

func (a *app) close() {
	if err := a.backend.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close storage")
	}
	if err := a.auditor.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close audit log")
	}
}

// cli carries the root flags and the lazily opened app
type cli struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
	stdin      io.Reader
	app        *app
}

func (c *cli) open(source string) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := open(c.configPath, c.stderr, source)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) close() {
	if c.app != nil {
		c.app.close()
		c.app = nil
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "gotab",
		Short: "Keyword shortcuts for the browser address bar",
		Long: `gotab maps short keywords to URLs. Typing a keyword in the address bar
opens its URL; anything else becomes a web search.

Mappings are kept in a single document in the configured storage backend
(a JSON file by default, or Redis) and can be exported and imported as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.SetIn(c.stdin)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to config file (default $GOTAB_CONFIG or ./config.yaml)")

	root.AddCommand(
		newServeCmd(c),
		newAddCmd(c),
		newRemoveCmd(c),
		newListCmd(c),
		newExportCmd(c),
		newImportCmd(c),
		newResolveCmd(c),
		newVersionCmd(c),
	)
	return root
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(c.stdout, "gotab %s\n", Version)
			fmt.Fprintf(c.stdout, "Git Commit: %s\n", GitCommit)
			fmt.Fprintf(c.stdout, "Build Time: %s\n", BuildTime)
		},
	}
}

// run executes the CLI and returns the process exit code
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr, stdin: stdin}
	defer c.close()

	root := newRootCmd(c)
	root.SetArgs(args)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	if apperr.IsValidation(err) {
		return exitValidation
	}
	return exitFailure
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
