package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rochus-keller/FlowLine2/internal/logging"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

// rootOptions carries the global flags and the configuration resolved
// from them before any subcommand runs.
type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
	format     string
	readOnly   bool
	// changed records which of the flags above were given.
	changed map[string]bool

	cfg    Config
	level  *slog.LevelVar
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{level: new(slog.LevelVar)}
	root := &cobra.Command{
		Use:   "flowline",
		Short: "Edit and inspect event-driven process chain repositories",
		Long: `flowline works on a repository of EPC diagrams stored in a libSQL database.

It lays diagrams out with graphviz, exports and imports processes as
process streams, checks diagrams against CEL lint rules, queries their
items and serves all of this to agents over MCP.

Configuration is read from ~/.flowline/settings.yaml and FLOWLINE_*
environment variables; flags override both.

Examples:
  flowline diagrams                          # List diagrams and processes
  flowline layout 12 --ortho                 # Lay diagram 12 out
  flowline export 40 -o order.json           # Export process 40
  flowline import order.json --into 12       # Import it into diagram 12
  flowline check --rules rules.yaml          # Lint every diagram
  flowline query 12 'type == "event" && succs == 0'
  flowline serve --sse                       # MCP over SSE`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.resolve(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Path to settings file (default: ~/.flowline/settings.yaml)")
	pf.StringVar(&o.dbPath, "db", "", "Repository database path")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVarP(&o.format, "format", "f", "yaml", "Output format: yaml or json")
	pf.BoolVar(&o.readOnly, "read-only", false, "Refuse every edit")

	root.AddCommand(
		newDiagramsCmd(o),
		newLayoutCmd(o),
		newExportCmd(o),
		newImportCmd(o),
		newCheckCmd(o),
		newQueryCmd(o),
		newSweepCmd(o),
		newServeCmd(o),
		newVersionCmd(),
	)
	return root
}

// resolve loads the configuration, applies flag overrides and builds the
// logger on stderr.
func (o *rootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	o.changed = make(map[string]bool)
	for _, name := range []string{"db", "log-level", "read-only"} {
		o.changed[name] = cmd.Flags().Changed(name)
	}
	o.applyFlags(&cfg)
	if o.format != "yaml" && o.format != "json" {
		return fmt.Errorf("unknown output format %q", o.format)
	}
	o.cfg = cfg
	o.level.Set(logging.ParseLevel(cfg.LogLevel))
	inner := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: o.level})
	o.logger = slog.New(logging.NewCorrelationHandler(inner))
	return nil
}

func (o *rootOptions) applyFlags(cfg *Config) {
	if o.changed["db"] {
		cfg.DBPath = o.dbPath
	}
	if o.changed["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if o.changed["read-only"] {
		cfg.ReadOnly = o.readOnly
	}
}

// reload reads the configuration again and applies the fields that can
// change while serving. The returned diff also names the fields that
// only take effect after a restart.
func (o *rootOptions) reload() (configDiff, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return configDiff{}, err
	}
	o.applyFlags(&cfg)
	d := diffConfigs(o.cfg, cfg)
	if d.LogLevelChanged {
		o.cfg.LogLevel = cfg.LogLevel
		o.level.Set(logging.ParseLevel(cfg.LogLevel))
	}
	o.cfg.ReadOnly = cfg.ReadOnly
	o.cfg.StrictSyntax = cfg.StrictSyntax
	o.cfg.Layout.Ortho = cfg.Layout.Ortho
	o.cfg.LintRules = cfg.LintRules
	return d, nil
}

// render writes v in the selected output format.
func (o *rootOptions) render(w io.Writer, v any) error {
	if o.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func parseOID(arg string) (store.OID, error) {
	n, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || n == 0 {
		return store.Nil, fmt.Errorf("%q is not an object id", arg)
	}
	return store.OID(n), nil
}
