// Command mfshell runs the micro-frontend shell: it maps routes to exposed
// units of remotes and loads each remote's entry the first time one of its
// routes is visited.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/najoast/mfshell/bootstrap"
	"github.com/najoast/mfshell/config"
	"github.com/najoast/mfshell/logging"
	"github.com/najoast/mfshell/router"
)

type options struct {
	configFile string
	verbose    bool
	embedded   bool
	port       int
	actions    []string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "mfshell",
		Short: "Micro-frontend shell",
		Long: `mfshell hosts units published by independently deployed remotes.

Each route names a remote and one of its exposed units. The remote's entry
manifest is fetched on the first navigation to any of its routes, shared
libraries are negotiated, and the unit is mounted as the single active view.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Configuration file (default: discovered)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&opts.embedded, "embedded", false, "Serve the bundled remotes in-process")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the shell over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	serveCmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Listen port (default: from configuration)")

	navigateCmd := &cobra.Command{
		Use:   "navigate [path...]",
		Short: "Navigate through paths and print each resulting view",
		Long: `Navigates to each path in order and prints the view after every step.
Actions given with --action run on the unit active after the last path.

Example:
  mfshell navigate --embedded /mfe2 --action increment --action increment`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNavigate(cmd, opts, args)
		},
	}
	navigateCmd.Flags().StringArrayVarP(&opts.actions, "action", "a", nil, "Action to invoke on the final view (repeatable)")
	navigateCmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Timeout of each navigation")

	routesCmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the configured route table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			table, err := bootstrap.RouteTable(cfg.Shell)
			if err != nil {
				return err
			}
			printRoutes(cmd.OutOrStdout(), table)
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, navigateCmd, routesCmd)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.NewLoader().Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.embedded {
		cfg.Shell.Embedded = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	zcfg, err := logging.Config(cfg.Log)
	if err != nil {
		return nil, err
	}
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.port != 0 {
		cfg.HTTP.Port = opts.port
	}
	logger, err := newLogger(cfg, opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shell, err := bootstrap.New(cfg, bootstrap.WithLogger(logger), bootstrap.WithHTTPFront())
	if err != nil {
		return err
	}
	return shell.Run(cmd.Context())
}

func runNavigate(cmd *cobra.Command, opts *options, paths []string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	shell, err := bootstrap.New(cfg, bootstrap.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := shell.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = shell.Stop(context.Background()) }()

	out := cmd.OutOrStdout()
	var failed error
	for _, path := range paths {
		navCtx, cancel := context.WithTimeout(ctx, opts.timeout)
		outcome := shell.Navigate(navCtx, path)
		cancel()

		printOutcome(out, outcome)
		if outcome.Err != nil {
			failed = outcome.Err
		}
	}

	for _, action := range opts.actions {
		result, err := shell.Dispatch(action)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", action, result)
	}
	if len(opts.actions) > 0 {
		if _, unit, ok := shell.Resolver().Active(); ok {
			fmt.Fprintln(out, indent(unit.Render()))
		}
	}

	if failed != nil {
		return errors.New("one or more navigations failed")
	}
	return nil
}

func printOutcome(w io.Writer, o router.Outcome) {
	target := o.Requested
	if o.Route.Path != "" {
		target = "/" + o.Route.Path
	}
	switch {
	case o.Err != nil:
		fmt.Fprintf(w, "%s: error: %v\n", o.Requested, o.Err)
	case o.Stale:
		fmt.Fprintf(w, "%s: superseded\n", o.Requested)
	default:
		note := ""
		if o.Redirected {
			note = " (redirected)"
		} else if o.Reused {
			note = " (already active)"
		}
		fmt.Fprintf(w, "%s -> %s%s\n%s\n", o.Requested, target, note, indent(o.Unit.Render()))
	}
}

func printRoutes(w io.Writer, table *router.Table) {
	for _, r := range table.Routes() {
		marker := " "
		if r.Path == table.DefaultPath() {
			marker = "*"
		}
		fmt.Fprintf(w, "%s /%-12s %s %s\n", marker, r.Path, r.Ref.Remote.EntryLocation, r.Ref.ExposedName)
	}
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
