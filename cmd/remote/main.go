// Command mfremote serves the entry manifest of a bundled remote so a shell
// can fetch it over HTTP.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/najoast/mfshell/config"
	"github.com/najoast/mfshell/httpserver"
	"github.com/najoast/mfshell/logging"
	"github.com/najoast/mfshell/remotehost"
	"github.com/najoast/mfshell/remotes"
)

type options struct {
	configFile   string
	port         int
	manifestFile string
	allowOrigin  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "mfremote",
		Short:        "Serve a bundled remote's entry manifest",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Configuration file (default: discovered)")

	serveCmd := &cobra.Command{
		Use:   "serve [remote]",
		Short: "Serve /remoteEntry.json for a remote",
		Long: `Serves the entry manifest of a bundled remote at /remoteEntry.json.
The remote defaults to the configured remote.name. With --manifest-file the
file is served instead and reloaded whenever it changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, args)
		},
	}
	serveCmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Listen port (default: from configuration)")
	serveCmd.Flags().StringVar(&opts.manifestFile, "manifest-file", "", "Serve this manifest file instead of the compiled one")
	serveCmd.Flags().StringVar(&opts.allowOrigin, "allow-origin", "", "Access-Control-Allow-Origin value")

	manifestCmd := &cobra.Command{
		Use:   "manifest <remote>",
		Short: "Print a remote's entry manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := remotes.Lookup(args[0], nil)
			if err != nil {
				return err
			}
			return reg.Manifest().Encode(cmd.OutOrStdout())
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List bundled remotes and their exposed units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundled := remotes.Bundled(nil)
			for _, name := range remotes.Names() {
				m := bundled[name].Manifest()
				exposes := make([]string, 0, len(m.Exposes))
				for exposed := range m.Exposes {
					exposes = append(exposes, exposed)
				}
				sort.Strings(exposes)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", name, exposes)
			}
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, manifestCmd, listCmd)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := config.NewLoader().Load(opts.configFile)
	if err != nil {
		return err
	}
	rc := cfg.Remote
	if len(args) == 1 {
		rc.Name = args[0]
	}
	if opts.port != 0 {
		rc.HTTP.Port = opts.port
	}
	if opts.manifestFile != "" {
		rc.ManifestFile = opts.manifestFile
	}
	if opts.allowOrigin != "" {
		rc.AllowOrigin = opts.allowOrigin
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("remote", rc.Name))

	reg, err := remotes.Lookup(rc.Name, logger)
	if err != nil {
		return err
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector())
	if !cfg.Monitor.Enabled {
		metrics = nil
	}

	host, err := remotehost.New(remotehost.Options{
		Registry:     reg,
		ManifestFile: rc.ManifestFile,
		AllowOrigin:  rc.AllowOrigin,
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		return err
	}
	if err := host.Start(); err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := httpserver.New(rc.Name, rc.HTTP, host.Handler(), logger)
	return server.Start(ctx)
}
