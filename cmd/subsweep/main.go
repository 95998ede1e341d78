package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vulnverified/subsweep/internal/config"
	"github.com/vulnverified/subsweep/internal/engine"
	"github.com/vulnverified/subsweep/internal/output"
	"github.com/vulnverified/subsweep/internal/recon"
	"github.com/vulnverified/subsweep/internal/wordlist"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	output.Version = version
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		flags      = config.Default()
		configPath string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:           "subsweep <domain>",
		Short:         "Brute-force subdomains of a domain",
		Long:          "Active subdomain enumeration: resolves wordlist candidates under a domain through a bounded worker pool, with optional HTTP or TCP liveness probing.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetOutput(os.Stderr)
			log.SetLevel(log.WarnLevel)
			if debug {
				log.SetLevel(log.DebugLevel)
				log.Debugf("debug logging enabled")
			}

			opts := config.Default()
			if configPath != "" {
				var err error
				if opts, err = config.Load(configPath); err != nil {
					return report(err)
				}
			}
			overlayFlags(cmd, &opts, flags)

			// Respect NO_COLOR env var.
			if _, ok := os.LookupEnv("NO_COLOR"); ok {
				opts.NoColor = true
			}
			if err := opts.Validate(); err != nil {
				return report(err)
			}
			return run(cmd.Context(), args[0], opts)
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&flags.Wordlist, "wordlist", "w", "", "Wordlist file, one label per line (default: embedded list)")
	f.IntVarP(&flags.Concurrency, "concurrency", "c", flags.Concurrency, "Max concurrent resolutions")
	f.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "Per-resolution timeout")
	f.DurationVar(&flags.ScanTimeout, "scan-timeout", 0, "Stop the whole scan after this long (0 = no limit)")
	f.Float64Var(&flags.Rate, "rate", 0, "Max resolutions per second (0 = unlimited)")
	f.StringVar(&flags.CancelPolicy, "cancel-policy", flags.CancelPolicy, "On cancel: drain in-flight resolutions or abandon them")
	f.StringSliceVar(&flags.Resolvers, "resolvers", nil, "DNS servers to query, host[:port] (default: system resolver)")
	f.BoolVar(&flags.Wildcard, "wildcard", false, "Detect wildcard DNS and mark hosts that only match it")
	f.StringVar(&flags.Probe, "probe", flags.Probe, "Liveness probe for found hosts: none, http or tcp")
	f.IntVar(&flags.ProbePort, "probe-port", 0, "Port for the liveness probe (default: 80/443 for http, 80 for tcp)")
	f.DurationVar(&flags.ProbeTimeout, "probe-timeout", 0, "Per-probe timeout, separate from the resolution timeout (default: --timeout)")
	f.StringVar(&flags.UserAgent, "user-agent", "", "User-Agent for the HTTP probe")
	f.BoolVar(&flags.JSON, "json", false, "Output structured JSON to stdout")
	f.StringVarP(&flags.Output, "output", "o", "", "Also write a plain-text report to this file")
	f.BoolVar(&flags.All, "all", false, "List every candidate, not only found hosts")
	f.BoolVar(&flags.NoColor, "no-color", false, "Disable terminal colors")
	f.BoolVar(&flags.Silent, "silent", false, "Results only, no progress")
	f.BoolVarP(&flags.Verbose, "verbose", "v", false, "Print every completed candidate")
	f.BoolVar(&debug, "debug", false, "Enable debug logging")
	f.StringVar(&configPath, "config", "", "YAML config file; flags given on the command line override it")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("subsweep {{.Version}}\n")
	return rootCmd
}

// overlayFlags copies the flags set on the command line onto opts.
func overlayFlags(cmd *cobra.Command, opts *config.Options, flags config.Options) {
	set := map[string]func(){
		"wordlist":      func() { opts.Wordlist = flags.Wordlist },
		"concurrency":   func() { opts.Concurrency = flags.Concurrency },
		"timeout":       func() { opts.Timeout = flags.Timeout },
		"scan-timeout":  func() { opts.ScanTimeout = flags.ScanTimeout },
		"rate":          func() { opts.Rate = flags.Rate },
		"cancel-policy": func() { opts.CancelPolicy = flags.CancelPolicy },
		"resolvers":     func() { opts.Resolvers = flags.Resolvers },
		"wildcard":      func() { opts.Wildcard = flags.Wildcard },
		"probe":         func() { opts.Probe = flags.Probe },
		"probe-port":    func() { opts.ProbePort = flags.ProbePort },
		"probe-timeout": func() { opts.ProbeTimeout = flags.ProbeTimeout },
		"user-agent":    func() { opts.UserAgent = flags.UserAgent },
		"json":          func() { opts.JSON = flags.JSON },
		"output":        func() { opts.Output = flags.Output },
		"all":           func() { opts.All = flags.All },
		"no-color":      func() { opts.NoColor = flags.NoColor },
		"silent":        func() { opts.Silent = flags.Silent },
		"verbose":       func() { opts.Verbose = flags.Verbose },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

func run(ctx context.Context, domain string, opts config.Options) error {
	words, err := wordlist.Load(opts.Wordlist)
	if err != nil {
		return report(err)
	}

	resolver, err := newResolver(opts)
	if err != nil {
		return report(err)
	}

	// Set up context with signal handling for clean Ctrl+C.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, stopping scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	showProgress := !opts.JSON && !opts.Silent
	if showProgress {
		output.WriteHeader(os.Stderr, opts.NoColor)
	}

	// Found hosts are printed live unless the bar owns the terminal.
	useBar := showProgress && output.IsTerminal(os.Stderr)
	live := !useBar || opts.Verbose
	sinks := engine.MultiSink{
		output.NewPrinter(os.Stderr, opts.Verbose, !showProgress, live, opts.NoColor),
	}
	if useBar && !opts.Verbose {
		sinks = append(sinks, output.NewBar(os.Stderr, opts.NoColor))
	}

	started := time.Now()
	sess, err := engine.Run(ctx, resolver, sinks, domain, words, opts.EngineOptions())
	if err != nil {
		if sess.State == engine.StateFailed || errors.Is(err, engine.ErrEmptyWordlist) {
			// The printer already reported it.
			return err
		}
		return report(err)
	}
	log.WithFields(log.Fields{
		"domain":  sess.Domain,
		"state":   sess.State,
		"elapsed": time.Since(started),
	}).Debug("scan finished")

	rep := engine.NewReport(sess, opts.All)
	if opts.Output != "" {
		if err := output.WriteTextFile(opts.Output, rep); err != nil {
			return report(err)
		}
	}
	if opts.JSON {
		return output.WriteJSON(os.Stdout, rep)
	}
	output.WriteTable(os.Stdout, rep, opts.NoColor)
	if !opts.Silent {
		output.WriteSummary(os.Stdout, rep, opts.NoColor)
	}
	return nil
}

func newResolver(opts config.Options) (*recon.Resolver, error) {
	var lookup recon.Lookup
	if len(opts.Resolvers) > 0 {
		dl, err := recon.NewDNSLookup(opts.Resolvers, opts.Timeout)
		if err != nil {
			return nil, err
		}
		lookup = dl
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = fmt.Sprintf("subsweep/%s", version)
	}
	prober, err := recon.NewProber(recon.ProbeMode(opts.Probe), opts.ProbePort, opts.EffectiveProbeTimeout(), ua)
	if err != nil {
		return nil, err
	}
	return recon.NewResolver(lookup, prober), nil
}

func report(err error) error {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	return err
}
