// Package cli wires configuration, package managers, the sync runner and
// notifications into the package-sync command.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nholik/package-sync/internal/config"
	"github.com/nholik/package-sync/internal/logging"
	"github.com/nholik/package-sync/internal/manager"
	"github.com/nholik/package-sync/internal/metrics"
	"github.com/nholik/package-sync/internal/notify"
	"github.com/nholik/package-sync/internal/runner"
	"github.com/nholik/package-sync/internal/state"
	"github.com/nholik/package-sync/internal/upgrade"
	"github.com/rs/zerolog"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)

const usage = "usage: package-sync [flags] <machine-name>"

// App is the package-sync command. Zero values use the real system.
type App struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Executor manager.Executor
	Now      func() time.Time
}

type flags struct {
	machine    string
	primary    bool
	promote    bool
	update     bool
	dryRun     bool
	configPath string
}

// Run executes one sync and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	stderr := a.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "package-sync: %v\n", err)
		return ExitFatal
	}
	if opts.configPath != "" {
		cfg.StatePath = opts.configPath
	}

	stdout := a.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	logger := logging.NewWithWriter(stdout, cfg.LogLevel)

	if err := a.sync(ctx, logger, cfg, opts); err != nil {
		logger.Error().Err(err).Msg("sync failed")
		if errors.Is(err, runner.ErrMachineRequired) {
			return ExitUsage
		}
		return ExitFatal
	}
	return ExitOK
}

func (a *App) sync(ctx context.Context, logger zerolog.Logger, cfg config.Config, opts flags) error {
	overrides, err := config.LoadManagersFile(cfg.ManagersFile)
	if err != nil {
		return err
	}
	managers := manager.NewAll(a.Executor, overrides)

	notifier, err := buildNotifier(logger, cfg, opts.dryRun)
	if err != nil {
		return err
	}

	logger.Info().
		Str("machine", opts.machine).
		Str("state_path", cfg.StatePath).
		Bool("dry_run", opts.dryRun).
		Msg("package-sync starting")

	if opts.update {
		if opts.dryRun {
			logger.Info().Msg("dry run; skipping upgrade pass")
		} else {
			result := upgrade.New(logger, cfg.UpdateTimeout).Run(ctx, managers)
			if err := result.Err(); err != nil {
				logger.Warn().Err(err).Msg("upgrade pass finished with failures")
			}
		}
	}

	collector := metrics.New()
	runnerOpts := []runner.Option{runner.WithMetrics(collector)}
	if a.Now != nil {
		runnerOpts = append(runnerOpts, runner.WithClock(a.Now))
	}

	store := state.NewFileStore(cfg.StatePath, logger)
	summary, err := runner.New(logger, store, managers, runnerOpts...).RunOnce(ctx, runner.Options{
		Machine:      opts.machine,
		ForcePrimary: opts.primary,
		Promote:      opts.promote,
		DryRun:       opts.dryRun,
	})
	if err != nil {
		return err
	}

	if failures := collectFailures(summary); len(failures) > 0 {
		logger.Warn().
			Int("count", len(failures)).
			Strs("failures", failures).
			Msg("some package operations failed")
	}

	if err := collector.WriteTextfile(cfg.MetricsTextfile); err != nil {
		logger.Warn().Err(err).Str("path", cfg.MetricsTextfile).Msg("failed to write metrics textfile")
	}

	if err := notifier.Notify(ctx, summary); err != nil {
		logger.Warn().Err(err).Msg("failed to deliver notification")
	}

	return nil
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var opts flags
	fs := flag.NewFlagSet("package-sync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.primary, "primary", false, "act as the primary machine; elects it if no primary is set")
	fs.BoolVar(&opts.promote, "promote", false, "make this machine the elected primary")
	fs.BoolVar(&opts.update, "update", false, "upgrade all packages of every available manager before syncing")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "show what would change without installing, removing or saving")
	fs.StringVar(&opts.configPath, "config", "", "state file path (overrides PKGSYNC_CONFIG_PATH)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), usage)
		fs.PrintDefaults()
	}

	// Flags may follow the machine name.
	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return flags{}, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	if len(positional) != 1 || strings.TrimSpace(positional[0]) == "" {
		fmt.Fprintln(stderr, "package-sync: exactly one machine name is required")
		fs.Usage()
		return flags{}, runner.ErrMachineRequired
	}
	opts.machine = strings.TrimSpace(positional[0])

	return opts, nil
}

func buildNotifier(logger zerolog.Logger, cfg config.Config, dryRun bool) (notify.Notifier, error) {
	targets := make([]notify.Notifier, 0, 2)
	if cfg.SlackWebhookURL != "" {
		targets = append(targets, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))
	}

	webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
	if err != nil {
		return nil, err
	}
	if webhook != nil {
		targets = append(targets, webhook)
	}

	if len(targets) == 0 {
		return notify.NewNoop(logger, "no notification targets configured"), nil
	}

	var notifier notify.Notifier = notify.NewMultiNotifier(targets...)
	if dryRun {
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier, nil
}

func collectFailures(summary runner.Summary) []string {
	var failures []string
	for _, report := range summary.Managers {
		failures = append(failures, report.Failures...)
	}
	return failures
}
