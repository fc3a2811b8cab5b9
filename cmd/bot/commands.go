package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"remindbot/internal/app"
	"remindbot/internal/config"
)

const defaultConfigPath = "./config.json"

func newRootCommand() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "remindbot",
		Short:         "Telegram bot for timed reminders and polls",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running without a subcommand starts the bot.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "path to config (json or yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the bot",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot(cmd.Context(), cfgPath)
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Validate the config file and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.NewConfigManager(cfgPath).Load()
				if err != nil {
					return fmt.Errorf("%s: %w", cfgPath, err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "config ok: %s\n", cfgPath)
				fmt.Fprintf(out, "  housekeeping: %t\n", cfg.HousekeepingEnabled())
				fmt.Fprintf(out, "  ops http:     %t\n", cfg.Ops.Enabled)
				return nil
			},
		},
	)
	return root
}

func runBot(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	notify(daemon.SdNotifyReady)
	go watchdog(ctx)

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = stopReasonFor(sig)
	case <-a.Done():
		reason = app.StopFatalError
	case <-parent.Done():
		reason = app.StopAppStop
	}
	notify(daemon.SdNotifyStopping)

	fatal := a.Err()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError && fatal != nil {
		return fatal
	}
	return nil
}

func stopReasonFor(sig os.Signal) app.StopReason {
	switch sig {
	case os.Interrupt:
		return app.StopSIGINT
	case syscall.SIGTERM:
		return app.StopSIGTERM
	default:
		return app.StopUnknown
	}
}

// notify is a no-op outside systemd (NOTIFY_SOCKET unset).
func notify(state string) {
	_, _ = daemon.SdNotify(false, state)
}

// watchdog pings systemd at half the configured WatchdogSec.
func watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			notify(daemon.SdNotifyWatchdog)
		}
	}
}
