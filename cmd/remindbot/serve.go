package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"remindbot/internal/app"
	logx "remindbot/pkg/logx"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := app.New(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	log := a.Logger()
	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = a.Stop(stopCtx, app.StopFatalError)
		stopCancel()
		return err
	}

	go notifySystemd(ctx, a, log)

	var reason app.StopReason
	select {
	case sig := <-sigs:
		reason = app.ReasonForSignal(sig)
	case <-a.Done():
		reason = app.StopFatalError
	}
	sdNotify(log, daemon.SdNotifyStopping)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

// notifySystemd reports readiness once the scheduler is armed and keeps the
// watchdog fed when the unit asks for one. Outside systemd it does nothing.
func notifySystemd(ctx context.Context, a *app.App, log logx.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-a.Armed():
	}
	sdNotify(log, daemon.SdNotifyReady)

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
		case <-a.Done():
			return
		case <-t.C:
			sdNotify(log, daemon.SdNotifyWatchdog)
		}
	}
}

func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
