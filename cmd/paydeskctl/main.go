package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/fatflowers/paydesk/internal/app"
	callbacklog "github.com/fatflowers/paydesk/internal/app/service/callback_log"
	"github.com/fatflowers/paydesk/internal/app/service/reconciler"
	"github.com/fatflowers/paydesk/internal/app/service/renewal"
	"github.com/fatflowers/paydesk/internal/platform/pesapal"
	"github.com/fatflowers/paydesk/pkg/config"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "paydeskctl",
		Short:         "Operator tool for the paydesk payment engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(registerIPNCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps is what the commands need from the engine.
type deps struct {
	cfg        *config.Config
	sweeper    *renewal.Sweeper
	reconciler *reconciler.Service
	callbacks  *callbacklog.Service
	gateway    pesapal.Gateway
}

// withEngine starts the engine without HTTP server or scheduler, runs fn and
// stops it again.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, d deps) error) error {
	var d deps
	a := fx.New(
		app.CoreModule,
		fx.NopLogger,
		fx.Populate(&d.cfg, &d.sweeper, &d.reconciler, &d.callbacks, &d.gateway),
	)
	if err := a.Err(); err != nil {
		return err
	}
	ctx := cmd.Context()
	startCtx, cancel := context.WithTimeout(ctx, app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.DefaultStopTimeout)
		defer cancel()
		_ = a.Stop(stopCtx)
	}()
	return fn(ctx, d)
}
