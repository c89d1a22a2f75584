package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/config"
)

const (
	closeTimeout = 30 * time.Second
	drainTimeout = 10 * time.Second
)

func newChatCmd(v *viper.Viper, d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the operator console (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, v, d)
		},
	}
}

func runChat(cmd *cobra.Command, v *viper.Viper, d deps) error {
	s, err := config.Load(v)
	if err != nil {
		return err
	}
	logger := s.Logger(cmd.ErrOrStderr())

	relay, err := agentrelay.New(s, func(o *agentrelay.Options) {
		o.Factories = d.factories(logger)
		o.Echo = cmd.OutOrStdout()
		o.Logger = logger
	})
	if err != nil {
		return fmt.Errorf("start relay: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := relay.Close(ctx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()
	watchSignals(ctx, stop, relay.Orchestrator.Interrupt)

	out := cmd.OutOrStdout()
	greet(cmd, relay)

	done := make(chan error, 1)
	go func() { done <- relay.Orchestrator.Serve(ctx, cmd.InOrStdin(), out) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		fmt.Fprintln(out, "\nShutting down...")
		// The deferred Close must not race a turn that is still loading models.
		wctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if werr := relay.Orchestrator.Wait(wctx); werr != nil {
			logger.Warn("turn still running at shutdown", "error", werr)
		}
		cancel()
		err = nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchSignals turns SIGINT into a turn interrupt while a turn runs. SIGINT
// at the prompt and SIGTERM end the session.
func watchSignals(ctx context.Context, stop context.CancelFunc, interrupt func() bool) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				if sig == os.Interrupt && interrupt() {
					continue
				}
				stop()
				return
			}
		}
	}()
}

func greet(cmd *cobra.Command, relay *agentrelay.Relay) {
	title := lipgloss.NewStyle().Bold(true)
	hint := lipgloss.NewStyle().Faint(true)
	lines := []string{
		title.Render("agentrelay " + version),
		hint.Render(fmt.Sprintf("session %s, %d agents, entry agent %s",
			relay.Orchestrator.SessionID(), len(relay.Roster.Names()), relay.Orchestrator.Active().Name())),
		hint.Render("Type 'quit' to exit. Ctrl+C interrupts a running turn."),
	}
	fmt.Fprintln(cmd.OutOrStdout(), lipgloss.JoinVertical(lipgloss.Left, lines...))
}
