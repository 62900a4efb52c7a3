package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mcdev12/wordclock/go/internal/clock"
	"github.com/mcdev12/wordclock/go/internal/clock/events"
	"github.com/mcdev12/wordclock/go/internal/clock/feed"
	"github.com/mcdev12/wordclock/go/internal/config"
)

// eventPublisher is the part of feed.Publisher the commands use.
type eventPublisher interface {
	Publish(ctx context.Context, eventType string, gameID uuid.UUID, payload any) error
	Close() error
}

type openFunc func(cfg feed.JetStreamConfig) (eventPublisher, error)

func openPublisher(cfg feed.JetStreamConfig) (eventPublisher, error) {
	return feed.NewPublisher(cfg)
}

type rootOptions struct {
	natsURL    string
	streamName string
	gameID     string
	dryRun     bool
	timeout    time.Duration
}

// newRootCmd builds the command tree. settings supplies the flag defaults, so
// the tool talks to the same NATS server and stream as the gateway.
func newRootCmd(settings config.Config, open openFunc) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "clockfeed",
		Short: "Publish game clock events to JetStream",
		Long: `clockfeed publishes authoritative clock snapshots and lifecycle events
for a game onto the clock event stream, the same way a game server would.
Use --dry-run to print the event envelope instead of publishing it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.natsURL, "nats-url", settings.NATS.URL, "NATS server URL")
	root.PersistentFlags().StringVar(&opts.streamName, "stream", settings.NATS.StreamName, "JetStream stream name")
	root.PersistentFlags().StringVar(&opts.gameID, "game", "", "game ID (UUID)")
	root.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "print the envelope as JSON instead of publishing")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "publish timeout")

	root.AddCommand(
		newSnapshotCmd(opts, open),
		newStopCmd(opts, open),
		newOvertimeCmd(opts, open),
		newEndCmd(opts, open),
		newFormatCmd(),
	)
	return root
}

func newSnapshotCmd(opts *rootOptions, open openFunc) *cobra.Command {
	var (
		p0, p1      time.Duration
		active      string
		status      string
		delayCentis int64
		maxOvertime int
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Publish both players' remaining time",
		Example: `  clockfeed snapshot --game 6f1c... --p0 4m30s --p1 5m --active p0
  clockfeed snapshot --game 6f1c... --p0 -12s --p1 2m --active p0 --max-overtime 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := events.ClockSnapshotPayload{
				P0Millis:    int64(clock.MillisFromDuration(p0)),
				P1Millis:    int64(clock.MillisFromDuration(p1)),
				Active:      active,
				Status:      status,
				DelayCentis: delayCentis,
			}
			if cmd.Flags().Changed("max-overtime") {
				payload.MaxOvertimeMinutes = &maxOvertime
			}
			if _, _, err := payload.Snapshot(time.Time{}); err != nil {
				return err
			}
			return publish(cmd, opts, open, events.TypeClockSnapshot, payload)
		},
	}

	cmd.Flags().DurationVar(&p0, "p0", 0, "first player's remaining time")
	cmd.Flags().DurationVar(&p1, "p1", 0, "second player's remaining time")
	cmd.Flags().StringVar(&active, "active", "", "player on turn: p0, p1, or empty")
	cmd.Flags().StringVar(&status, "status", "playing", "game status: playing, waiting_for_final_pass, game_over")
	cmd.Flags().Int64Var(&delayCentis, "delay-centis", 0, "transit delay in hundredths of a second")
	cmd.Flags().IntVar(&maxOvertime, "max-overtime", 0, "overtime allowance in minutes")
	return cmd
}

func newStopCmd(opts *rootOptions, open openFunc) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Freeze the game's clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return publish(cmd, opts, open, events.TypeClockStopped, events.ClockStoppedPayload{Reason: reason})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the clock stopped")
	return cmd
}

func newOvertimeCmd(opts *rootOptions, open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "overtime <minutes>",
		Short: "Set how far below zero either player may run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("parse minutes: %w", err)
			}
			if minutes < 0 {
				return clock.ErrInvalidOvertime
			}
			return publish(cmd, opts, open, events.TypeMaxOvertimeSet, events.MaxOvertimeSetPayload{Minutes: minutes})
		},
	}
}

func newEndCmd(opts *rootOptions, open openFunc) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "end",
		Short: "Tear down the game's clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return publish(cmd, opts, open, events.TypeGameEnded, events.GameEndedPayload{Reason: reason})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the game ended")
	return cmd
}

func newFormatCmd() *cobra.Command {
	var noTenths bool

	cmd := &cobra.Command{
		Use:   "format <millis>...",
		Short: "Print remaining times the way clients display them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				ms, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("parse %q: %w", arg, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", ms, clock.FormatMillis(clock.Millis(ms), !noTenths))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noTenths, "no-tenths", false, "always show whole seconds")
	return cmd
}

func publish(cmd *cobra.Command, opts *rootOptions, open openFunc, eventType string, payload any) error {
	gameID, err := uuid.Parse(opts.gameID)
	if err != nil {
		return fmt.Errorf("--game must be a UUID: %w", err)
	}

	if opts.dryRun {
		env, err := feed.NewEnvelope(eventType, gameID, payload, time.Now())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), env)
	}

	cfg := feed.DefaultJetStreamConfig()
	cfg.URL = opts.natsURL
	cfg.StreamName = opts.streamName
	cfg.MaxReconnects = 0

	pub, err := open(cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	if err := pub.Publish(ctx, eventType, gameID, payload); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s for game %s\n", eventType, gameID)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
