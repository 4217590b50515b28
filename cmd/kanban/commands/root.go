package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban-sync/client"
	"kanban-sync/domain"
)

var (
	coordinatorURL string
	syncTimeout    time.Duration
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "kanban",
	Short: "Command line client for a shared kanban board",
	Long: `kanban talks to a board coordinator over its websocket endpoint.

Every command first syncs the current board, sends one request and prints the
board the coordinator answered with. "kanban watch" keeps the connection open
and reprints the board whenever anyone changes it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil {
		printError(os.Stderr, err)
	}
	return err
}

func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	defaultURL := "ws://localhost:8080/ws"
	if v := os.Getenv("KANBAN_URL"); v != "" {
		defaultURL = v
	}
	rootCmd.PersistentFlags().StringVarP(&coordinatorURL, "url", "u", defaultURL, "Coordinator websocket URL (env KANBAN_URL)")
	rootCmd.PersistentFlags().DurationVar(&syncTimeout, "timeout", 5*time.Second, "How long to wait for the coordinator")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log connection activity")
}

func newLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(log.WarnLevel)
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// connect opens a channel and waits for its first sync. The returned channel
// carries no subscription, so pushes never hold up the reader.
func connect(ctx context.Context) (*client.Channel, domain.Snapshot, error) {
	ch := client.NewChannel(client.Options{URL: coordinatorURL, Logger: newLogger()})
	sub := ch.Subscribe()
	defer sub.Close()
	if err := ch.Open(ctx); err != nil {
		return nil, domain.Snapshot{}, err
	}

	timeout := time.After(syncTimeout)
	for {
		select {
		case ev := <-sub.C():
			if ev.Kind == client.EventSynced {
				return ch, ev.Snapshot, nil
			}
		case <-timeout:
			_ = ch.Close()
			return nil, domain.Snapshot{}, fmt.Errorf("no sync from %s within %s", coordinatorURL, syncTimeout)
		case <-ctx.Done():
			_ = ch.Close()
			return nil, domain.Snapshot{}, ctx.Err()
		}
	}
}

// do connects, sends one request built by send and prints the reply board.
func do(cmd *cobra.Command, send func(ctx context.Context, ch *client.Channel, board domain.Board) (*client.Call, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ch, snap, err := connect(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	call, err := send(ctx, ch, snap.Board)
	if err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	result, err := call.Wait(waitCtx)
	if err != nil {
		return err
	}
	renderBoard(cmd.OutOrStdout(), result)
	return nil
}

func printError(w io.Writer, err error) {
	errColor.Fprintf(w, "error: ")
	fmt.Fprintln(w, err)
}
