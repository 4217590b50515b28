package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kanban-sync/client"
	"kanban-sync/domain"
)

var watchInput bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the board every time it changes",
	Long: `Keep a connection to the coordinator open and reprint the board whenever it
changes, including changes made by other users.

With --input, edit commands are read from stdin, one per line, and applied
locally before the coordinator confirms them:

  ml <list-id> <index>              move a list
  mc <card-id> <list-id> <index>    move a card
  cl <name>                         create a list
  rl <list-id> <name>               rename a list
  dl <list-id>                      delete a list
  cc <list-id> <text>               create a card
  dc <card-id>                      delete a card

When stdin ends, watch waits for the last request to settle, prints the
final board and exits.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVarP(&watchInput, "input", "i", false, "Read edit commands from stdin")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var outMu sync.Mutex
	render := func(b domain.Board) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintln(out, strings.Repeat("-", 40))
		renderLists(out, b)
	}

	ch := client.NewChannel(client.Options{URL: coordinatorURL, Logger: newLogger()})
	ctrl := client.NewController(ch, ch.Store(), render, newLogger())
	defer ch.Close()
	defer ctrl.Close()

	if err := ch.Open(ctx); err != nil {
		return err
	}
	go func() { _ = ctrl.Run(ctx) }()

	select {
	case <-ctrl.Synced():
	case <-time.After(syncTimeout):
		return fmt.Errorf("no sync from %s within %s", coordinatorURL, syncTimeout)
	case <-ctx.Done():
		return nil
	}

	if !watchInput {
		<-ctx.Done()
		return nil
	}

	if err := readEdits(ctx, cmd.InOrStdin(), ctrl, cmd.ErrOrStderr()); err != nil {
		return err
	}
	if err := waitSettled(ctx, ctrl); err != nil {
		return err
	}
	outMu.Lock()
	defer outMu.Unlock()
	renderBoard(out, domain.Snapshot{Version: ctrl.Version(), Board: ctrl.Board()})
	return nil
}

func readEdits(ctx context.Context, in io.Reader, ctrl *client.Controller, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := applyEdit(ctx, ctrl, line); err != nil {
			printError(errOut, err)
		}
	}
	return scanner.Err()
}

func waitSettled(ctx context.Context, ctrl *client.Controller) error {
	deadline := time.After(syncTimeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for ctrl.Pending() {
		select {
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("request still pending after %s", syncTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// applyEdit parses one edit line and hands it to the controller.
func applyEdit(ctx context.Context, ctrl *client.Controller, line string) error {
	fields := strings.Fields(line)
	op, args := fields[0], fields[1:]
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: expected %d arguments, got %d", op, n, len(args))
		}
		return nil
	}
	// rest joins trailing arguments so names may contain spaces.
	rest := func(from int) string { return strings.Join(args[from:], " ") }

	switch op {
	case "ml":
		if err := need(2); err != nil {
			return err
		}
		dest, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		src := ctrl.Board().ListIndex(args[0])
		if src < 0 {
			return fmt.Errorf("list %q not found", args[0])
		}
		return ctrl.ApplyListMove(ctx, src, dest)
	case "mc":
		if err := need(3); err != nil {
			return err
		}
		dest, err := parseIndex(args[2])
		if err != nil {
			return err
		}
		move, err := cardMove(ctrl.Board(), args[0], args[1], dest)
		if err != nil {
			return err
		}
		return ctrl.ApplyCardMove(ctx, move.Source(), move.Destination())
	case "cl":
		if err := need(1); err != nil {
			return err
		}
		return ctrl.CreateList(ctx, rest(0))
	case "rl":
		if err := need(2); err != nil {
			return err
		}
		return ctrl.RenameList(ctx, args[0], rest(1))
	case "dl":
		if err := need(1); err != nil {
			return err
		}
		return ctrl.DeleteList(ctx, args[0])
	case "cc":
		if err := need(2); err != nil {
			return err
		}
		return ctrl.CreateCard(ctx, args[0], rest(1))
	case "dc":
		if err := need(1); err != nil {
			return err
		}
		return ctrl.DeleteCard(ctx, args[0])
	default:
		return fmt.Errorf("unknown command %q", op)
	}
}
