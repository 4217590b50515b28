package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kanban-sync/client"
	"kanban-sync/domain"
)

var moveListCmd = &cobra.Command{
	Use:   "move-list <list-id> <index>",
	Short: "Move a list to a new position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		return do(cmd, func(ctx context.Context, ch *client.Channel, b domain.Board) (*client.Call, error) {
			src := b.ListIndex(args[0])
			if src < 0 {
				return nil, fmt.Errorf("list %q not found", args[0])
			}
			return ch.SendListReorder(ctx, src, dest)
		})
	},
}

var createListCmd = &cobra.Command{
	Use:   "create-list <name>",
	Short: "Append a new list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, func(ctx context.Context, ch *client.Channel, _ domain.Board) (*client.Call, error) {
			return ch.SendCreateList(ctx, args[0])
		})
	},
}

var renameListCmd = &cobra.Command{
	Use:   "rename-list <list-id> <name>",
	Short: "Rename a list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, func(ctx context.Context, ch *client.Channel, _ domain.Board) (*client.Call, error) {
			return ch.SendRenameList(ctx, args[0], args[1])
		})
	},
}

var deleteListCmd = &cobra.Command{
	Use:   "delete-list <list-id>",
	Short: "Delete a list and its cards",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, func(ctx context.Context, ch *client.Channel, _ domain.Board) (*client.Call, error) {
			return ch.SendDeleteList(ctx, args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(moveListCmd, createListCmd, renameListCmd, deleteListCmd)
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}
