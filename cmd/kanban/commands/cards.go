package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kanban-sync/client"
	"kanban-sync/domain"
)

var moveCardCmd = &cobra.Command{
	Use:   "move-card <card-id> <list-id> <index>",
	Short: "Move a card to a position in a list",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := parseIndex(args[2])
		if err != nil {
			return err
		}
		return do(cmd, func(ctx context.Context, ch *client.Channel, b domain.Board) (*client.Call, error) {
			move, err := cardMove(b, args[0], args[1], dest)
			if err != nil {
				return nil, err
			}
			return ch.SendCardReorder(ctx, move)
		})
	},
}

var createCardCmd = &cobra.Command{
	Use:   "create-card <list-id> <text>",
	Short: "Append a card to a list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, func(ctx context.Context, ch *client.Channel, _ domain.Board) (*client.Call, error) {
			return ch.SendCreateCard(ctx, args[0], args[1])
		})
	},
}

var deleteCardCmd = &cobra.Command{
	Use:   "delete-card <card-id>",
	Short: "Delete a card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, func(ctx context.Context, ch *client.Channel, _ domain.Board) (*client.Call, error) {
			return ch.SendDeleteCard(ctx, args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(moveCardCmd, createCardCmd, deleteCardCmd)
}

// cardMove resolves a card id into the move descriptor the coordinator expects.
func cardMove(b domain.Board, cardID, listID string, index int) (domain.CardMove, error) {
	src, ok := b.FindCard(cardID)
	if !ok {
		return domain.CardMove{}, fmt.Errorf("card %q not found", cardID)
	}
	if b.ListIndex(listID) < 0 {
		return domain.CardMove{}, fmt.Errorf("list %q not found", listID)
	}
	return domain.NewCardMove(src, domain.Location{ListID: listID, Index: index}), nil
}
