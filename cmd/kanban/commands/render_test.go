package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanban-sync/domain"
)

func TestRenderBoard(t *testing.T) {
	color.NoColor = true
	buf := new(bytes.Buffer)

	renderBoard(buf, seedBoard())

	want := "board v1\n" +
		"0. todo [L1]\n" +
		"   0. write tests [C1]\n" +
		"   1. ship [C2]\n" +
		"1. done [L2]\n" +
		"     (empty)\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderBoard_NoLists(t *testing.T) {
	color.NoColor = true
	buf := new(bytes.Buffer)

	renderBoard(buf, domain.Snapshot{Board: domain.Board{Lists: []domain.List{}}})

	assert.Equal(t, "board v0\n  (no lists)\n", buf.String())
}

func TestCardMove(t *testing.T) {
	board := seedBoard().Board

	move, err := cardMove(board, "C2", "L2", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.CardMove{SourceListID: "L1", DestinationListID: "L2", SourceIndex: 1, DestinationIndex: 0}, move)

	_, err = cardMove(board, "C2", "L9", 0)
	assert.Error(t, err)
}

func TestApplyEditRejectsMalformedLines(t *testing.T) {
	for _, line := range []string{"zz", "ml L1", "mc C1 L2", "cl", "rl L1"} {
		err := applyEdit(context.Background(), nil, line)
		assert.Error(t, err, line)
	}
}
