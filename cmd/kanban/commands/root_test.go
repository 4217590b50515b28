package commands

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanban-sync/coordinator"
	"kanban-sync/domain"
	"kanban-sync/storage"
)

func seedBoard() domain.Snapshot {
	return domain.Snapshot{
		Version: 1,
		Board: domain.Board{Lists: []domain.List{
			{ID: "L1", Name: "todo", Cards: []domain.Card{{ID: "C1", Text: "write tests"}, {ID: "C2", Text: "ship"}}},
			{ID: "L2", Name: "done", Cards: []domain.Card{}},
		}},
	}
}

// startCoordinator serves a coordinator for the seed board and returns its
// websocket URL.
func startCoordinator(t *testing.T) (*coordinator.Coordinator, string) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	store := storage.NewMemory()
	require.NoError(t, store.Save(context.Background(), "default", seedBoard()))

	coord, err := coordinator.New(context.Background(), coordinator.Options{
		Store:   store,
		Deduper: coordinator.NewMemoryDeduper(time.Minute),
		Logger:  logger,
	})
	require.NoError(t, err)

	e := echo.New()
	coordinator.Register(e, coord)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return coord, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	watchInput = false
	syncTimeout = 5 * time.Second

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	out, err := execute(t, nil)

	assert.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "move-card")
	assert.Contains(t, out, "watch")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, err := execute(t, nil, "--unknown-flag", "value")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestCommands_ValidateArguments(t *testing.T) {
	_, err := execute(t, nil, "move-list", "L1")
	assert.Error(t, err)

	_, err = execute(t, nil, "--url", "ws://127.0.0.1:1/ws", "move-list", "L1", "abc")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid index")
}

func TestMoveListCommand(t *testing.T) {
	coord, url := startCoordinator(t)

	out, err := execute(t, nil, "--url", url, "move-list", "L2", "0")

	require.NoError(t, err)
	assert.Contains(t, out, "board v2")
	assert.Less(t, strings.Index(out, "done [L2]"), strings.Index(out, "todo [L1]"))
	assert.Equal(t, "L2", coord.Snapshot().Board.Lists[0].ID)
}

func TestMoveCardCommand(t *testing.T) {
	coord, url := startCoordinator(t)

	out, err := execute(t, nil, "--url", url, "move-card", "C2", "L2", "0")

	require.NoError(t, err)
	assert.Contains(t, out, "board v2")
	board := coord.Snapshot().Board
	require.Len(t, board.Lists[1].Cards, 1)
	assert.Equal(t, "C2", board.Lists[1].Cards[0].ID)
}

func TestMoveCardCommand_UnknownCard(t *testing.T) {
	coord, url := startCoordinator(t)

	_, err := execute(t, nil, "--url", url, "move-card", "C9", "L2", "0")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, uint64(1), coord.Snapshot().Version)
}

func TestMoveListCommand_RejectedByCoordinator(t *testing.T) {
	coord, url := startCoordinator(t)

	_, err := execute(t, nil, "--url", url, "move-list", "L1", "7")

	require.Error(t, err)
	assert.Equal(t, uint64(1), coord.Snapshot().Version)
}

func TestCreateAndRenameListCommands(t *testing.T) {
	coord, url := startCoordinator(t)

	out, err := execute(t, nil, "--url", url, "create-list", "review")
	require.NoError(t, err)
	assert.Contains(t, out, "review")

	board := coord.Snapshot().Board
	require.Len(t, board.Lists, 3)
	id := board.Lists[2].ID

	out, err = execute(t, nil, "--url", url, "rename-list", id, "qa")
	require.NoError(t, err)
	assert.Contains(t, out, "qa ["+id+"]")
	assert.Equal(t, uint64(3), coord.Snapshot().Version)
}

func TestCardCommands(t *testing.T) {
	coord, url := startCoordinator(t)

	_, err := execute(t, nil, "--url", url, "create-card", "L2", "celebrate")
	require.NoError(t, err)
	cards := coord.Snapshot().Board.Lists[1].Cards
	require.Len(t, cards, 1)

	out, err := execute(t, nil, "--url", url, "delete-card", cards[0].ID)
	require.NoError(t, err)
	assert.NotContains(t, out, "celebrate")

	_, err = execute(t, nil, "--url", url, "delete-list", "L1")
	require.NoError(t, err)
	assert.Len(t, coord.Snapshot().Board.Lists, 1)
}

func TestWatchAppliesEditsFromInput(t *testing.T) {
	coord, url := startCoordinator(t)
	input := strings.NewReader("ml L2 0\n# comment\nbogus\nmc C1 L2 0\n")

	out, err := execute(t, input, "--url", url, "watch", "--input")

	require.NoError(t, err)
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Contains(t, out, "board v3")

	board := coord.Snapshot().Board
	assert.Equal(t, "L2", board.Lists[0].ID)
	require.Len(t, board.Lists[0].Cards, 1)
	assert.Equal(t, "C1", board.Lists[0].Cards[0].ID)
}

func TestCommands_FailWithoutCoordinator(t *testing.T) {
	_, err := execute(t, nil, "--url", "ws://127.0.0.1:1/ws", "--timeout", "200ms", "create-list", "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sync")
}
