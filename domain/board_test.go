package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsDuplicates(t *testing.T) {
	dupList := Board{Lists: []List{{ID: "L"}, {ID: "L"}}}
	require.ErrorIs(t, dupList.Validate(), ErrDuplicateID)

	dupCard := Board{Lists: []List{
		{ID: "L1", Cards: []Card{{ID: "c"}}},
		{ID: "L2", Cards: []Card{{ID: "c"}}},
	}}
	require.ErrorIs(t, dupCard.Validate(), ErrDuplicateID)

	missing := Board{Lists: []List{{ID: ""}}}
	require.ErrorIs(t, missing.Validate(), ErrInvalidBoard)

	require.NoError(t, threeLists().Validate())
}

func TestCreateListAppends(t *testing.T) {
	out, err := CreateList(threeLists(), "D", "  done ")
	require.NoError(t, err)
	require.Len(t, out.Lists, 4)
	assert.Equal(t, List{ID: "D", Name: "done", Cards: []Card{}}, out.Lists[3])

	_, err = CreateList(out, "D", "again")
	require.ErrorIs(t, err, ErrDuplicateID)
	_, err = CreateList(out, "E", " ")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestRenameAndDeleteList(t *testing.T) {
	out, err := RenameList(threeLists(), "B", "backlog")
	require.NoError(t, err)
	assert.Equal(t, "backlog", out.Lists[1].Name)

	out, err = DeleteList(out, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, listIDs(out))

	_, err = DeleteList(out, "A")
	require.ErrorIs(t, err, ErrListNotFound)
	_, err = RenameList(out, "A", "x")
	require.ErrorIs(t, err, ErrListNotFound)
}

func TestCreateAndDeleteCard(t *testing.T) {
	b := threeLists()
	out, err := CreateCard(b, "C", "c1", "write tests")
	require.NoError(t, err)
	assert.Equal(t, []Card{{ID: "c1", Text: "write tests"}}, out.Lists[2].Cards)
	assert.Empty(t, b.Lists[2].Cards)

	_, err = CreateCard(out, "C", "a1", "dup")
	require.ErrorIs(t, err, ErrDuplicateID)
	_, err = CreateCard(out, "Z", "z1", "x")
	require.ErrorIs(t, err, ErrListNotFound)

	out, err = DeleteCard(out, "a2")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a3"}, cardIDs(out.Lists[0]))
	_, err = DeleteCard(out, "a2")
	require.ErrorIs(t, err, ErrCardNotFound)
}

func TestSnapshotJSONShape(t *testing.T) {
	s := Snapshot{Version: 3, Board: Board{Lists: []List{{ID: "L1", Name: "todo", Cards: []Card{}}}}}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":3,"board":{"lists":[{"id":"L1","name":"todo","cards":[]}]}}`, string(data))
}
