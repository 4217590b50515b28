package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-sync/domain"
)

const (
	boardRowKey = "board"
	edmInt64    = "Edm.Int64"
)

// Table keeps one entity per board in Azure Table Storage.
type Table struct {
	client *aztables.Client
}

type boardEntity struct {
	aztables.Entity
	Version     int64  `json:"Version,string"`
	VersionType string `json:"Version@odata.type"`
	Content     string `json:"Content"`
}

// NewTable creates a Table backend from the given connection string.
func NewTable(connStr, tableName string) (*Table, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Table{client: svc.NewClient(tableName)}, nil
}

func (t *Table) Load(ctx context.Context, boardID string) (domain.Snapshot, bool, error) {
	resp, err := t.client.GetEntity(ctx, boardID, boardRowKey, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return domain.Snapshot{}, false, nil
		}
		return domain.Snapshot{}, false, err
	}
	var ent boardEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Snapshot{}, false, err
	}
	var b domain.Board
	if err := json.Unmarshal([]byte(ent.Content), &b); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("decode board %s: %w", boardID, err)
	}
	return domain.Snapshot{Version: uint64(ent.Version), Board: b}, true, nil
}

func (t *Table) Save(ctx context.Context, boardID string, s domain.Snapshot) error {
	content, err := json.Marshal(s.Board)
	if err != nil {
		return err
	}
	ent := map[string]any{
		"PartitionKey":       boardID,
		"RowKey":             boardRowKey,
		"Version":            strconv.FormatUint(s.Version, 10),
		"Version@odata.type": edmInt64,
		"Content":            string(content),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = t.client.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}
