package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"kanban-sync/domain"
)

// Journal appends every accepted change to an Azure Storage queue so
// downstream consumers (audit, analytics) can follow the board's history.
type Journal struct {
	queue *azqueue.QueueClient
}

func NewJournal(connStr, queueName string) (*Journal, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &Journal{queue: q}, nil
}

func (j *Journal) Append(ctx context.Context, c domain.Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = j.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
