// Package queue defines the metadata extraction task and its producers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// ExtractMetadataTask is scheduled each time an upload is committed.
	ExtractMetadataTask = "file:extract_metadata"
)

// Enqueuer hands a committed file to the extraction workers.
type Enqueuer interface {
	EnqueueExtract(ctx context.Context, fileID int64) error
}

// ExtractPayload is the task body. The worker reloads everything else from
// the file record.
type ExtractPayload struct {
	FileID int64 `json:"file_id"`
}

// NewExtractTask builds the asynq task for fileID.
func NewExtractTask(fileID int64) (*asynq.Task, error) {
	data, err := json.Marshal(ExtractPayload{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ExtractMetadataTask, data), nil
}

// ParseExtractTask decodes the payload of an extraction task.
func ParseExtractTask(task *asynq.Task) (ExtractPayload, error) {
	var payload ExtractPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.FileID <= 0 {
		return payload, fmt.Errorf("decode payload: invalid file id %d", payload.FileID)
	}
	return payload, nil
}

// Client enqueues extraction tasks on Redis through asynq.
type Client struct {
	client   *asynq.Client
	maxRetry int
}

// NewClient wraps an asynq client. maxRetry applies to infrastructure
// failures only; document errors are recorded as FAILED and not retried.
func NewClient(client *asynq.Client, maxRetry int) *Client {
	return &Client{client: client, maxRetry: maxRetry}
}

func (c *Client) EnqueueExtract(ctx context.Context, fileID int64) error {
	task, err := NewExtractTask(fileID)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.MaxRetry(c.maxRetry)); err != nil {
		return fmt.Errorf("enqueue extract task: %w", err)
	}
	return nil
}
