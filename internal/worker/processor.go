// Package worker plugs the extraction job into the asynq server loop.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/filevault/internal/queue"
)

// Runner executes one extraction.
type Runner interface {
	Run(ctx context.Context, fileID int64) error
}

// Processor handles extraction tasks delivered by asynq.
type Processor struct {
	runner Runner
	logger *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(runner Runner, logger *slog.Logger) *Processor {
	return &Processor{runner: runner, logger: logger}
}

// Handler registers the extraction handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ExtractMetadataTask, p.HandleExtract)
	return mux
}

// HandleExtract runs the job. A malformed payload can never succeed, so it
// is not retried; any other returned error is.
func (p *Processor) HandleExtract(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseExtractTask(task)
	if err != nil {
		p.logger.Error("dropping extraction task", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := p.runner.Run(ctx, payload.FileID); err != nil {
		p.logger.Error("extraction job failed, will retry", "file_id", payload.FileID, "error", err)
		return err
	}
	return nil
}
