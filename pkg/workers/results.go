package workers

import (
	"context"
	"time"

	"github.com/classworks/playsync/pkg/log"
	"github.com/classworks/playsync/pkg/queue"
	"github.com/classworks/playsync/pkg/repositories"
	"github.com/classworks/playsync/pkg/repositories/models"
)

// SaveGameResultsWorker drains the completed-game queue and archives
// the results in the repository. Moves never block on persistence; the
// dispatcher only enqueues.
type SaveGameResultsWorker struct {
	repository  repositories.Repository
	resultQueue queue.Queue
	interval    time.Duration
}

type NewSaveGameResultsWorkerOptions struct {
	Repository  repositories.Repository
	ResultQueue queue.Queue
	Interval    time.Duration
}

func NewSaveGameResultsWorker(opts NewSaveGameResultsWorkerOptions) *SaveGameResultsWorker {
	return &SaveGameResultsWorker{
		repository:  opts.Repository,
		resultQueue: opts.ResultQueue,
		interval:    opts.Interval,
	}
}

func (w *SaveGameResultsWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *SaveGameResultsWorker) drain(ctx context.Context) {
	items, err := w.resultQueue.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read game results from queue: %v", err)
		return
	}
	for _, item := range items {
		result, ok := item.(*models.GameResult)
		if !ok {
			log.Error("Failed to cast queue item to game result")
			continue
		}
		if err := w.repository.SaveGameResult(ctx, result); err != nil {
			log.Error("Failed to save game result for %s: %v", result.SessionKey, err)
			continue
		}
		log.Debug("Archived game result for %s", result.SessionKey)
	}
}
