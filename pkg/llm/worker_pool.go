package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool bounds concurrent LLM calls. Batch embedding during reference
// ingestion runs through it so a large source book cannot flood the
// endpoint.
type WorkerPool struct {
	maxConcurrent int
	logger        *zap.Logger
}

// NewWorkerPool creates a pool with the given concurrency bound.
func NewWorkerPool(maxConcurrent int, logger *zap.Logger) *WorkerPool {
	if maxConcurrent < 1 {
		maxConcurrent = 8
	}
	return &WorkerPool{
		maxConcurrent: maxConcurrent,
		logger:        logger.Named("llm-pool"),
	}
}

// WorkItem is a unit of work to execute.
type WorkItem[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// WorkResult is the outcome of one work item.
type WorkResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process executes all items with bounded parallelism and returns results
// in completion order. Individual failures do not stop the batch.
func Process[T any](ctx context.Context, pool *WorkerPool, items []WorkItem[T]) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	resultsChan := make(chan WorkResult[T], len(items))
	sem := make(chan struct{}, pool.maxConcurrent)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item WorkItem[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultsChan <- WorkResult[T]{ID: item.ID, Err: ctx.Err()}
				return
			}

			result, err := item.Execute(ctx)
			if err != nil {
				pool.logger.Warn("Work item failed",
					zap.String("id", item.ID), zap.Error(err))
			}
			resultsChan <- WorkResult[T]{ID: item.ID, Result: result, Err: err}
		}(item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]WorkResult[T], 0, len(items))
	for r := range resultsChan {
		results = append(results, r)
	}
	return results
}
