package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Extractor turns a claimed queue item into stored memories.
type Extractor interface {
	Extract(ctx context.Context, store *Store, item *QueueItem) error
}

// SummaryExtractor is the default extractor: it records a single
// conversation_summary memory referencing the source thread. A real LLM
// extractor can replace it through StartWorkerFromEnv.
type SummaryExtractor struct{}

func (SummaryExtractor) Extract(ctx context.Context, store *Store, item *QueueItem) error {
	_, err := store.Add(ctx, AddParams{
		AccountID:      item.AccountID,
		MemoryType:     TypeConversationSummary,
		Content:        fmt.Sprintf("Conversation in thread %s queued for summarization at %s", item.ThreadID, item.CreatedAt.UTC().Format(time.RFC3339)),
		Confidence:     0.5,
		SourceThreadID: &item.ThreadID,
	})
	return err
}

// Worker polls the extraction queue, claims pending items and runs the
// extractor on each. Claims are racy on purpose: losing one just means
// another worker took the item.
type Worker struct {
	store     *Store
	extractor Extractor
	interval  time.Duration
	batchSize int
	stop      chan struct{}
	done      chan struct{}
}

// StartWorkerFromEnv starts the polling worker when MEMORY_WORKER_ENABLED
// is "true". Returns nil when disabled.
func StartWorkerFromEnv(store *Store, extractor Extractor) *Worker {
	if os.Getenv("MEMORY_WORKER_ENABLED") != "true" {
		return nil
	}

	interval := 15 * time.Second
	if raw := os.Getenv("MEMORY_WORKER_INTERVAL_SECONDS"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			interval = time.Duration(seconds) * time.Second
		}
	}

	if extractor == nil {
		extractor = SummaryExtractor{}
	}

	worker := &Worker{
		store:     store,
		extractor: extractor,
		interval:  interval,
		batchSize: 10,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go worker.run()
	log.Printf("memory extraction worker started (interval %s)", interval)
	return worker
}

func (w *Worker) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.drainOnce()
		}
	}
}

func (w *Worker) drainOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	items, err := w.store.NextPending(ctx, w.batchSize)
	if err != nil {
		log.Printf("memory worker: list pending: %v", err)
		return
	}

	for _, item := range items {
		claimed, err := w.store.Claim(ctx, item.QueueID)
		if errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrQueueNotFound) {
			continue
		}
		if err != nil {
			log.Printf("memory worker: claim %s: %v", item.QueueID, err)
			continue
		}

		if err := w.extractor.Extract(ctx, w.store, claimed); err != nil {
			log.Printf("memory worker: extract %s: %v", claimed.QueueID, err)
			if err := w.store.MarkFailed(ctx, claimed.QueueID, err.Error()); err != nil {
				log.Printf("memory worker: mark failed %s: %v", claimed.QueueID, err)
			}
			continue
		}
		if err := w.store.MarkCompleted(ctx, claimed.QueueID); err != nil {
			log.Printf("memory worker: mark completed %s: %v", claimed.QueueID, err)
		}
	}
}

// Stop halts the polling loop and waits for the current batch to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}
