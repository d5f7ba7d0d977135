// Package slotopened consumes slot.opened.v1 events from the queue and ranks
// the waitlist for each freed slot.
package slotopened

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/slots"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// ConsumerName keys dedupe rows in processed_events.
const ConsumerName = "slot-opened-dispatcher"

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type dispatcher interface {
	Dispatch(ctx context.Context, evt events.SlotOpenedV1) (*slots.DispatchResult, error)
}

type processedEventStore interface {
	AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
}

// Worker pulls envelopes off the queue and hands slot.opened events to the dispatcher.
type Worker struct {
	queue      events.Queue
	dispatcher dispatcher
	logger     *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	processed        processedEventStore
}

// Option customizes worker behavior.
type Option func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) Option {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) Option {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) Option {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithProcessedEventsStore enables dedupe of redelivered events.
func WithProcessedEventsStore(store processedEventStore) Option {
	return func(cfg *workerConfig) {
		cfg.processed = store
	}
}

func NewWorker(queue events.Queue, d dispatcher, logger *logging.Logger, opts ...Option) *Worker {
	if queue == nil {
		panic("slotopened: queue cannot be nil")
	}
	if d == nil {
		panic("slotopened: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{queue: queue, dispatcher: d, logger: logger, cfg: cfg}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("slot opened worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("slot opened worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive slot opened events", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage deletes the message once it is dispatched, a duplicate, or
// undecodable. Transient dispatch failures leave it on the queue for redelivery.
func (w *Worker) handleMessage(ctx context.Context, msg events.Message) {
	env, err := events.DecodeEnvelope([]byte(msg.Body))
	if err != nil {
		w.logger.Error("failed to decode slot opened envelope", "error", err, "msg_id", msg.ID)
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}
	if env.EventType != events.TypeSlotOpened {
		w.logger.Debug("ignoring event", "type", env.EventType, "event_id", env.EventID)
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	eventID := env.EventID.String()
	if w.cfg.processed != nil {
		seen, err := w.cfg.processed.AlreadyProcessed(ctx, ConsumerName, eventID)
		if err != nil {
			w.logger.Warn("processed lookup failed", "error", err, "event_id", eventID)
		} else if seen {
			w.logger.Info("skipping duplicate slot opened event", "event_id", eventID)
			w.deleteMessage(ctx, msg.ReceiptHandle)
			return
		}
	}

	var evt events.SlotOpenedV1
	if err := env.Decode(&evt); err != nil {
		w.logger.Error("failed to decode slot opened payload", "error", err, "event_id", eventID)
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}
	if evt.EventID == "" {
		evt.EventID = eventID
	}

	res, err := w.dispatcher.Dispatch(ctx, evt)
	if err != nil {
		if errors.Is(err, slots.ErrInvalidRequest) {
			w.logger.Error("dropping invalid slot opened event", "error", err, "event_id", eventID)
			w.deleteMessage(ctx, msg.ReceiptHandle)
			return
		}
		w.logger.Error("slot opened dispatch failed", "error", err, "event_id", eventID, "clinic_id", evt.ClinicID)
		return
	}

	if w.cfg.processed != nil {
		if _, err := w.cfg.processed.MarkProcessed(ctx, ConsumerName, eventID); err != nil {
			w.logger.Warn("failed to mark slot opened event processed", "error", err, "event_id", eventID)
		}
	}
	w.logger.Info("slot opened event handled",
		"event_id", eventID,
		"clinic_id", evt.ClinicID,
		"candidates", len(res.Candidates),
	)
	w.deleteMessage(ctx, msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete slot opened message", "error", err)
	}
}
