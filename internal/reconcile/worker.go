package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/kestrelhq/callflow/pkg/logging"
)

const (
	defaultReceiveBatchSize = 5
	defaultReceiveWaitSecs  = 10
	deleteTimeout           = 5 * time.Second
)

// ReplayWorker drains the replay queue and re-applies stored reports.
type ReplayWorker struct {
	queue      Queue
	reconciler *Reconciler
	logger     *logging.Logger

	receiveBatchSize int
	receiveWaitSecs  int
}

// NewReplayWorker creates a replay consumer.
func NewReplayWorker(queue Queue, reconciler *Reconciler, logger *logging.Logger) *ReplayWorker {
	if queue == nil {
		panic("reconcile: replay queue cannot be nil")
	}
	if reconciler == nil {
		panic("reconcile: reconciler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplayWorker{
		queue:            queue,
		reconciler:       reconciler,
		logger:           logger,
		receiveBatchSize: defaultReceiveBatchSize,
		receiveWaitSecs:  defaultReceiveWaitSecs,
	}
}

// Run consumes replay messages until ctx is cancelled. A message is deleted
// once Replay succeeds or is unusable; a failed Replay leaves it queued for
// redelivery.
func (w *ReplayWorker) Run(ctx context.Context) {
	w.logger.Info("replay worker started")
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("replay worker stopping")
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.receiveBatchSize, w.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("replay worker: receive failed", "error", err)
			time.Sleep(backoff)
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

func (w *ReplayWorker) handleMessage(ctx context.Context, msg Message) {
	if msg.ProviderCallID == "" {
		w.logger.Warn("replay worker: undecodable message, dropping", "msg_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	if err := w.reconciler.Replay(ctx, msg.ProviderCallID); err != nil {
		// Leave the message for redelivery.
		w.logger.Error("replay worker: replay failed",
			"provider_call_id", msg.ProviderCallID,
			"error", err,
		)
		return
	}
	w.deleteMessage(msg.ReceiptHandle)
}

func (w *ReplayWorker) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("replay worker: delete failed", "error", err)
	}
}
