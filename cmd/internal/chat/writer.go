package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"layoo/cmd/internal/observability"
	"layoo/cmd/internal/retry"
)

// WriteResult is the outcome of Writer.Write.
type WriteResult struct {
	Message Message
	// Duplicate is true when the message id was already stored; nothing was written.
	Duplicate bool
}

// Writer persists a message and the conversation summary in one transaction.
type Writer struct {
	store   Store
	policy  retry.Policy
	metrics *observability.Metrics
}

// NewWriter constructs a Writer. Each transaction attempt is bounded by policy.Timeout.
func NewWriter(store Store, policy retry.Policy, m *observability.Metrics) *Writer {
	return &Writer{store: store, policy: policy, metrics: m}
}

// Write inserts m unless its id already exists and sets the conversation's lastMessage to
// summary and lastMessageAt to m.CreatedAt, all or nothing.
//
// A duplicate id is not an error: the result has Duplicate set and the stored message is left
// untouched. Any other failure wraps ErrTransaction and leaves no trace in the store.
//
// An attempt can commit and still report a transient error (lost commit ack, deadline hit after
// the commit). When a retry then finds the id, the stored message is compared with m and a
// match counts as this call's commit, not a duplicate.
func (w *Writer) Write(ctx context.Context, m Message, summary string) (WriteResult, error) {
	start := time.Now()

	var (
		dup      bool
		attempts int
	)
	err := retry.Do(ctx, w.policy, func(ctx context.Context) error {
		dup = false
		attempts++
		return w.store.RunTx(ctx, func(ctx context.Context, tx Tx) error {
			exists, err := tx.MessageExists(ctx, m.ID)
			if err != nil {
				return err
			}
			if exists {
				dup = true
				return nil
			}
			if err := tx.InsertMessage(ctx, m); err != nil {
				return err
			}
			return tx.UpdateConversationSummary(ctx, m.ConversationID, summary, m.CreatedAt)
		})
	})
	if errors.Is(err, ErrDuplicateMessage) {
		// Lost a race with a concurrent send of the same id.
		dup, err = true, nil
	}
	if err == nil && dup && attempts > 1 && w.ownsStored(ctx, m) {
		dup = false
	}

	elapsed := time.Since(start).Seconds()
	switch {
	case err != nil:
		w.metrics.MessageWrite("error", elapsed)
		return WriteResult{}, fmt.Errorf("%w: %w", ErrTransaction, err)
	case dup:
		w.metrics.MessageWrite("duplicate", elapsed)
		return WriteResult{Message: m, Duplicate: true}, nil
	default:
		w.metrics.MessageWrite("created", elapsed)
		return WriteResult{Message: m}, nil
	}
}

// ownsStored reports whether the stored message with m's id is m itself. CreatedAt is stamped
// once per send, so a resend from the client never matches.
func (w *Writer) ownsStored(ctx context.Context, m Message) bool {
	stored, err := w.store.GetMessage(ctx, m.ID)
	if err != nil {
		return false
	}
	return stored.CreatedAt.Equal(m.CreatedAt) &&
		stored.ConversationID == m.ConversationID &&
		stored.SenderID == m.SenderID &&
		stored.Type == m.Type &&
		stored.Content == m.Content
}
