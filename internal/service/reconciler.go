package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/compustore/backend/internal/models"
	"github.com/compustore/backend/internal/store"
)

// Reconciler folds unprocessed inbound events into session documents.
// It is safe to run concurrently with itself and with the tool services:
// the store's conditional processed-flag update guarantees each event is
// applied at most once, and the flag flip commits in the same transaction
// as the history append, so a crash never loses or duplicates an
// interaction.
type Reconciler struct {
	Store  store.Store
	Logger zerolog.Logger
}

// eventPayload is the transport document carried by an event. Only the
// first text part is used.
type eventPayload struct {
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

// ReconcileEvents drains the unprocessed event backlog in log order and
// returns the interactions appended per user. Structurally malformed events
// are left unprocessed and logged so the backlog can be inspected; decoded
// events with no usable text are consumed without producing an interaction.
func (r *Reconciler) ReconcileEvents(ctx context.Context) (map[string][]models.Interaction, error) {
	var events []models.Event
	err := withRetry(ctx, 3, func() error {
		var rerr error
		events, rerr = r.Store.UnprocessedEvents(ctx)
		return rerr
	})
	if err != nil {
		return nil, err
	}

	buckets := map[string][]models.Interaction{}
	for _, ev := range events {
		in, ok := r.deriveInteraction(ev)
		if !ok {
			continue
		}
		if in == nil {
			// Decoded but empty: consume the event, nothing to merge.
			if _, err := r.Store.MarkEventProcessed(ctx, ev.ID); err != nil {
				r.Logger.Error().Err(err).Int64("event_id", ev.ID).Msg("mark processed failed")
			}
			continue
		}

		committed, err := r.Store.CommitInteraction(ctx, ev.ID, ev.UserID, *in)
		if err != nil {
			r.Logger.Error().Err(err).Int64("event_id", ev.ID).Msg("commit interaction failed")
			continue
		}
		if !committed {
			// A concurrent run folded this event in first.
			continue
		}
		buckets[ev.UserID] = append(buckets[ev.UserID], *in)
	}
	return buckets, nil
}

// deriveInteraction classifies one event. The second result is false when
// the event is structurally malformed and must stay unprocessed; a nil
// interaction with ok means the event decoded cleanly but carries no text.
func (r *Reconciler) deriveInteraction(ev models.Event) (*models.Interaction, bool) {
	if strings.TrimSpace(ev.UserID) == "" {
		r.Logger.Warn().Int64("event_id", ev.ID).Msg("event missing user_id, left unprocessed")
		return nil, false
	}
	if strings.TrimSpace(ev.Timestamp) == "" {
		r.Logger.Warn().Int64("event_id", ev.ID).Msg("event missing timestamp, left unprocessed")
		return nil, false
	}

	var payload eventPayload
	if err := json.Unmarshal([]byte(ev.Payload), &payload); err != nil || len(payload.Parts) == 0 {
		r.Logger.Warn().Int64("event_id", ev.ID).Msg("event payload undecodable, left unprocessed")
		return nil, false
	}

	text := cleanMessageText(payload.Parts[0].Text)
	if text == "" {
		return nil, true
	}

	in := models.Interaction{Timestamp: ev.Timestamp}
	if ev.Actor == "user" {
		in.Action = models.ActionUserQuery
		in.Query = text
	} else {
		in.Action = models.ActionAgentResponse
		in.Agent = ev.Actor
		in.Response = text
	}
	return &in, true
}

// cleanMessageText collapses newlines into spaces and trims the result.
func cleanMessageText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// withRetry re-runs fn with doubling backoff for transient storage errors.
func withRetry(ctx context.Context, attempts int, fn func() error) error {
	delay := 100 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
