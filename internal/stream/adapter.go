// Package stream converts the engine's state snapshots into the ordered
// wire-event sequence of the outbound streaming protocol. The adapter
// only reads snapshots; it never mutates session state.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// DefaultChunkWidth is the fixed character width for text-delta chunking.
const DefaultChunkWidth = 50

// EmitFunc delivers one wire event to the transport. A non-nil error
// aborts the stream (client gone).
type EmitFunc func(models.WireEvent) error

// Adapter turns snapshots into wire events.
type Adapter struct {
	chunkWidth int
}

// New builds an adapter; width <= 0 selects the default.
func New(width int) *Adapter {
	if width <= 0 {
		width = DefaultChunkWidth
	}
	return &Adapter{chunkWidth: width}
}

// Stream consumes snapshots until the channel closes or a terminal
// condition occurs, emitting a strictly ordered event sequence with
// exactly one terminal event: finish (possibly with reason interrupt)
// or error.
func (a *Adapter) Stream(snapshots <-chan models.Snapshot, emit EmitFunc) error {
	// Tracks how many transcript entries have already been emitted, so
	// each snapshot only contributes its new tail. Negative until the
	// first state snapshot: a resumed run replays its checkpointed
	// transcript in that snapshot, and only the newest entry is new.
	emitted := -1
	completed := false

	for snap := range snapshots {
		if snap.Err != nil {
			return emit(models.WireEvent{Type: models.EventError, ErrorText: snap.Err.Error()})
		}
		if snap.Interrupt != "" {
			if err := a.emitInterrupt(snap.Interrupt, emit); err != nil {
				return err
			}
			return emit(models.WireEvent{Type: models.EventFinish, FinishReason: "interrupt"})
		}
		if snap.State == nil {
			log.Warn().Msg("snapshot without state, skipping")
			continue
		}

		if emitted < 0 {
			emitted = len(snap.State.Messages) - 1
			if emitted < 0 {
				emitted = 0
			}
		}
		for ; emitted < len(snap.State.Messages); emitted++ {
			msg := snap.State.Messages[emitted]
			if msg.Role == models.RoleUser {
				continue
			}
			if err := a.emitEntry(&msg, emit); err != nil {
				return err
			}
		}
		if snap.State.Stage == models.StageDone {
			completed = true
		}
	}

	// The engine marks the state done before its final snapshot. A close
	// without one means the run was cancelled or superseded.
	if !completed {
		return emit(models.WireEvent{Type: models.EventError, ErrorText: "run cancelled"})
	}
	return emit(models.WireEvent{Type: models.EventFinish})
}

// emitEntry emits the event sequence for one transcript entry.
func (a *Adapter) emitEntry(msg *models.Message, emit EmitFunc) error {
	if err := emit(models.WireEvent{Type: models.EventStartStep}); err != nil {
		return err
	}

	if msg.Role == models.RoleTool {
		// Tool-result entry: exactly one tool-output-available, no text.
		if err := emit(models.WireEvent{
			Type:       models.EventToolOutputAvailable,
			ToolCallID: msg.ToolCallID,
			Output:     parseOutput(msg.ToolResult),
		}); err != nil {
			return err
		}
		return emit(models.WireEvent{Type: models.EventFinishStep})
	}

	messageID := msg.ID
	if messageID == "" {
		messageID = newMessageID()
	}
	if err := emit(models.WireEvent{Type: models.EventStart, MessageID: messageID}); err != nil {
		return err
	}

	if msg.Reasoning != "" {
		if err := a.emitSpan(models.EventReasoningStart, models.EventReasoningDelta, models.EventReasoningEnd, msg.Reasoning, emit); err != nil {
			return err
		}
	}

	for _, call := range msg.ToolCalls {
		if err := emit(models.WireEvent{
			Type:       models.EventToolInputAvailable,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Input:      call.Input,
		}); err != nil {
			return err
		}
	}

	for _, f := range msg.Files {
		if err := emit(models.WireEvent{Type: models.EventFile, URL: f.URL, MediaType: f.MediaType}); err != nil {
			return err
		}
	}
	for _, s := range msg.Sources {
		ev := models.WireEvent{SourceID: s.SourceID, Title: s.Title, MediaType: s.MediaType, URL: s.URL}
		if s.URL != "" {
			ev.Type = models.EventSourceURL
		} else {
			ev.Type = models.EventSourceDocument
		}
		if err := emit(ev); err != nil {
			return err
		}
	}

	if msg.Content != "" {
		if err := a.emitSpan(models.EventTextStart, models.EventTextDelta, models.EventTextEnd, msg.Content, emit); err != nil {
			return err
		}
	}

	return emit(models.WireEvent{Type: models.EventFinishStep})
}

// emitSpan brackets chunked deltas between start and end events sharing
// one span id.
func (a *Adapter) emitSpan(startType, deltaType, endType, text string, emit EmitFunc) error {
	id := uuid.NewString()
	if err := emit(models.WireEvent{Type: startType, ID: id}); err != nil {
		return err
	}
	for _, delta := range chunkRunes(text, a.chunkWidth) {
		if err := emit(models.WireEvent{Type: deltaType, ID: id, Delta: delta}); err != nil {
			return err
		}
	}
	return emit(models.WireEvent{Type: endType, ID: id})
}

// emitInterrupt streams the pause message as a normal chunked assistant
// message, bracketed like any other entry; the caller follows with the
// finish event.
func (a *Adapter) emitInterrupt(reason string, emit EmitFunc) error {
	if err := emit(models.WireEvent{Type: models.EventStartStep}); err != nil {
		return err
	}
	if err := emit(models.WireEvent{Type: models.EventStart, MessageID: newMessageID()}); err != nil {
		return err
	}
	if err := a.emitSpan(models.EventTextStart, models.EventTextDelta, models.EventTextEnd, reason, emit); err != nil {
		return err
	}
	return emit(models.WireEvent{Type: models.EventFinishStep})
}

// parseOutput prefers structured tool output, falling back to raw text.
func parseOutput(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// chunkRunes splits text into fixed-width rune chunks.
func chunkRunes(text string, width int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += width {
		end := i + width
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

func newMessageID() string {
	return fmt.Sprintf("msg_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
