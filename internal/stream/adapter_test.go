package stream

import (
	"strings"
	"testing"

	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

func collect(t *testing.T, snaps []models.Snapshot, width int) []models.WireEvent {
	t.Helper()
	ch := make(chan models.Snapshot, len(snaps))
	for _, s := range snaps {
		ch <- s
	}
	close(ch)

	var events []models.WireEvent
	err := New(width).Stream(ch, func(ev models.WireEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	return events
}

func stateWith(msgs ...models.Message) *models.SessionState {
	return &models.SessionState{ThreadID: "t", Stage: models.StageDone, Messages: msgs}
}

func pendingState(msgs ...models.Message) *models.SessionState {
	return &models.SessionState{ThreadID: "t", Stage: models.StageDraft, Messages: msgs}
}

func terminalEvents(events []models.WireEvent) []models.WireEvent {
	var out []models.WireEvent
	for _, ev := range events {
		if ev.Type == models.EventFinish || ev.Type == models.EventError {
			out = append(out, ev)
		}
	}
	return out
}

func TestAssistantTextEntry(t *testing.T) {
	text := strings.Repeat("abcde", 22) // 110 runes -> 3 deltas at width 50
	events := collect(t, []models.Snapshot{
		{State: stateWith(
			models.Message{Role: models.RoleUser, Content: "question"},
			models.Message{ID: "msg_1", Role: models.RoleAssistant, Content: text},
		)},
	}, 50)

	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	want := []string{"start-step", "start", "text-start", "text-delta", "text-delta", "text-delta", "text-end", "finish-step", "finish"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("event order = %v, want %v", types, want)
	}

	var rebuilt strings.Builder
	for _, ev := range events {
		if ev.Type == models.EventTextDelta {
			rebuilt.WriteString(ev.Delta)
		}
	}
	if rebuilt.String() != text {
		t.Errorf("reassembled text mismatch")
	}
	if events[1].MessageID != "msg_1" {
		t.Errorf("start messageId = %q, want msg_1", events[1].MessageID)
	}
}

func TestToolOnlyEntryHasNoTextEvents(t *testing.T) {
	events := collect(t, []models.Snapshot{
		{State: stateWith(models.Message{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{{
				ID:    "call_1",
				Name:  "search_documents",
				Input: map[string]any{"query": "rag"},
			}},
		})},
	}, 50)

	var sawToolInput bool
	for _, ev := range events {
		switch ev.Type {
		case models.EventToolInputAvailable:
			sawToolInput = true
			if ev.ToolCallID != "call_1" || ev.ToolName != "search_documents" {
				t.Errorf("tool-input event = %+v", ev)
			}
		case models.EventTextStart, models.EventTextDelta, models.EventTextEnd:
			t.Errorf("tool-only entry emitted %s", ev.Type)
		}
	}
	if !sawToolInput {
		t.Error("missing tool-input-available")
	}
}

func TestToolResultEntry(t *testing.T) {
	events := collect(t, []models.Snapshot{
		{State: stateWith(models.Message{
			Role:       models.RoleTool,
			ToolCallID: "call_1",
			ToolResult: `{"chunks": 2}`,
		})},
	}, 50)

	var out *models.WireEvent
	for i := range events {
		if events[i].Type == models.EventToolOutputAvailable {
			out = &events[i]
		}
		if events[i].Type == models.EventStart {
			t.Error("tool-result entry must not open a new message")
		}
	}
	if out == nil {
		t.Fatal("missing tool-output-available")
	}
	if out.ToolCallID != "call_1" {
		t.Errorf("toolCallId = %q", out.ToolCallID)
	}
	m, ok := out.Output.(map[string]any)
	if !ok || m["chunks"] != float64(2) {
		t.Errorf("output not parsed as structured data: %#v", out.Output)
	}
}

func TestToolResultRawFallback(t *testing.T) {
	events := collect(t, []models.Snapshot{
		{State: stateWith(models.Message{
			Role:       models.RoleTool,
			ToolCallID: "call_1",
			ToolResult: "=== RETRIEVAL CALL 1 ===\nplain text",
		})},
	}, 50)

	for _, ev := range events {
		if ev.Type == models.EventToolOutputAvailable {
			if s, ok := ev.Output.(string); !ok || !strings.Contains(s, "plain text") {
				t.Errorf("raw output = %#v", ev.Output)
			}
			return
		}
	}
	t.Fatal("missing tool-output-available")
}

func TestToolInputPrecedesOutput(t *testing.T) {
	call := models.Message{
		Role:      models.RoleAssistant,
		ToolCalls: []models.ToolCall{{ID: "call_1", Name: "search_documents"}},
	}
	result := models.Message{Role: models.RoleTool, ToolCallID: "call_1", ToolResult: "ctx"}

	events := collect(t, []models.Snapshot{
		{State: stateWith(call)},
		{State: stateWith(call, result)},
	}, 50)

	inputIdx, outputIdx := -1, -1
	for i, ev := range events {
		if ev.Type == models.EventToolInputAvailable {
			inputIdx = i
		}
		if ev.Type == models.EventToolOutputAvailable {
			outputIdx = i
		}
	}
	if inputIdx < 0 || outputIdx < 0 || inputIdx > outputIdx {
		t.Errorf("tool-input at %d, tool-output at %d", inputIdx, outputIdx)
	}
}

func TestNewEntriesEmittedOncePerSnapshot(t *testing.T) {
	first := models.Message{ID: "m1", Role: models.RoleAssistant, Content: "plan"}
	second := models.Message{ID: "m2", Role: models.RoleAssistant, Content: "critique"}

	events := collect(t, []models.Snapshot{
		{State: stateWith(first)},
		{State: stateWith(first, second)},
	}, 50)

	starts := 0
	for _, ev := range events {
		if ev.Type == models.EventStart {
			starts++
		}
	}
	if starts != 2 {
		t.Errorf("start events = %d, want 2 (one per entry, no repeats)", starts)
	}
}

func TestExactlyOneTerminalFinish(t *testing.T) {
	events := collect(t, []models.Snapshot{
		{State: stateWith(models.Message{Role: models.RoleAssistant, Content: "answer"})},
	}, 50)

	terms := terminalEvents(events)
	if len(terms) != 1 || terms[0].Type != models.EventFinish || terms[0].FinishReason != "" {
		t.Errorf("terminal events = %v, want single plain finish", terms)
	}
	if events[len(events)-1].Type != models.EventFinish {
		t.Errorf("finish is not the last event")
	}
}

func TestErrorSnapshotTerminates(t *testing.T) {
	ch := make(chan models.Snapshot, 2)
	ch <- models.Snapshot{Err: errTest("backend down")}
	ch <- models.Snapshot{State: stateWith(models.Message{Role: models.RoleAssistant, Content: "never"})}
	close(ch)

	var events []models.WireEvent
	if err := New(50).Stream(ch, func(ev models.WireEvent) error {
		events = append(events, ev)
		return nil
	}); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if len(events) != 1 || events[0].Type != models.EventError || events[0].ErrorText != "backend down" {
		t.Errorf("events = %v, want single error event", events)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestInterruptEmitsChunkedTextThenFinish(t *testing.T) {
	reason := strings.Repeat("approval needed ", 8)
	events := collect(t, []models.Snapshot{
		{State: stateWith(), Interrupt: reason},
	}, 50)

	last := events[len(events)-1]
	if last.Type != models.EventFinish || last.FinishReason != "interrupt" {
		t.Fatalf("last event = %+v, want finish with interrupt reason", last)
	}

	var rebuilt strings.Builder
	deltas := 0
	for _, ev := range events {
		if ev.Type == models.EventTextDelta {
			deltas++
			rebuilt.WriteString(ev.Delta)
		}
	}
	if rebuilt.String() != reason {
		t.Errorf("interrupt text mismatch")
	}
	if deltas < 2 {
		t.Errorf("deltas = %d, want chunked output", deltas)
	}
	if len(terminalEvents(events)) != 1 {
		t.Errorf("terminal events = %v, want exactly one", terminalEvents(events))
	}
}

func TestInterruptBracketsStep(t *testing.T) {
	events := collect(t, []models.Snapshot{
		{State: stateWith(), Interrupt: "needs approval"},
	}, 50)

	if events[0].Type != models.EventStartStep {
		t.Errorf("first event = %q, want start-step", events[0].Type)
	}
	if n := len(events); n < 2 || events[n-2].Type != models.EventFinishStep {
		t.Errorf("event before finish = %q, want finish-step", events[n-2].Type)
	}
	steps := map[string]int{}
	for _, ev := range events {
		steps[ev.Type]++
	}
	if steps[models.EventStartStep] != steps[models.EventFinishStep] {
		t.Errorf("start-step = %d, finish-step = %d, want matched pairs",
			steps[models.EventStartStep], steps[models.EventFinishStep])
	}
}

func TestResumedRunSkipsCheckpointedTranscript(t *testing.T) {
	old1 := models.Message{ID: "m1", Role: models.RoleUser, Content: "question"}
	old2 := models.Message{ID: "m2", Role: models.RoleAssistant, Content: "plan"}
	old3 := models.Message{ID: "m3", Role: models.RoleAssistant, Content: "critique"}
	fresh := models.Message{ID: "m4", Role: models.RoleAssistant, Content: "answer"}

	// A resumed run's first snapshot carries the whole checkpointed
	// transcript; only the newest entry goes to the client.
	events := collect(t, []models.Snapshot{
		{State: stateWith(old1, old2, old3, fresh)},
	}, 50)

	starts := 0
	for _, ev := range events {
		if ev.Type == models.EventStart {
			starts++
			if ev.MessageID != "m4" {
				t.Errorf("replayed entry %q, want only m4", ev.MessageID)
			}
		}
	}
	if starts != 1 {
		t.Errorf("start events = %d, want 1", starts)
	}
}

func TestCancelledRunEndsWithError(t *testing.T) {
	// Channel closed mid-run without a done-stage snapshot: the run was
	// cancelled or superseded, never completed.
	events := collect(t, []models.Snapshot{
		{State: pendingState(models.Message{ID: "m1", Role: models.RoleAssistant, Content: "plan"})},
	}, 50)

	terms := terminalEvents(events)
	if len(terms) != 1 || terms[0].Type != models.EventError {
		t.Fatalf("terminal events = %v, want single error", terms)
	}
	if terms[0].ErrorText == "" {
		t.Error("error event missing errorText")
	}
}

func TestNilStateSnapshotSkipped(t *testing.T) {
	events := collect(t, []models.Snapshot{
		{},
		{State: stateWith(models.Message{Role: models.RoleAssistant, Content: "ok"})},
	}, 50)

	if len(terminalEvents(events)) != 1 {
		t.Errorf("bad snapshot severed the stream: %v", events)
	}
}

func TestSourceDocumentEvents(t *testing.T) {
	events := collect(t, []models.Snapshot{
		{State: stateWith(models.Message{
			Role:    models.RoleAssistant,
			Content: "answer [C1]",
			Sources: []models.SourceRef{{SourceID: "C1", Title: "rag.pdf"}},
		})},
	}, 50)

	for _, ev := range events {
		if ev.Type == models.EventSourceDocument {
			if ev.SourceID != "C1" || ev.Title != "rag.pdf" {
				t.Errorf("source-document = %+v", ev)
			}
			return
		}
	}
	t.Error("missing source-document event")
}
