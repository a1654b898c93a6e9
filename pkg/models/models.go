// Package models defines the shared data model for the IKMS question
// answering service: session state threaded through the orchestration
// pipeline, evidence chunks and citations, transcript messages, and the
// typed wire events of the outbound streaming protocol.
package models

import (
	"time"
)

// ── Transcript ───────────────────────────────────────────────

// Role tags a transcript message with its author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation issued by a stage agent.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// SourceRef is an evidence source surfaced alongside a message.
type SourceRef struct {
	SourceID  string `json:"source_id"`
	Title     string `json:"title,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	URL       string `json:"url,omitempty"`
}

// FileRef is a file reference surfaced alongside a message.
type FileRef struct {
	URL       string `json:"url"`
	MediaType string `json:"media_type"`
}

// Message is one role-tagged entry in the session transcript. Assistant
// entries may carry tool calls, reasoning traces, and source/file
// references; tool entries carry the result payload for a prior call.
type Message struct {
	ID         string      `json:"id,omitempty"`
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	Reasoning  string      `json:"reasoning,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	ToolResult string      `json:"tool_result,omitempty"`
	Sources    []SourceRef `json:"sources,omitempty"`
	Files      []FileRef   `json:"files,omitempty"`
	CreatedAt  time.Time   `json:"created_at,omitempty"`
}

// ── Evidence & citations ─────────────────────────────────────

// EvidenceChunk is the atomic unit of retrieval: a contiguous span of
// source-document text with page/source metadata. ID is the stable index
// key; re-upserting the same id replaces the stored chunk. Immutable once
// retrieved.
type EvidenceChunk struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
	Page    *int   `json:"page,omitempty"`
	Source  string `json:"source"`
}

// RetrievalCitation links a stable chunk id (C1, C2, ...) to the chunk it
// was assigned to. Snippet is capped at 150 characters; FullContent keeps
// the untruncated text for verification.
type RetrievalCitation struct {
	ChunkID     string `json:"chunk_id"`
	Page        *int   `json:"page,omitempty"`
	Snippet     string `json:"snippet"`
	Source      string `json:"source"`
	FullContent string `json:"full_content"`
}

// QueryPlan is the Planner's search strategy. An empty SubQueries list
// means "retrieve with the original question directly".
type QueryPlan struct {
	PlanNarrative string   `json:"plan"`
	SubQueries    []string `json:"sub_questions"`
}

// CriticReport is the Critic's structured verdict over retrieved context.
type CriticReport struct {
	FilteredContext  string   `json:"filtered_context"`
	ContextRationale []string `json:"context_rationale"`
}

// RetrievalCall records one executed retrieval tool invocation: the call
// the Retriever issued and the serialized context block it produced.
// Queued on session state until the streaming drain emits it.
type RetrievalCall struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Query      string         `json:"query"`
	Input      map[string]any `json:"input,omitempty"`
	Output     string         `json:"output"`
}

// ── Session state ────────────────────────────────────────────

// Stage identifies the next node the orchestration machine will execute.
type Stage string

const (
	StagePlan     Stage = "plan"
	StageRetrieve Stage = "retrieve"
	StageCritic   Stage = "critic"
	StageDraft    Stage = "draft"
	StageVerify   Stage = "verify"
	StageDone     Stage = "done"
)

// SessionState is the single mutable record threaded through the pipeline.
// It is the unit of checkpointing, keyed by ThreadID. The orchestration
// engine is the only writer; the streaming adapter reads copies.
type SessionState struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	Question string `json:"question"`
	Stage    Stage  `json:"stage"`

	QueryPlan        *QueryPlan                   `json:"query_plan,omitempty"`
	Context          string                       `json:"context"`
	CitationMap      map[string]RetrievalCitation `json:"citation_map,omitempty"`
	DraftAnswer      string                       `json:"draft_answer,omitempty"`
	FinalAnswer      string                       `json:"final_answer,omitempty"`
	ContextRationale []string                     `json:"context_rationale,omitempty"`

	// Retrieval loop bookkeeping: a FIFO of sub-queries not yet executed
	// plus a decrement-to-zero counter, so the loop is bounded by
	// construction rather than by agent self-assessment.
	PendingRetrievalCalls []string        `json:"pending_retrieval_calls,omitempty"`
	RetrievalsLeft        int             `json:"retrievals_left"`
	ToolCallTrace         []RetrievalCall `json:"tool_call_trace,omitempty"`

	Messages []Message `json:"messages"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LastMessage returns the most recent transcript entry, or nil.
func (s *SessionState) LastMessage() *Message {
	if s == nil || len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// Clone returns a deep copy safe to hand to the streaming adapter while
// the engine keeps mutating the original.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	cp := *s
	if s.QueryPlan != nil {
		qp := *s.QueryPlan
		qp.SubQueries = append([]string(nil), s.QueryPlan.SubQueries...)
		cp.QueryPlan = &qp
	}
	if s.CitationMap != nil {
		cp.CitationMap = make(map[string]RetrievalCitation, len(s.CitationMap))
		for k, v := range s.CitationMap {
			cp.CitationMap[k] = v
		}
	}
	cp.ContextRationale = append([]string(nil), s.ContextRationale...)
	cp.PendingRetrievalCalls = append([]string(nil), s.PendingRetrievalCalls...)
	cp.ToolCallTrace = append([]RetrievalCall(nil), s.ToolCallTrace...)
	cp.Messages = append([]Message(nil), s.Messages...)
	return &cp
}

// Snapshot is one unit of the engine → adapter stream: the session state
// after a completed stage or loop iteration, an interrupt marker, or a
// terminal run failure. Err is transport-internal and never serialized.
type Snapshot struct {
	State     *SessionState `json:"state,omitempty"`
	Interrupt string        `json:"interrupt,omitempty"`
	Err       error         `json:"-"`
}

// ── Wire protocol ────────────────────────────────────────────

// Wire event types, one per discriminated-union variant. Framed on the
// transport as `data: <json>\n\n`, terminated by `data: [DONE]\n\n`.
const (
	EventStart               = "start"
	EventTextStart           = "text-start"
	EventTextDelta           = "text-delta"
	EventTextEnd             = "text-end"
	EventReasoningStart      = "reasoning-start"
	EventReasoningDelta      = "reasoning-delta"
	EventReasoningEnd        = "reasoning-end"
	EventToolInputAvailable  = "tool-input-available"
	EventToolOutputAvailable = "tool-output-available"
	EventFile                = "file"
	EventSourceURL           = "source-url"
	EventSourceDocument      = "source-document"
	EventStartStep           = "start-step"
	EventFinishStep          = "finish-step"
	EventFinish              = "finish"
	EventError               = "error"
)

// WireEvent is one discrete, typed message of the outbound streaming
// protocol. Only the fields relevant to Type are populated.
type WireEvent struct {
	Type         string `json:"type"`
	MessageID    string `json:"messageId,omitempty"`
	ID           string `json:"id,omitempty"`
	Delta        string `json:"delta,omitempty"`
	ToolCallID   string `json:"toolCallId,omitempty"`
	ToolName     string `json:"toolName,omitempty"`
	Input        any    `json:"input,omitempty"`
	Output       any    `json:"output,omitempty"`
	URL          string `json:"url,omitempty"`
	MediaType    string `json:"mediaType,omitempty"`
	SourceID     string `json:"sourceId,omitempty"`
	Title        string `json:"title,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	ErrorText    string `json:"errorText,omitempty"`
}

// DoneSentinel is the literal payload closing every event stream.
const DoneSentinel = "[DONE]"

// ── API DTOs ─────────────────────────────────────────────────

// ChatRequest is the upstream request starting (or resuming) a run.
// Mirrors the UI-message format the frontend hooks send.
type ChatRequest struct {
	ID       string      `json:"id"`
	Messages []UIMessage `json:"messages"`
	Trigger  string      `json:"trigger,omitempty"`
	ThreadID string      `json:"thread_id,omitempty"`
	Resume   bool        `json:"resume,omitempty"`
}

// UIMessage is a frontend transcript entry; text lives either in Content
// or in typed Parts.
type UIMessage struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role"`
	Content string          `json:"content,omitempty"`
	Parts   []UIMessagePart `json:"parts,omitempty"`
}

// UIMessagePart is one typed fragment of a UI message.
type UIMessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UserText extracts the text of the most recent user message.
func (r *ChatRequest) UserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		m := r.Messages[i]
		if m.Role != string(RoleUser) {
			continue
		}
		if m.Content != "" {
			return m.Content
		}
		for _, p := range m.Parts {
			if p.Type == "text" && p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}

// IngestRequest carries already-extracted document text for indexing into
// the caller's namespace. PDF parsing happens upstream.
type IngestRequest struct {
	Documents    []IngestDocument `json:"documents"`
	ChunkSize    int              `json:"chunk_size,omitempty"`
	ChunkOverlap int              `json:"chunk_overlap,omitempty"`
}

// IngestDocument is one raw document to chunk, embed, and upsert.
type IngestDocument struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
	Page    *int   `json:"page,omitempty"`
}

// IngestResult summarizes an ingestion request.
type IngestResult struct {
	DocumentsProcessed int   `json:"documents_processed"`
	ChunksIndexed      int   `json:"chunks_indexed"`
	ElapsedMs          int64 `json:"elapsed_ms"`
}

// RunResult is the terminal output of one orchestration run.
type RunResult struct {
	FinalAnswer string                       `json:"final_answer"`
	Context     string                       `json:"context"`
	CitationMap map[string]RetrievalCitation `json:"citation_map"`
}
