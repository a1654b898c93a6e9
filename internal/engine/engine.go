// Package engine implements the orchestration state machine: Plan, a
// bounded Retrieve loop, Critic, Draft, Verify. It owns session state,
// checkpoints it after each completed stage, and publishes one state
// snapshot per appended transcript entry for the streaming adapter.
//
// Execution within a run is strictly sequential; citation ids depend on
// prior retrieval calls. Concurrent runs on different threads are
// independent and tracked in a cancellation registry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nadil-Dulnidu/IKMS/internal/agents"
	"github.com/Nadil-Dulnidu/IKMS/internal/citations"
	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// Fallback rationales for recoverable stage defects.
const (
	rationaleNoContext    = "No context available for analysis"
	rationaleCriticFailed = "Context critic analysis unavailable - using original context"
)

// Config selects the per-stage models and retrieval fan-out.
type Config struct {
	ChatModel      string
	ReasoningModel string
	RetrievalK     int
}

// Engine runs QA sessions. Safe for concurrent use across threads; state
// mutation within one thread is single-writer.
type Engine struct {
	gen         contracts.Generator
	evidence    contracts.EvidenceStore
	checkpoints contracts.CheckpointStore
	retrievalK  int

	planner   *agents.Agent
	retriever *agents.Agent
	critic    *agents.Agent
	drafter   *agents.Agent
	verifier  *agents.Agent

	runsMu sync.RWMutex
	runs   map[string]*runHandle // threadID → active run

	gatesMu sync.RWMutex
	gates   map[string]string // threadID → interrupt reason
}

// New builds an engine over the given collaborators.
func New(gen contracts.Generator, evidence contracts.EvidenceStore, checkpoints contracts.CheckpointStore, conf Config) *Engine {
	if conf.RetrievalK <= 0 {
		conf.RetrievalK = 4
	}
	return &Engine{
		gen:         gen,
		evidence:    evidence,
		checkpoints: checkpoints,
		retrievalK:  conf.RetrievalK,
		planner:     agents.NewPlanner(conf.ReasoningModel),
		retriever:   agents.NewRetriever(conf.ChatModel),
		critic:      agents.NewCritic(conf.ReasoningModel),
		drafter:     agents.NewDrafter(conf.ChatModel),
		verifier:    agents.NewVerifier(conf.ChatModel),
		runs:        make(map[string]*runHandle),
		gates:       make(map[string]string),
	}
}

// RunRequest starts or resumes one session run.
type RunRequest struct {
	ThreadID string
	UserID   string
	Question string
	Resume   bool
}

// Run is a handle on an in-flight run. Snapshots closes when the run ends.
type Run struct {
	ThreadID  string
	Snapshots <-chan models.Snapshot
}

type runHandle struct {
	cancel context.CancelFunc
}

// Start launches a run and returns immediately. The run goroutine owns
// the state; the caller consumes Snapshots until closed. A second Start
// on the same thread id cancels the first run.
func (e *Engine) Start(ctx context.Context, req RunRequest) (*Run, error) {
	state, err := e.initialState(ctx, req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := &runHandle{cancel: cancel}
	e.runsMu.Lock()
	if prev, ok := e.runs[req.ThreadID]; ok {
		prev.cancel()
	}
	e.runs[req.ThreadID] = handle
	e.runsMu.Unlock()

	snapshots := make(chan models.Snapshot)
	go func() {
		defer close(snapshots)
		defer func() {
			cancel()
			// A superseded run must not evict its successor's entry.
			e.runsMu.Lock()
			if e.runs[req.ThreadID] == handle {
				delete(e.runs, req.ThreadID)
			}
			e.runsMu.Unlock()
		}()
		e.execute(runCtx, state, snapshots)
	}()

	return &Run{ThreadID: req.ThreadID, Snapshots: snapshots}, nil
}

func (e *Engine) initialState(ctx context.Context, req RunRequest) (*models.SessionState, error) {
	if req.Resume {
		state, err := e.checkpoints.Load(ctx, req.ThreadID)
		if err == nil && state.Stage != models.StageDone {
			log.Info().Str("thread", req.ThreadID).Str("stage", string(state.Stage)).Msg("resuming session")
			return state, nil
		}
		if err != nil && !errors.Is(err, contracts.ErrCheckpointNotFound) {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
	}

	if req.Question == "" {
		return nil, fmt.Errorf("question is required")
	}

	now := time.Now()
	return &models.SessionState{
		ThreadID:  req.ThreadID,
		UserID:    req.UserID,
		Question:  req.Question,
		Stage:     models.StagePlan,
		Messages:  []models.Message{{ID: newMessageID(), Role: models.RoleUser, Content: req.Question, CreatedAt: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Interrupt requests a human-in-the-loop pause for the thread. The run
// stops at the next stage boundary. Returns false when no run is active.
func (e *Engine) Interrupt(threadID, reason string) bool {
	e.runsMu.RLock()
	_, active := e.runs[threadID]
	e.runsMu.RUnlock()
	if !active {
		return false
	}

	e.gatesMu.Lock()
	e.gates[threadID] = reason
	e.gatesMu.Unlock()
	return true
}

// Session returns the checkpointed state for a thread.
func (e *Engine) Session(ctx context.Context, threadID string) (*models.SessionState, error) {
	return e.checkpoints.Load(ctx, threadID)
}

// ── Run loop ────────────────────────────────────────────────

type stageFunc func(context.Context, *models.SessionState, chan<- models.Snapshot) error

func (e *Engine) execute(ctx context.Context, state *models.SessionState, out chan<- models.Snapshot) {
	stages := map[models.Stage]stageFunc{
		models.StagePlan:     e.planStage,
		models.StageRetrieve: e.retrieveStage,
		models.StageCritic:   e.criticStage,
		models.StageDraft:    e.draftStage,
		models.StageVerify:   e.verifyStage,
	}

	for state.Stage != models.StageDone {
		if reason, interrupted := e.takeGate(state.ThreadID); interrupted {
			e.checkpoint(ctx, state)
			emit(ctx, out, models.Snapshot{State: state.Clone(), Interrupt: reason})
			return
		}
		if ctx.Err() != nil {
			return
		}

		fn, ok := stages[state.Stage]
		if !ok {
			emit(ctx, out, models.Snapshot{Err: fmt.Errorf("unknown stage %q", state.Stage)})
			return
		}

		if err := fn(ctx, state, out); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Str("thread", state.ThreadID).Str("stage", string(state.Stage)).Err(err).Msg("run failed")
			emit(ctx, out, models.Snapshot{Err: err})
			return
		}

		e.checkpoint(ctx, state)
	}
}

func (e *Engine) takeGate(threadID string) (string, bool) {
	e.gatesMu.Lock()
	defer e.gatesMu.Unlock()
	reason, ok := e.gates[threadID]
	if ok {
		delete(e.gates, threadID)
	}
	return reason, ok
}

func (e *Engine) checkpoint(ctx context.Context, state *models.SessionState) {
	state.UpdatedAt = time.Now()
	if err := e.checkpoints.Save(ctx, state); err != nil {
		log.Warn().Str("thread", state.ThreadID).Err(err).Msg("checkpoint save failed")
	}
}

// emit delivers a snapshot unless the run context is already gone.
func emit(ctx context.Context, out chan<- models.Snapshot, snap models.Snapshot) {
	select {
	case out <- snap:
	case <-ctx.Done():
	}
}

// appendAndEmit appends a transcript entry and publishes the new state.
func appendAndEmit(ctx context.Context, state *models.SessionState, out chan<- models.Snapshot, msg models.Message) {
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	state.Messages = append(state.Messages, msg)
	emit(ctx, out, models.Snapshot{State: state.Clone()})
}

// ── Stages ──────────────────────────────────────────────────

// planStage decomposes the question into sub-queries. Planning is
// advisory: malformed output leaves the queue empty and retrieval falls
// back to the question itself.
func (e *Engine) planStage(ctx context.Context, state *models.SessionState, out chan<- models.Snapshot) error {
	gen, err := e.planner.Invoke(ctx, e.gen, models.Message{Role: models.RoleUser, Content: state.Question})
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	plan, ok := agents.DecodePlan(gen)
	if ok {
		state.QueryPlan = &plan
		appendAndEmit(ctx, state, out, models.Message{
			Role:    models.RoleAssistant,
			Content: agents.PlanMarkdown(plan),
		})
		log.Info().Str("thread", state.ThreadID).Int("sub_queries", len(plan.SubQueries)).Msg("query plan created")
	} else {
		log.Warn().Str("thread", state.ThreadID).Msg("planner output malformed, using question directly")
	}

	state.PendingRetrievalCalls = nil
	if state.QueryPlan != nil {
		state.PendingRetrievalCalls = append(state.PendingRetrievalCalls, state.QueryPlan.SubQueries...)
	}
	if len(state.PendingRetrievalCalls) == 0 {
		state.PendingRetrievalCalls = []string{state.Question}
	}
	state.RetrievalsLeft = len(state.PendingRetrievalCalls)
	state.Stage = models.StageRetrieve
	return nil
}

// retrieveStage executes the bounded retrieval loop: one evidence-store
// call per pending query, driven by a decrementing counter, then drains
// the tool-call trace into the transcript.
func (e *Engine) retrieveStage(ctx context.Context, state *models.SessionState, out chan<- models.Snapshot) error {
	if state.CitationMap == nil {
		state.CitationMap = make(map[string]models.RetrievalCitation)
	}

	var contextBlocks []string
	callNumber := 0

	for state.RetrievalsLeft > 0 && len(state.PendingRetrievalCalls) > 0 {
		query := state.PendingRetrievalCalls[0]
		state.PendingRetrievalCalls = state.PendingRetrievalCalls[1:]
		callNumber++

		call, err := e.retrieveOnce(ctx, state, callNumber, query)
		if err != nil {
			return err
		}
		contextBlocks = append(contextBlocks, call.Output)
		state.ToolCallTrace = append(state.ToolCallTrace, *call)
		state.RetrievalsLeft--
	}

	state.Context = strings.Join(contextBlocks, "\n\n")
	log.Info().Str("thread", state.ThreadID).Int("calls", callNumber).Int("citations", len(state.CitationMap)).Msg("retrieval complete")

	// Drain the trace into the transcript: one assistant entry carrying
	// the tool call, one tool entry carrying its result, per call.
	for _, call := range state.ToolCallTrace {
		appendAndEmit(ctx, state, out, models.Message{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{{
				ID:    call.ToolCallID,
				Name:  call.ToolName,
				Input: call.Input,
			}},
		})
		appendAndEmit(ctx, state, out, models.Message{
			Role:       models.RoleTool,
			ToolCallID: call.ToolCallID,
			ToolResult: call.Output,
		})
	}
	state.ToolCallTrace = nil

	state.Stage = models.StageCritic
	return nil
}

// retrieveOnce invokes the Retriever for one query and serves its single
// tool call against the evidence store. Extra tool calls are tolerated
// and ignored; zero tool calls fall back to a direct store query.
func (e *Engine) retrieveOnce(ctx context.Context, state *models.SessionState, callNumber int, query string) (*models.RetrievalCall, error) {
	gen, err := e.retriever.Invoke(ctx, e.gen, models.Message{Role: models.RoleUser, Content: query})
	if err != nil {
		return nil, fmt.Errorf("retrieve %q: %w", query, err)
	}

	call := models.ToolCall{
		ID:    "call_" + uuid.NewString(),
		Name:  agents.SearchToolName,
		Input: map[string]any{"query": query},
	}
	if len(gen.ToolCalls) > 0 {
		call = gen.ToolCalls[0]
		if q, ok := call.Input["query"].(string); ok && q != "" {
			query = q
		}
		if len(gen.ToolCalls) > 1 {
			log.Warn().Str("thread", state.ThreadID).Int("extra", len(gen.ToolCalls)-1).Msg("retriever issued extra tool calls, ignoring")
		}
	}

	chunks, err := e.evidence.Search(ctx, state.UserID, query, e.retrievalK)
	if err != nil {
		return nil, fmt.Errorf("evidence search %q: %w", query, err)
	}

	// Ids stay globally sequential across calls within the run.
	contextText, cites := citations.SerializeWithIDsFrom(chunks, len(state.CitationMap))
	for id, c := range cites {
		state.CitationMap[id] = c
	}

	block := fmt.Sprintf("=== RETRIEVAL CALL %d (query: %q) ===\n\n%s", callNumber, query, contextText)
	return &models.RetrievalCall{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Query:      query,
		Input:      call.Input,
		Output:     block,
	}, nil
}

// criticStage filters and reorders the retrieved context. Empty context
// skips the agent; malformed output keeps the original context.
func (e *Engine) criticStage(ctx context.Context, state *models.SessionState, out chan<- models.Snapshot) error {
	if strings.TrimSpace(state.Context) == "" {
		state.Context = ""
		state.ContextRationale = []string{rationaleNoContext}
		state.Stage = models.StageDraft
		return nil
	}

	prompt := fmt.Sprintf(`Question: %s

Retrieved Context:
%s

Please analyze each chunk's relevance to the question, filter out irrelevant content, and provide the filtered context with your rationales.`, state.Question, state.Context)

	gen, err := e.critic.Invoke(ctx, e.gen, models.Message{Role: models.RoleUser, Content: prompt})
	if err != nil {
		return fmt.Errorf("critic: %w", err)
	}

	report, ok := agents.DecodeCriticReport(gen)
	if ok {
		state.Context = report.FilteredContext
		state.ContextRationale = report.ContextRationale
		appendAndEmit(ctx, state, out, models.Message{
			Role:    models.RoleAssistant,
			Content: agents.CriticMarkdown(report),
		})
	} else {
		log.Warn().Str("thread", state.ThreadID).Msg("critic output malformed, keeping original context")
		state.ContextRationale = []string{rationaleCriticFailed}
		appendAndEmit(ctx, state, out, models.Message{Role: models.RoleAssistant})
	}

	state.Stage = models.StageDraft
	return nil
}

// draftStage produces the cited draft answer.
func (e *Engine) draftStage(ctx context.Context, state *models.SessionState, out chan<- models.Snapshot) error {
	prompt := fmt.Sprintf("Question: %s\n\nContext:\n%s", state.Question, state.Context)

	gen, err := e.drafter.Invoke(ctx, e.gen, models.Message{Role: models.RoleUser, Content: prompt})
	if err != nil {
		return fmt.Errorf("draft: %w", err)
	}

	state.DraftAnswer = gen.Content
	appendAndEmit(ctx, state, out, models.Message{Role: models.RoleAssistant})

	state.Stage = models.StageVerify
	return nil
}

// verifyStage checks the draft against the context, enforces citation
// integrity mechanically, and renders the final answer with references.
func (e *Engine) verifyStage(ctx context.Context, state *models.SessionState, out chan<- models.Snapshot) error {
	prompt := fmt.Sprintf(`Question: %s

Context:
%s

Draft Answer:
%s

Please verify and correct the draft answer, removing any unsupported claims.`, state.Question, state.Context, state.DraftAnswer)

	gen, err := e.verifier.Invoke(ctx, e.gen, models.Message{Role: models.RoleUser, Content: prompt})
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	answer := enforceCitations(gen.Content, state.CitationMap)
	state.FinalAnswer = answer

	final := models.Message{
		Role:    models.RoleAssistant,
		Content: agents.FinalAnswerMarkdown(answer, state.CitationMap),
	}
	for _, id := range citedIDs(answer, state.CitationMap) {
		c := state.CitationMap[id]
		final.Sources = append(final.Sources, models.SourceRef{
			SourceID: c.ChunkID,
			Title:    c.Source,
		})
	}

	// Done before the final emit: consumers rely on the last snapshot
	// carrying the done stage to distinguish completion from cancellation.
	state.Stage = models.StageDone
	appendAndEmit(ctx, state, out, final)
	return nil
}

// ── Citation enforcement ────────────────────────────────────

var citationMarker = regexp.MustCompile(`\[C(\d+)\]`)

// enforceCitations strips any citation marker whose id is absent from
// the citation map, so markers in the final answer are always a subset
// of known chunk ids.
func enforceCitations(answer string, cites map[string]models.RetrievalCitation) string {
	return citationMarker.ReplaceAllStringFunc(answer, func(marker string) string {
		id := strings.Trim(marker, "[]")
		if _, ok := cites[id]; ok {
			return marker
		}
		return ""
	})
}

// citedIDs returns the known citation ids used in answer, in first-use order.
func citedIDs(answer string, cites map[string]models.RetrievalCitation) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range citationMarker.FindAllString(answer, -1) {
		id := strings.Trim(m, "[]")
		if _, ok := cites[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func newMessageID() string {
	return fmt.Sprintf("msg_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
