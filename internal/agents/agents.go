// Package agents defines the five stage agents of the QA pipeline as
// declarative configurations: a role prompt plus, where the stage needs
// them, a tool spec or a structured-output schema. The engine invokes
// them through the Generator contract; agents hold no model client state.
package agents

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// SearchToolName is the single tool exposed to the Retriever.
const SearchToolName = "search_documents"

// Agent is one stage agent configuration.
type Agent struct {
	Name   string
	System string
	Model  string
	Tools  []contracts.ToolSpec
	Schema *contracts.SchemaSpec
}

// Invoke runs the agent once against the given transcript.
func (a *Agent) Invoke(ctx context.Context, gen contracts.Generator, msgs ...models.Message) (*contracts.Generation, error) {
	return gen.Generate(ctx, &contracts.GenerateRequest{
		Model:    a.Model,
		System:   a.System,
		Messages: msgs,
		Tools:    a.Tools,
		Schema:   a.Schema,
	})
}

// NewPlanner returns the query-planning agent. Output is a QueryPlan.
func NewPlanner(model string) *Agent {
	return &Agent{
		Name:   "planner",
		System: plannerPrompt,
		Model:  model,
		Schema: &contracts.SchemaSpec{
			Name: "query_plan",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"plan": map[string]any{
						"type":        "string",
						"description": "Natural language search strategy",
					},
					"sub_questions": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Decomposed questions for focused retrieval",
					},
				},
				"required":             []string{"plan", "sub_questions"},
				"additionalProperties": false,
			},
		},
	}
}

// NewRetriever returns the retrieval agent with the search tool attached.
func NewRetriever(model string) *Agent {
	return &Agent{
		Name:   "retriever",
		System: retrieverPrompt,
		Model:  model,
		Tools: []contracts.ToolSpec{{
			Name:        SearchToolName,
			Description: "Search the user's indexed documents for chunks relevant to a query.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Semantic search query",
					},
				},
				"required":             []string{"query"},
				"additionalProperties": false,
			},
		}},
	}
}

// NewCritic returns the context-critic agent. Output is a CriticReport.
func NewCritic(model string) *Agent {
	return &Agent{
		Name:   "critic",
		System: criticPrompt,
		Model:  model,
		Schema: &contracts.SchemaSpec{
			Name: "critic_report",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filtered_context": map[string]any{
						"type":        "string",
						"description": "Filtered and reordered context blocks",
					},
					"context_rationale": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Per-chunk relevance rationale",
					},
				},
				"required":             []string{"filtered_context", "context_rationale"},
				"additionalProperties": false,
			},
		},
	}
}

// NewDrafter returns the summarization agent producing the cited draft.
func NewDrafter(model string) *Agent {
	return &Agent{Name: "drafter", System: drafterPrompt, Model: model}
}

// NewVerifier returns the verification agent producing the final answer.
func NewVerifier(model string) *Agent {
	return &Agent{Name: "verifier", System: verifierPrompt, Model: model}
}

// DecodePlan decodes a planner generation tolerantly: the structured
// payload first, then the content as JSON. ok is false when neither
// yields a usable plan; the caller treats the plan as advisory.
func DecodePlan(g *contracts.Generation) (models.QueryPlan, bool) {
	var plan models.QueryPlan
	if g == nil {
		return plan, false
	}
	if len(g.Structured) > 0 && json.Unmarshal(g.Structured, &plan) == nil {
		return plan, true
	}
	if raw := extractJSON(g.Content); raw != "" && json.Unmarshal([]byte(raw), &plan) == nil {
		return plan, true
	}
	return models.QueryPlan{}, false
}

// DecodeCriticReport decodes a critic generation tolerantly. ok is false
// on malformed output; the caller falls back to the unfiltered context.
func DecodeCriticReport(g *contracts.Generation) (models.CriticReport, bool) {
	var report models.CriticReport
	if g == nil {
		return report, false
	}
	if len(g.Structured) > 0 && json.Unmarshal(g.Structured, &report) == nil && report.FilteredContext != "" {
		return report, true
	}
	if raw := extractJSON(g.Content); raw != "" {
		if json.Unmarshal([]byte(raw), &report) == nil && report.FilteredContext != "" {
			return report, true
		}
	}
	return models.CriticReport{}, false
}

// extractJSON pulls the outermost JSON object out of free-form content,
// tolerating markdown fences around it.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
