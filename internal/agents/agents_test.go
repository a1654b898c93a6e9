package agents

import (
	"strings"
	"testing"

	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

func TestDecodePlanStructured(t *testing.T) {
	g := &contracts.Generation{
		Structured: []byte(`{"plan":"one query is enough","sub_questions":["RAG definition"]}`),
	}
	plan, ok := DecodePlan(g)
	if !ok {
		t.Fatal("DecodePlan ok = false, want true")
	}
	if plan.PlanNarrative != "one query is enough" {
		t.Errorf("PlanNarrative = %q", plan.PlanNarrative)
	}
	if len(plan.SubQueries) != 1 || plan.SubQueries[0] != "RAG definition" {
		t.Errorf("SubQueries = %v", plan.SubQueries)
	}
}

func TestDecodePlanFromFencedContent(t *testing.T) {
	g := &contracts.Generation{
		Content: "```json\n{\"plan\":\"p\",\"sub_questions\":[\"a\",\"b\"]}\n```",
	}
	plan, ok := DecodePlan(g)
	if !ok {
		t.Fatal("DecodePlan ok = false, want true")
	}
	if len(plan.SubQueries) != 2 {
		t.Errorf("SubQueries = %v, want 2 entries", plan.SubQueries)
	}
}

func TestDecodePlanMalformed(t *testing.T) {
	for _, g := range []*contracts.Generation{
		nil,
		{Content: "I could not produce a plan."},
		{Structured: []byte(`{"plan": 42`)},
	} {
		if _, ok := DecodePlan(g); ok {
			t.Errorf("DecodePlan(%+v) ok = true, want false", g)
		}
	}
}

func TestDecodeCriticReport(t *testing.T) {
	g := &contracts.Generation{
		Structured: []byte(`{"filtered_context":"[C1] kept","context_rationale":["C1 - HIGHLY RELEVANT: on point"]}`),
	}
	report, ok := DecodeCriticReport(g)
	if !ok {
		t.Fatal("DecodeCriticReport ok = false, want true")
	}
	if report.FilteredContext != "[C1] kept" {
		t.Errorf("FilteredContext = %q", report.FilteredContext)
	}
	if len(report.ContextRationale) != 1 {
		t.Errorf("ContextRationale = %v", report.ContextRationale)
	}
}

func TestDecodeCriticReportEmptyContextIsMalformed(t *testing.T) {
	g := &contracts.Generation{Structured: []byte(`{"filtered_context":"","context_rationale":[]}`)}
	if _, ok := DecodeCriticReport(g); ok {
		t.Error("report with empty filtered_context should not decode ok")
	}
}

func TestRetrieverToolSpec(t *testing.T) {
	a := NewRetriever("test-model")
	if len(a.Tools) != 1 {
		t.Fatalf("len(Tools) = %d, want 1", len(a.Tools))
	}
	if a.Tools[0].Name != SearchToolName {
		t.Errorf("tool name = %q, want %q", a.Tools[0].Name, SearchToolName)
	}
	props, _ := a.Tools[0].Parameters["properties"].(map[string]any)
	if _, ok := props["query"]; !ok {
		t.Error("search tool missing query parameter")
	}
}

func TestPlanMarkdown(t *testing.T) {
	md := PlanMarkdown(models.QueryPlan{
		PlanNarrative: "Two searches cover it.",
		SubQueries:    []string{"first", "second"},
	})
	if !strings.Contains(md, "Two searches cover it.") {
		t.Errorf("markdown missing narrative:\n%s", md)
	}
	if !strings.Contains(md, "1. first") || !strings.Contains(md, "2. second") {
		t.Errorf("markdown missing numbered queries:\n%s", md)
	}
}

func TestFinalAnswerMarkdown(t *testing.T) {
	page := 3
	cites := map[string]models.RetrievalCitation{
		"C1": {ChunkID: "C1", Page: &page, Snippet: "used chunk"},
		"C2": {ChunkID: "C2", Snippet: "unused chunk"},
	}
	got := FinalAnswerMarkdown("Answer backed by evidence [C1].", cites)
	if !strings.Contains(got, "References") {
		t.Fatalf("missing references section:\n%s", got)
	}
	if !strings.Contains(got, "**[C1]** Page 3: used chunk") {
		t.Errorf("missing C1 reference line:\n%s", got)
	}
	if strings.Contains(got, "unused chunk") {
		t.Errorf("uncited chunk leaked into references:\n%s", got)
	}
}

func TestFinalAnswerMarkdownNoCitations(t *testing.T) {
	got := FinalAnswerMarkdown("No evidence was available.", nil)
	if strings.Contains(got, "References") {
		t.Errorf("references section emitted without citations:\n%s", got)
	}
}
