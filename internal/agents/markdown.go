package agents

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// PlanMarkdown renders a query plan as the markdown block streamed to the
// client while retrieval runs.
func PlanMarkdown(plan models.QueryPlan) string {
	var b strings.Builder
	b.WriteString("### 🔍 Search Strategy\n\n")
	if plan.PlanNarrative != "" {
		b.WriteString(plan.PlanNarrative)
		b.WriteString("\n\n")
	}
	if len(plan.SubQueries) > 0 {
		b.WriteString("**Search queries:**\n\n")
		for i, q := range plan.SubQueries {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// CriticMarkdown renders the critic's verdict as the markdown block
// streamed to the client before drafting.
func CriticMarkdown(report models.CriticReport) string {
	var b strings.Builder
	b.WriteString("### 🧐 Context Review\n\n")
	for _, rationale := range report.ContextRationale {
		fmt.Fprintf(&b, "- %s\n", rationale)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FinalAnswerMarkdown appends a References section derived from the
// citation map to the verified answer. Only citations actually used in
// the answer are listed, in id order.
func FinalAnswerMarkdown(answer string, cites map[string]models.RetrievalCitation) string {
	used := make([]models.RetrievalCitation, 0, len(cites))
	for id, c := range cites {
		if strings.Contains(answer, "["+id+"]") {
			used = append(used, c)
		}
	}
	if len(used) == 0 {
		return answer
	}
	sort.Slice(used, func(i, j int) bool { return citationOrd(used[i].ChunkID) < citationOrd(used[j].ChunkID) })

	var b strings.Builder
	b.WriteString(answer)
	b.WriteString("\n\n---\n\n### 📚 References\n\n")
	for _, c := range used {
		page := "unknown"
		if c.Page != nil {
			page = fmt.Sprintf("%d", *c.Page)
		}
		fmt.Fprintf(&b, "**[%s]** Page %s: %s\n\n", c.ChunkID, page, c.Snippet)
	}
	return strings.TrimRight(b.String(), "\n")
}

func citationOrd(id string) int {
	n := 0
	fmt.Sscanf(id, "C%d", &n)
	return n
}
