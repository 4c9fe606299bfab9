package router

import (
	"fmt"
	"strings"
)

const plannerPolicy = `You are a financial analyst routing questions over a transaction database.
You may call two tools. Spending amounts are NEGATIVE; income is positive.

Routing policy:
- Numeric or aggregate answers (totals, counts, averages) MUST come from relational_query. Never estimate numbers from semantic results.
- When the question names merchants vaguely ("places like X", "coffee shops"), call semantic_search first to resolve the fuzzy reference into concrete merchant names, then aggregate those names with relational_query.
- When filters are already exact (explicit category, merchant, date range), go straight to relational_query.
- Answer as soon as the evidence suffices.

Respond with ONE JSON object, no Markdown, in one of these forms:
{"action": "relational_query", "params": {...}}
{"action": "semantic_search", "params": {...}}
{"action": "answer", "answer": "your final answer grounded only in the evidence above"}`

func buildPlannerPrompt(question string, tools []Tool, steps []StepTrace) string {
	var b strings.Builder
	b.WriteString(plannerPolicy)
	b.WriteString("\n\nTools:\n")
	for _, t := range tools {
		b.WriteString(t.Describe())
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", question)

	if len(steps) == 0 {
		b.WriteString("\nNo evidence gathered yet.\n")
		return b.String()
	}
	b.WriteString("\nEvidence gathered so far:\n")
	for i, s := range steps {
		fmt.Fprintf(&b, "[%d] %s(%s)\n", i+1, s.Tool, string(s.Input))
		if s.Err != "" {
			fmt.Fprintf(&b, "    error: %s\n", s.Err)
		} else {
			fmt.Fprintf(&b, "    %s\n", indent(s.Observation, "    "))
		}
	}
	return b.String()
}

func buildFinalPrompt(question string, steps []StepTrace) string {
	var b strings.Builder
	b.WriteString("The tool budget is exhausted. Using ONLY the evidence below, give your best answer to the question. State clearly that the answer may be incomplete.\n")
	fmt.Fprintf(&b, "\nQuestion: %s\n\nEvidence:\n", question)
	for i, s := range steps {
		if s.Err != "" {
			continue
		}
		fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, s.Tool, s.Observation)
	}
	b.WriteString("\nAnswer in plain text, no JSON.\n")
	return b.String()
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
