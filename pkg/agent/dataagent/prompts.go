package dataagent

import (
	"fmt"
	"strings"

	"github.com/quantfleet/quantfleet/pkg/models"
)

func titleFilterSystemPrompt(biasGoal string, budget int) string {
	var b strings.Builder
	b.WriteString("You are a financial news triage assistant. You will receive a numbered list of document titles with publication times.\n")
	fmt.Fprintf(&b, "Select the %d documents most likely to contain decision-relevant market information (earnings, policy, supply chain, management changes, unusual flows).\n", budget)
	if biasGoal != "" {
		fmt.Fprintf(&b, "Prioritize documents related to this focus: %s\n", biasGoal)
	}
	b.WriteString("Reply with the selected ids only, comma separated, no prose.")
	return b.String()
}

func titleFilterUserPrompt(rows []models.Document) string {
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%d, %s, %s\n", r.ID, r.Title, r.PubTime)
	}
	return b.String()
}

func summarySystemPrompt(biasGoal string, targetTokens int) string {
	var b strings.Builder
	b.WriteString("You are a financial analyst. You will receive a set of documents, each wrapped in <doc id=N> tags.\n")
	fmt.Fprintf(&b, "Write a dense factual digest of the decision-relevant information, at most %d tokens.\n", targetTokens)
	b.WriteString("Cite every claim with the source document id in square brackets, e.g. [3]. Only cite ids that appear in the input.\n")
	b.WriteString("Keep concrete numbers, dates and entity names. Drop filler and duplicated wire copy.\n")
	if biasGoal != "" {
		fmt.Fprintf(&b, "Give extra weight to information related to this focus: %s\n", biasGoal)
	}
	return b.String()
}

func mergeSystemPrompt(biasGoal string, targetTokens int) string {
	var b strings.Builder
	b.WriteString("You are a financial analyst. You will receive several batch digests, each introduced by a \"Batch N Documents:\" header. They may overlap.\n")
	fmt.Fprintf(&b, "Merge them into a single coherent digest of at most %d tokens.\n", targetTokens)
	b.WriteString("Preserve the [N] citations exactly as written; never renumber them. When batches report the same fact, keep one statement and the union of its citations.\n")
	if biasGoal != "" {
		fmt.Fprintf(&b, "Give extra weight to information related to this focus: %s\n", biasGoal)
	}
	return b.String()
}
