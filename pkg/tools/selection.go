package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/quantfleet/quantfleet/pkg/llm"
)

// Selection is the parsed outcome of one tool-selection LLM call.
type Selection struct {
	ToolName   string         `json:"tool_name"`
	Properties map[string]any `json:"properties"`
}

// IsFinalReport reports whether the LLM chose the sentinel tool.
func (s *Selection) IsFinalReport() bool { return s.ToolName == FinalReportName }

// maxParseRetries bounds re-prompting after a malformed selection reply.
const maxParseRetries = 3

// outputRe captures the payload of the required <Output>...</Output> block.
var outputRe = regexp.MustCompile(`(?s)<Output>\s*(\{.*\})\s*</Output>`)

// Selector runs the tool-selection step: one LLM call whose prompt
// enumerates the registry as JSON and whose reply must be
// <Output>{"tool_name":..., "properties":{...}}</Output>. Parse failures
// are re-prompted with the failure message appended, up to maxParseRetries.
type Selector struct {
	client   llm.Client
	registry *Registry
}

// NewSelector creates a selector over the agent's tool registry.
func NewSelector(client llm.Client, registry *Registry) *Selector {
	return &Selector{client: client, registry: registry}
}

// SelectionInput carries the conversation state rendered into the prompt.
type SelectionInput struct {
	AgentName       string
	Task            string
	Background      string
	Plan            string
	ToolCallContext string
	OutputLanguage  string
}

// Select asks the LLM which tool to call next.
func (s *Selector) Select(ctx context.Context, input SelectionInput) (*Selection, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: s.systemPrompt(input)},
		{Role: llm.RoleUser, Content: s.userPrompt(input)},
	}

	var lastErr error
	for attempt := 0; attempt < maxParseRetries; attempt++ {
		resp, err := llm.Call(ctx, s.client, &llm.GenerateInput{
			AgentName: input.AgentName,
			Messages:  messages,
		})
		if err != nil {
			return nil, fmt.Errorf("tool selection LLM call failed: %w", err)
		}

		selection, parseErr := ParseSelection(resp.Text)
		if parseErr == nil {
			if !s.registry.Has(selection.ToolName) {
				parseErr = fmt.Errorf("%w: %s", ErrToolNotFound, selection.ToolName)
			} else {
				return selection, nil
			}
		}

		lastErr = parseErr
		// Re-inject the failure so the model can correct itself.
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Text},
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(
				"Your previous reply could not be used: %v. Reply again with exactly one "+
					`<Output>{"tool_name": ..., "properties": {...}}</Output> block.`, parseErr)},
		)
	}
	return nil, fmt.Errorf("tool selection failed after %d attempts: %w", maxParseRetries, lastErr)
}

// ParseSelection extracts and validates the selection JSON from a reply.
func ParseSelection(text string) (*Selection, error) {
	m := outputRe.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("no <Output> block found")
	}
	var sel Selection
	if err := json.Unmarshal([]byte(m[1]), &sel); err != nil {
		return nil, fmt.Errorf("invalid selection JSON: %w", err)
	}
	if strings.TrimSpace(sel.ToolName) == "" {
		return nil, fmt.Errorf("selection is missing tool_name")
	}
	if sel.Properties == nil {
		sel.Properties = map[string]any{}
	}
	return &sel, nil
}

func (s *Selector) systemPrompt(input SelectionInput) string {
	var b strings.Builder
	b.WriteString("You are an investment research agent deciding which tool to call next.\n")
	b.WriteString("Available tools (JSON):\n")
	b.WriteString(s.registry.DescribeJSON())
	b.WriteString("\n\nWhen you have enough information to write your investment signal, ")
	b.WriteString("select the tool \"" + FinalReportName + "\".\n")
	b.WriteString("Reply with exactly one block of the form:\n")
	b.WriteString(`<Output>{"tool_name": "<name>", "properties": {<tool kwargs>}}</Output>`)
	if input.OutputLanguage != "" {
		b.WriteString("\nAll free text must be written in " + input.OutputLanguage + ".")
	}
	return b.String()
}

func (s *Selector) userPrompt(input SelectionInput) string {
	var b strings.Builder
	b.WriteString("Task: " + input.Task + "\n")
	if input.Plan != "" {
		b.WriteString("\nPlan:\n" + input.Plan + "\n")
	}
	if input.Background != "" {
		b.WriteString("\nBackground information:\n" + input.Background + "\n")
	}
	if input.ToolCallContext != "" {
		b.WriteString("\nTool calls so far (one JSON object per line):\n" + input.ToolCallContext + "\n")
	} else {
		b.WriteString("\nNo tools have been called yet.\n")
	}
	b.WriteString("\nSelect the next tool.")
	return b.String()
}
