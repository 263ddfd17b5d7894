package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quantfleet/quantfleet/pkg/datasource"
	"github.com/quantfleet/quantfleet/pkg/market"
)

// FinalReportTool is the sentinel. It is never invoked; the ReAct loop
// intercepts its selection and moves to write_result.
type FinalReportTool struct{}

// Name implements Tool.
func (FinalReportTool) Name() string { return FinalReportName }

// Describe implements Tool.
func (FinalReportTool) Describe() Descriptor {
	return Descriptor{
		Name:        FinalReportName,
		Description: "Select this tool when you have gathered enough information to write the final investment signal. Takes no arguments.",
		ArgsSchema:  json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

// Invoke implements Tool. Selecting final_report ends the loop before any
// invocation, so reaching here is a bug in the caller.
func (FinalReportTool) Invoke(context.Context, map[string]any) (*Result, error) {
	return nil, fmt.Errorf("%s is a sentinel and cannot be invoked", FinalReportName)
}

// PriceInfoTool serves OHLC/limit prices from the market provider.
type PriceInfoTool struct {
	provider   market.Provider
	marketName string
}

// NewPriceInfoTool creates the price_info tool.
func NewPriceInfoTool(provider market.Provider, marketName string) *PriceInfoTool {
	return &PriceInfoTool{provider: provider, marketName: marketName}
}

// Name implements Tool.
func (t *PriceInfoTool) Name() string { return "price_info" }

// Describe implements Tool.
func (t *PriceInfoTool) Describe() Descriptor {
	return Descriptor{
		Name: t.Name(),
		Description: "Fetch open/high/low/close and limit price for a symbol. " +
			"date_diff shifts in trading days relative to the trigger time (0 = current, -1 = previous session).",
		ArgsSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "symbol": {"type": "string", "description": "symbol code, e.g. 600519.SH"},
    "date_diff": {"type": "integer", "description": "trading-day offset, default 0"}
  },
  "required": ["symbol"]
}`),
		MaxOutputLen:   2000,
		TimeoutSeconds: 15,
	}
}

// Invoke implements Tool.
func (t *PriceInfoTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	symbol, _ := args["symbol"].(string)
	if strings.TrimSpace(symbol) == "" {
		return &Result{Success: false, ErrorMessage: "price_info requires a symbol"}, nil
	}
	triggerTime, _ := args[TriggerTimeArg].(string)
	dateDiff := 0
	// JSON numbers arrive as float64.
	if v, ok := args["date_diff"].(float64); ok {
		dateDiff = int(v)
	}

	price, err := t.provider.GetSymbolPrice(ctx, t.marketName, symbol, triggerTime, dateDiff)
	if err != nil {
		return &Result{Success: false, ErrorMessage: err.Error()}, nil
	}
	data, err := json.Marshal(map[string]any{
		"symbol":      symbol,
		"date_diff":   dateDiff,
		"open":        price.Open,
		"high":        price.High,
		"low":         price.Low,
		"close":       price.Close,
		"limit_price": price.LimitPrice,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Success: true, Data: string(data)}, nil
}

// SearchNewsTool serves raw rows from one or more data sources, for agents
// that want to pull primary documents during the ReAct loop.
type SearchNewsTool struct {
	registry *datasource.Registry
	sources  []string
}

// NewSearchNewsTool creates the search_news tool over the given source keys.
func NewSearchNewsTool(registry *datasource.Registry, sources []string) *SearchNewsTool {
	return &SearchNewsTool{registry: registry, sources: sources}
}

// Name implements Tool.
func (t *SearchNewsTool) Name() string { return "search_news" }

// Describe implements Tool.
func (t *SearchNewsTool) Describe() Descriptor {
	return Descriptor{
		Name: t.Name(),
		Description: "Search recent news/document rows for a keyword. " +
			"Returns matching titles with publication times and content snippets.",
		ArgsSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "keyword": {"type": "string", "description": "substring matched against title and content"},
    "limit": {"type": "integer", "description": "max rows to return, default 10"}
  },
  "required": ["keyword"]
}`),
		MaxOutputLen:   6000,
		TimeoutSeconds: 30,
	}
}

// snippetLen bounds the content excerpt per returned row.
const snippetLen = 300

// Invoke implements Tool.
func (t *SearchNewsTool) Invoke(ctx context.Context, args map[string]any) (*Result, error) {
	keyword, _ := args["keyword"].(string)
	if strings.TrimSpace(keyword) == "" {
		return &Result{Success: false, ErrorMessage: "search_news requires a keyword"}, nil
	}
	triggerTime, _ := args[TriggerTimeArg].(string)
	limit := 10
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	var b strings.Builder
	matched := 0
	for _, key := range t.sources {
		src, err := t.registry.Get(key)
		if err != nil {
			continue
		}
		rows, err := src.GetData(ctx, triggerTime)
		if err != nil {
			return &Result{Success: false, ErrorMessage: fmt.Sprintf("source %s failed: %v", key, err)}, nil
		}
		for _, row := range rows {
			if matched >= limit {
				break
			}
			if !strings.Contains(row.Title, keyword) && !strings.Contains(row.Content, keyword) {
				continue
			}
			matched++
			snippet := row.Content
			if len(snippet) > snippetLen {
				snippet = snippet[:snippetLen] + "..."
			}
			fmt.Fprintf(&b, "[%s] %s (%s)\n%s\n\n", key, row.Title, row.PubTime, snippet)
		}
	}
	if matched == 0 {
		return &Result{Success: true, Data: fmt.Sprintf("no rows matching %q", keyword)}, nil
	}
	return &Result{Success: true, Data: b.String()}, nil
}
