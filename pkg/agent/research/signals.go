package research

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/quantfleet/quantfleet/pkg/market"
	"github.com/quantfleet/quantfleet/pkg/models"
)

var (
	outputRe     = regexp.MustCompile(`(?s)<Output>(.*?)</Output>`)
	signalRe     = regexp.MustCompile(`(?s)<signal>(.*?)</signal>`)
	evidenceRe   = regexp.MustCompile(`(?s)<evidence>(.*?)</evidence>`)
	limitationRe = regexp.MustCompile(`(?s)<limitation>(.*?)</limitation>`)
	timeRe       = regexp.MustCompile(`(?s)<time>(.*?)</time>`)
	fromSourceRe = regexp.MustCompile(`(?s)<from_source>(.*?)</from_source>`)
)

// fieldRes are compiled once for the simple scalar tags.
var fieldRes = map[string]*regexp.Regexp{
	"has_opportunity": regexp.MustCompile(`(?s)<has_opportunity>(.*?)</has_opportunity>`),
	"action":          regexp.MustCompile(`(?s)<action>(.*?)</action>`),
	"symbol_code":     regexp.MustCompile(`(?s)<symbol_code>(.*?)</symbol_code>`),
	"symbol_name":     regexp.MustCompile(`(?s)<symbol_name>(.*?)</symbol_name>`),
	"probability":     regexp.MustCompile(`(?s)<probability>(.*?)</probability>`),
}

func field(block, name string) string {
	if m := fieldRes[name].FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ParseSignals extracts the structured signals from a final-result
// completion. It errors when no well-formed signal block exists or when a
// "yes" signal omits its symbol entirely; lesser defects (odd probability,
// missing evidence) are tolerated.
func ParseSignals(agentName, triggerTime, text string) ([]models.ParsedSignal, error) {
	scope := text
	if m := outputRe.FindStringSubmatch(text); m != nil {
		scope = m[1]
	}

	blocks := signalRe.FindAllStringSubmatch(scope, -1)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no <signal> block found")
	}

	var signals []models.ParsedSignal
	for i, m := range blocks {
		block := m[1]
		sig := models.ParsedSignal{
			AgentName:      agentName,
			TriggerTime:    triggerTime,
			HasOpportunity: strings.ToLower(field(block, "has_opportunity")),
			Action:         field(block, "action"),
			SymbolCode:     field(block, "symbol_code"),
			SymbolName:     field(block, "symbol_name"),
		}
		if sig.HasOpportunity != models.OpportunityYes && sig.HasOpportunity != models.OpportunityNo {
			return nil, fmt.Errorf("signal %d: has_opportunity must be yes or no, got %q", i+1, sig.HasOpportunity)
		}
		if sig.HasOpportunity == models.OpportunityYes && sig.SymbolCode == "" && sig.SymbolName == "" {
			return nil, fmt.Errorf("signal %d: opportunity signal names no symbol", i+1)
		}

		if p, err := strconv.Atoi(field(block, "probability")); err == nil {
			sig.Probability = p
		}

		for _, em := range evidenceRe.FindAllStringSubmatch(block, -1) {
			body := em[1]
			ev := models.Evidence{}
			if tm := timeRe.FindStringSubmatch(body); tm != nil {
				ev.Time = strings.TrimSpace(tm[1])
			}
			if sm := fromSourceRe.FindStringSubmatch(body); sm != nil {
				ev.FromSource = strings.TrimSpace(sm[1])
			}
			ev.Description = strings.TrimSpace(fromSourceRe.ReplaceAllString(timeRe.ReplaceAllString(body, ""), ""))
			sig.EvidenceList = append(sig.EvidenceList, ev)
		}
		for _, lm := range limitationRe.FindAllStringSubmatch(block, -1) {
			sig.Limitations = append(sig.Limitations, strings.TrimSpace(lm[1]))
		}

		signals = append(signals, sig)
	}
	return signals, nil
}

// FixSignalSymbols canonicalizes each opportunity signal's (name, code)
// pair through the market provider. Unresolvable symbols leave the signal
// untouched; downstream pricing will reject it with context.
func FixSignalSymbols(provider market.Provider, marketName string, signals []models.ParsedSignal) []models.ParsedSignal {
	out := make([]models.ParsedSignal, len(signals))
	copy(out, signals)
	for i := range out {
		if out[i].HasOpportunity != models.OpportunityYes {
			continue
		}
		name, code, err := provider.FixSymbolCode(marketName, out[i].SymbolName, out[i].SymbolCode)
		if err != nil {
			continue
		}
		out[i].SymbolName = name
		out[i].SymbolCode = code
	}
	return out
}
