package slack

import (
	"fmt"
	"sort"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/quantfleet/quantfleet/pkg/models"
)

const maxBlockTextLength = 2900

// BuildRunStartedMessage creates Block Kit blocks for a run start
// notification.
func BuildRunStartedMessage(triggerTime string) []goslack.Block {
	text := fmt.Sprintf(":arrows_counterclockwise: *Pipeline run started* for trigger time `%s` — this may take a few minutes.", triggerTime)
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildRunCompletedMessage creates Block Kit blocks for a run completion
// notification, listing the allocated weights heaviest first.
func BuildRunCompletedMessage(triggerTime string, result *models.WeightResult) []goslack.Block {
	var b strings.Builder
	fmt.Fprintf(&b, ":white_check_mark: *Pipeline run completed* for trigger time `%s`\n", triggerTime)

	if result == nil || len(result.Weights) == 0 {
		b.WriteString("No weights allocated.")
	} else {
		type row struct {
			name   string
			weight float64
		}
		rows := make([]row, 0, len(result.Weights))
		for name, w := range result.Weights {
			rows = append(rows, row{name, w})
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].weight != rows[j].weight {
				return rows[i].weight > rows[j].weight
			}
			return rows[i].name < rows[j].name
		})
		b.WriteString("*Weights:*\n")
		for _, r := range rows {
			fmt.Fprintf(&b, "• `%s`: %.2f%%\n", r.name, r.weight*100)
		}
	}

	text := b.String()
	if len(text) > maxBlockTextLength {
		text = text[:maxBlockTextLength] + "…"
	}
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildRunFailedMessage creates Block Kit blocks for a failed run.
func BuildRunFailedMessage(triggerTime, errMsg string) []goslack.Block {
	if len(errMsg) > maxBlockTextLength {
		errMsg = errMsg[:maxBlockTextLength] + "…"
	}
	text := fmt.Sprintf(":x: *Pipeline run failed* for trigger time `%s`\n```%s```", triggerTime, errMsg)
	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}
