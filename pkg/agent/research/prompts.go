package research

import (
	"fmt"
	"strings"
)

func defaultTask(triggerTime string) string {
	return fmt.Sprintf(
		"It is now %s. Based on the background information and any tools you call, "+
			"decide whether there is a trading opportunity among the target symbols, "+
			"and report your signal with supporting evidence.", triggerTime)
}

func planSystemPrompt(outputLanguage string) string {
	var b strings.Builder
	b.WriteString("You are an investment research agent. Before investigating, write a short numbered plan: ")
	b.WriteString("which hypotheses to check, which tools to use, and what evidence would change your mind. ")
	b.WriteString("Keep it under ten steps. Do not emit a signal yet.")
	if outputLanguage != "" {
		b.WriteString("\nWrite in " + outputLanguage + ".")
	}
	return b.String()
}

func planUserPrompt(st *loopState) string {
	var b strings.Builder
	b.WriteString("Task: " + st.task + "\n")
	if st.background != "" {
		b.WriteString("\nBackground information:\n" + st.background + "\n")
	}
	b.WriteString("\nAvailable tools (JSON):\n" + st.registry.DescribeJSON())
	return b.String()
}

func writeResultSystemPrompt(outputLanguage string) string {
	var b strings.Builder
	b.WriteString("You are an investment research agent writing your final report. ")
	b.WriteString("Weigh the background information and your tool observations, then emit one or more signals.\n\n")
	b.WriteString("Reply with exactly one <Output> block of the following form:\n")
	b.WriteString(`<Output>
<signal>
<has_opportunity>yes|no</has_opportunity>
<action>buy|sell|HOLD</action>
<symbol_code>exchange code, e.g. 600519.SH</symbol_code>
<symbol_name>company name</symbol_name>
<evidence_list>
  <evidence>one concrete observation<time>when it happened</time><from_source>where it came from</from_source></evidence>
</evidence_list>
<limitations><limitation>one known weakness of this call</limitation></limitations>
<probability>0..100</probability>
</signal>
</Output>
`)
	b.WriteString("\nRules: a \"yes\" signal must name a symbol and a buy or sell action; ")
	b.WriteString("use action HOLD with has_opportunity no when nothing is actionable; ")
	b.WriteString("probability is your confidence the signal is profitable over the next session.")
	if outputLanguage != "" {
		b.WriteString("\nAll free text must be written in " + outputLanguage + ".")
	}
	return b.String()
}

func writeResultUserPrompt(st *loopState) string {
	var b strings.Builder
	b.WriteString("Task: " + st.task + "\n")
	if st.plan != "" {
		b.WriteString("\nYour plan:\n" + st.plan + "\n")
	}
	if st.background != "" {
		b.WriteString("\nBackground information:\n" + st.background + "\n")
	}
	if st.toolCallContext != "" {
		b.WriteString("\nTool calls made (one JSON object per line):\n" + st.toolCallContext + "\n")
	} else {
		b.WriteString("\nNo tools were called.\n")
	}
	b.WriteString("\nAvailable tools were (JSON):\n" + st.registry.DescribeJSON() + "\n")
	b.WriteString("\nWrite your final report now.")
	return b.String()
}
