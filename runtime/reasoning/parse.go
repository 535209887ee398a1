package reasoning

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

	thoughtPattern     = regexp.MustCompile(`(?is)Thought\s*:\s*(.*?)(?:\n\s*(?:Action|Final Answer)\s*:|$)`)
	actionPattern      = regexp.MustCompile(`(?is)Action\s*:\s*(.*?)\n`)
	actionInputPattern = regexp.MustCompile(`(?is)Action Input\s*:\s*(.*?)(?:\n\s*(?:Observation|Thought)\s*:|$)`)
	finalAnswerPattern = regexp.MustCompile(`(?is)Final Answer\s*:\s*(.*)`)
)

// parseResponse implements §4.2's tolerant parsing policy: whitespace and
// fenced code blocks around the whole response are stripped before the
// Thought/Action/Action Input/Final Answer fields are matched.
func parseResponse(text string) (parsedStep, bool) {
	text = unfence(text)

	if m := finalAnswerPattern.FindStringSubmatch(text); m != nil {
		return parsedStep{
			thought:     strings.TrimSpace(firstMatch(thoughtPattern, text)),
			finalAnswer: strings.TrimSpace(m[1]),
		}, true
	}

	actionMatch := actionPattern.FindStringSubmatch(text + "\n")
	if actionMatch == nil {
		return parsedStep{}, false
	}
	action := strings.TrimSpace(actionMatch[1])
	if action == "" {
		return parsedStep{}, false
	}

	inputMatch := actionInputPattern.FindStringSubmatch(text + "\n")
	var rawInput string
	if inputMatch != nil {
		rawInput = strings.TrimSpace(inputMatch[1])
	}

	return parsedStep{
		thought:     strings.TrimSpace(firstMatch(thoughtPattern, text)),
		action:      action,
		actionInput: parseActionInput(rawInput),
	}, true
}

func firstMatch(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// unfence strips a single outer fenced code block, if the model wrapped its
// entire response in one.
func unfence(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") && strings.HasSuffix(trimmed, "```") {
		if m := fencedBlockPattern.FindStringSubmatch(trimmed); m != nil {
			return m[1]
		}
	}
	return trimmed
}

// parseActionInput implements §4.2: "Action Input may be a JSON object or a
// trivial string (interpreted as {value: <string>})".
func parseActionInput(raw string) any {
	raw = unfence(raw)
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if json.Unmarshal([]byte(raw), &obj) == nil {
		return obj
	}
	var arr []any
	if json.Unmarshal([]byte(raw), &arr) == nil {
		return map[string]any{"value": arr}
	}
	unquoted := strings.Trim(raw, `"'`)
	return map[string]any{"value": unquoted}
}
