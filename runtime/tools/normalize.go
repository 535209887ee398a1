package tools

import (
	"context"
	"regexp"
	"strings"

	"goa.design/apron-incident/runtime/state"
)

// spokenDigits maps Chinese radiotelephony digit words to their numerals
// (e.g. "洞幺" -> "01", §9 GLOSSARY "Radiotelephony normalisation").
var spokenDigits = map[string]string{
	"洞": "0", "幺": "1", "两": "2", "拐": "7", "勾": "9",
	"零": "0", "壹": "1", "贰": "2", "叁": "3", "肆": "4",
	"伍": "5", "陆": "6", "柒": "7", "捌": "8", "玖": "9",
}

// directionSuffixes maps spoken runway-side words to their ICAO letter
// suffix (e.g. "左" -> "L" in "跑道27左" -> "跑道27L").
var directionSuffixes = map[string]string{
	"左": "L", "右": "R", "中": "C",
}

var runwayDirectionPattern = regexp.MustCompile(`(跑道\s*\d{1,2})(左|右|中)`)

// Normalize performs the stage-1 radiotelephony normalisation: deterministic,
// rule-based substring replacement of spoken digits and directional suffixes
// (§4.1 step 2). It runs unconditionally ahead of stage-2 LLM normalisation
// and never fails.
func Normalize(text string) string {
	out := runwayDirectionPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := runwayDirectionPattern.FindStringSubmatch(m)
		return sub[1] + directionSuffixes[sub[2]]
	})
	for spoken, digit := range spokenDigits {
		out = strings.ReplaceAll(out, spoken, digit)
	}
	return out
}

// radiotelephonyNormalizeTool exposes Normalize as an on-demand tool so the
// reasoning node can re-normalise controller-supplied text mid-conversation
// (the input parser already applies it unconditionally on ingest).
type radiotelephonyNormalizeTool struct{ scenarios []string }

// NewRadiotelephonyNormalizeTool constructs the radiotelephony-normaliser
// tool.
func NewRadiotelephonyNormalizeTool(scenarios []string) Tool {
	return radiotelephonyNormalizeTool{scenarios: scenarios}
}

func (radiotelephonyNormalizeTool) Name() string { return "radiotelephony_normalize" }
func (radiotelephonyNormalizeTool) Description() string {
	return "Normalise spoken radiotelephony digits and directional suffixes to structured identifiers."
}
func (radiotelephonyNormalizeTool) Class() Class          { return ClassNonCritical }
func (t radiotelephonyNormalizeTool) Scenarios() []string { return t.scenarios }
func (radiotelephonyNormalizeTool) InputSchema() []byte {
	return []byte(`{"type":"object","required":["text"],"properties":{"text":{"type":"string","minLength":1,"maxLength":2000}}}`)
}

func (radiotelephonyNormalizeTool) Execute(_ context.Context, _ *state.Session, input map[string]any) (Result, error) {
	text, _ := input["text"].(string)
	return Result{Success: true, Observation: Normalize(text)}, nil
}
