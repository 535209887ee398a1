package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"goa.design/apron-incident/runtime/modelclient"
	"goa.design/apron-incident/runtime/scenario"
)

var (
	flightNoPattern = regexp.MustCompile(`\b([A-Z]{2,3}\d{2,4})\b`)
	runwayPattern   = regexp.MustCompile(`(?:跑道|RWY)\s*(\d{1,2}[LRC]?)`)
	taxiwayPattern  = regexp.MustCompile(`(?:滑行道|TWY)[-\s]?([A-Z]\d{0,2})`)
	standPattern    = regexp.MustCompile(`(?:机位|停机位|stand)\s*(\d{1,3})`)

	fluidKeywords = map[string]string{
		"燃油": "FUEL", "fuel": "FUEL",
		"液压油": "HYDRAULIC", "hydraulic": "HYDRAULIC",
		"滑油": "OIL", "机油": "OIL", "oil": "OIL",
	}
	engineKeywords = map[string]string{
		"发动机运转": "RUNNING", "发动机运行": "RUNNING", "running": "RUNNING",
		"发动机关车": "STOPPED", "发动机已关闭": "STOPPED", "stopped": "STOPPED",
		"apu": "APU", "辅助动力": "APU",
	}
	leakSizeKeywords = map[string]string{
		"少量": "SMALL", "small": "SMALL",
		"中等": "MEDIUM", "medium": "MEDIUM",
		"大量": "LARGE", "large": "LARGE",
	}
	continuousKeywords = []string{"持续", "continuous", "continuing", "still leaking", "仍在"}
	birdStrikePhaseKeywords = map[string]string{
		"起飞滑跑": "TAKEOFF_ROLL", "takeoff roll": "TAKEOFF_ROLL",
		"爬升": "CLIMB", "climb": "CLIMB",
		"进近": "APPROACH", "approach": "APPROACH",
		"着陆": "LANDING", "landing": "LANDING",
		"滑行": "TAXI", "taxi": "TAXI",
	}
)

// extractedEntity pairs a value with its extraction confidence, used to
// apply the §4.1 step 4 precedence rule (normaliser-provided entities over
// regex-only, and the ≥0.8 confidence threshold for LLM-sourced entities).
type extractedEntity struct {
	value      any
	confidence float64
}

// extractEntities implements §4.1 step 4: regex extraction, optionally
// supplemented by an LLM semantic extractor whose fields at confidence ≥0.8
// fill only the fields the regex pass left empty.
func (p *Parser) extractEntities(text string, desc *scenario.Descriptor) map[string]any {
	entities := map[string]extractedEntity{}
	regexExtract(text, entities)

	if p.model != nil {
		llmExtract(p, text, desc, entities)
	}

	out := make(map[string]any, len(entities))
	for k, e := range entities {
		out[k] = e.value
	}
	return out
}

func regexExtract(text string, out map[string]extractedEntity) {
	upper := strings.ToUpper(text)
	if m := flightNoPattern.FindStringSubmatch(upper); m != nil {
		out["flight_no"] = extractedEntity{value: m[1], confidence: 1}
	}
	if m := runwayPattern.FindStringSubmatch(text); m != nil {
		out["position"] = extractedEntity{value: "RWY" + m[1], confidence: 1}
	} else if m := taxiwayPattern.FindStringSubmatch(text); m != nil {
		out["position"] = extractedEntity{value: "TWY-" + m[1], confidence: 1}
	} else if m := standPattern.FindStringSubmatch(text); m != nil {
		out["position"] = extractedEntity{value: m[1], confidence: 1}
	}

	lower := strings.ToLower(text)
	matchKeyword(lower, fluidKeywords, "fluid_type", out)
	matchKeyword(lower, engineKeywords, "engine_status", out)
	matchKeyword(lower, leakSizeKeywords, "leak_size", out)
	matchKeyword(lower, birdStrikePhaseKeywords, "phase", out)

	for _, kw := range continuousKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			out["continuous"] = extractedEntity{value: true, confidence: 1}
			break
		}
	}
}

func matchKeyword(lower string, table map[string]string, field string, out map[string]extractedEntity) {
	for kw, value := range table {
		if strings.Contains(lower, strings.ToLower(kw)) {
			out[field] = extractedEntity{value: value, confidence: 1}
			return
		}
	}
}

// llmSemanticField is one entry of the LLM extractor's JSON response.
type llmSemanticField struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

const llmExtractPromptTemplate = `Extract structured incident fields from the following radiotelephony ` +
	`transmission. Respond with a JSON array of objects {"field","value","confidence"}, ` +
	`confidence in [0,1]. Only extract fields from this set: %s.` +
	"\n\nTransmission: %s\n\nJSON:"

// llmExtract augments entities with LLM-sourced values at confidence ≥0.8
// (§4.1 step 4). Normaliser-provided (regex) entities already in out are
// NOT overwritten unless explicitly documented otherwise — per spec,
// "normaliser-provided entities take precedence over regex-only entities",
// so an LLM field only fills gaps the regex pass left empty.
func llmExtract(p *Parser, text string, desc *scenario.Descriptor, out map[string]extractedEntity) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DeepNormalizeTimeout)
	defer cancel()

	resp, err := p.model.Complete(ctx, &modelclient.Request{
		SystemPrompt: "You extract structured fields from air traffic incident reports.",
		Messages: []modelclient.Message{{
			Role:    "user",
			Content: fieldsPrompt(desc.FieldOrder, text),
		}},
		Temperature: 0.1,
		MaxTokens:   400,
	})
	if err != nil || resp == nil {
		return
	}

	var fields []llmSemanticField
	if json.Unmarshal([]byte(extractJSONArray(resp.Text)), &fields) != nil {
		return
	}
	for _, f := range fields {
		if f.Confidence < 0.8 {
			continue
		}
		if _, already := out[f.Field]; already {
			continue
		}
		out[f.Field] = extractedEntity{value: f.Value, confidence: f.Confidence}
	}
}

func fieldsPrompt(fieldOrder []string, text string) string {
	return fmt.Sprintf(llmExtractPromptTemplate, strings.Join(fieldOrder, ", "), text)
}

// extractJSONArray trims a fenced code block or leading/trailing prose the
// model may wrap a JSON array in.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < 0 || end < start {
		return "[]"
	}
	return text[start : end+1]
}
