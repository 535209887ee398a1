package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"goa.design/apron-incident/runtime/modelclient"
	"goa.design/apron-incident/runtime/state"
)

// aviationKeywords gates whether stage-2 deep normalisation runs at all
// (§4.1 step 3: "skipped when the text is short and contains no aviation
// keyword and no spoken-digit marker").
var aviationKeywords = []string{
	"跑道", "滑行道", "机位", "停机位", "漏油", "漏液", "燃油", "液压油",
	"鸟击", "异物", "FOD", "发动机", "runway", "taxiway", "stand", "fuel", "oil", "bird",
}

var spokenDigitMarker = regexp.MustCompile(`[洞幺两拐勾零壹贰叁肆伍陆柒捌玖]`)

const deepNormalizePromptTemplate = `You normalise Chinese/English air-traffic radiotelephony phrases into clear ` +
	`structured text. Rewrite the following transmission, expanding abbreviations and ` +
	`resolving ambiguous phrasing, without inventing facts not present in the input.` +
	"\n\nTransmission: %s\n\nNormalised:"

// deepNormalize performs §4.1 step 3. On timeout, failure, or a disabled
// model client it returns stage1Output unchanged (falls back to stage-1).
func (p *Parser) deepNormalize(ctx context.Context, session *state.Session, stage1Output string) string {
	if p.model == nil || !needsDeepNormalization(stage1Output) {
		return stage1Output
	}

	timeout := p.cfg.DeepNormalizeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.model.Complete(cctx, &modelclient.Request{
		SystemPrompt: "You are a precise radiotelephony transcription normaliser.",
		Messages:     []modelclient.Message{{Role: "user", Content: fmt.Sprintf(deepNormalizePromptTemplate, stage1Output)}},
		Temperature:  0.1,
		MaxTokens:    400,
	})
	if err != nil || resp == nil || strings.TrimSpace(resp.Text) == "" {
		p.warn(ctx, session, "deep_normalisation", errString(err))
		return stage1Output
	}
	return strings.TrimSpace(resp.Text)
}

func errString(err error) string {
	if err == nil {
		return "empty response"
	}
	return err.Error()
}

// needsDeepNormalization implements the stage-2 gate.
func needsDeepNormalization(text string) bool {
	if len([]rune(text)) > 12 {
		return true
	}
	if spokenDigitMarker.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range aviationKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
