package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/config"
	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

// MultiStep 四步合成：发现模式 -> 标题 -> 陈述 -> 引用选择
type MultiStep struct {
	cfg config.SynthesisConfig
	r   *retrier
}

type discoveryStep struct {
	Pattern              string   `json:"pattern"`
	Classification       string   `json:"classification"`
	SupportingFindingIDs []string `json:"supporting_finding_ids"`
}

type titleStep struct {
	Title string `json:"title"`
}

type statementStep struct {
	Statement string `json:"statement"`
}

type quoteStep struct {
	QuoteFindingIDs []string `json:"quote_finding_ids"`
}

const discoveryInstructions = `Identify the single pattern these findings share.
Only use ids listed above. "classification" is one of: threat, vulnerability, opportunity, advantage.
Return JSON: {"pattern": "...", "classification": "...", "supporting_finding_ids": ["..."]}`

const titleInstructions = `Write a short title (at most 10 words) for this pattern. No advice, no invented names or numbers.
Return JSON: {"title": "..."}`

const statementInstructions = `Write exactly two sentences: the first names the pattern, the second its consequence.
Paraphrase the dominant customer reaction, never quote anyone, never prescribe, never invent names or numbers.
Return JSON: {"statement": "..."}`

const quoteInstructions = `Choose up to two findings whose customer quotes best evidence this theme. Only use ids listed above.
Return JSON: {"quote_finding_ids": ["..."]}`

// Synthesize implements Synthesizer
func (m *MultiStep) Synthesize(ctx context.Context, c *model.Cluster) Outcome {
	log := clusterLog(c)
	base := clusterContext(c, m.cfg.SampleSize)
	calls := 0
	lenient := false

	step := func(name, user string, v any) *Outcome {
		raw, n, err := m.r.complete(ctx, log, systemPrompt, user)
		calls += n
		if err != nil {
			out := rejected(model.ReasonSynthesisUnavailable, "%s: %v", name, err)
			return &out
		}
		used, err := decodeInto(raw, v)
		if err != nil {
			out := rejected(model.ReasonMalformedOutput, "%s: %v", name, err)
			return &out
		}
		if used {
			log.WithField("step", name).Warn("LLM 输出非严格 JSON，已使用宽松解码")
			lenient = true
		}
		return nil
	}
	finish := func(out Outcome) Outcome {
		out.Calls = calls
		out.Lenient = lenient
		return out
	}

	var d discoveryStep
	if out := step("discovery", base+"\n"+discoveryInstructions, &d); out != nil {
		return finish(*out)
	}
	pattern := fmt.Sprintf("\nPattern: %s\nClassification: %s\n", strings.TrimSpace(d.Pattern), d.Classification)

	var t titleStep
	if out := step("title", base+pattern+"\n"+titleInstructions, &t); out != nil {
		return finish(*out)
	}

	var s statementStep
	if out := step("statement", base+pattern+"Title: "+t.Title+"\n\n"+statementInstructions, &s); out != nil {
		return finish(*out)
	}

	var q quoteStep
	if out := step("quote_selection", base+pattern+"Title: "+t.Title+"\nStatement: "+s.Statement+"\n\n"+quoteInstructions, &q); out != nil {
		return finish(*out)
	}

	raw := RawDraft{
		Title:                t.Title,
		Statement:            s.Statement,
		Classification:       d.Classification,
		SupportingFindingIDs: d.SupportingFindingIDs,
	}
	normalize(&raw)
	if err := validate.Struct(&raw); err != nil {
		return finish(rejected(model.ReasonMalformedOutput, "schema: %v", err))
	}
	return finish(buildDraft(c, raw, dedupe(q.QuoteFindingIDs)))
}
