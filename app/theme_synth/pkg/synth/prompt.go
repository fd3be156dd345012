package synth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iWorld-y/theme_synth/app/theme_synth/pkg/model"
)

const systemPrompt = "You are a research analyst who turns customer interview findings into themes. Output a single JSON object only."

const themeInstructions = `Write one theme that captures the pattern shared by these findings.
Rules:
- "statement" is exactly two sentences: the first names the pattern, the second its consequence. Paraphrase the dominant customer reaction; never quote anyone.
- Describe, do not prescribe: no "should", "must", "recommend" or other advice.
- Do not invent companies, people, products or numbers that are not in the findings.
- "supporting_finding_ids" may only contain ids listed above.
- "classification" is one of: threat, vulnerability, opportunity, advantage.
Return JSON:
{"title": "...", "statement": "...", "classification": "...", "supporting_finding_ids": ["..."], "primary_quote": "", "secondary_quote": ""}`

const alertInstructions = `These findings come from a single customer and were flagged as high priority.
Write one alert describing the issue for that customer.
Rules:
- "statement" is exactly two sentences: the first names the issue, the second its consequence. Paraphrase; never quote anyone.
- Describe, do not prescribe: no "should", "must", "recommend" or other advice.
- Do not invent companies, people, products or numbers that are not in the findings.
- "supporting_finding_ids" may only contain ids listed above.
- "classification" is one of: threat, vulnerability, opportunity, advantage.
Return JSON:
{"title": "...", "statement": "...", "classification": "...", "supporting_finding_ids": ["..."], "primary_quote": "", "secondary_quote": ""}`

// sample 按 evidence_strength 降序、ID 升序取前 n 条成员
func sample(c *model.Cluster, n int) []*model.Finding {
	members := append([]*model.Finding(nil), c.Members...)
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].EvidenceStrength != members[j].EvidenceStrength {
			return members[i].EvidenceStrength > members[j].EvidenceStrength
		}
		return members[i].ID < members[j].ID
	})
	if n > 0 && len(members) > n {
		members = members[:n]
	}
	return members
}

// competitive 类别或陈述提及竞争对手
func competitive(c *model.Cluster) bool {
	for _, f := range c.Members {
		if strings.Contains(strings.ToLower(f.Category), "compet") ||
			strings.Contains(strings.ToLower(f.Statement), "compet") {
			return true
		}
	}
	return false
}

func meanImpact(c *model.Cluster) float64 {
	if len(c.Members) == 0 {
		return 0
	}
	var sum float64
	for _, f := range c.Members {
		sum += f.EvidenceStrength
	}
	return sum / float64(len(c.Members))
}

// clusterContext 聚类元数据与成员样本，所有合成步骤共用
func clusterContext(c *model.Cluster, sampleSize int) string {
	var sb strings.Builder
	entities := c.Entities()
	fmt.Fprintf(&sb, "Entities (%d): %s\n", len(entities), strings.Join(entities, ", "))
	fmt.Fprintf(&sb, "Findings: %d\n", len(c.Members))
	fmt.Fprintf(&sb, "Mean impact: %.1f/10\n", meanImpact(c))
	fmt.Fprintf(&sb, "Confidence: %.2f\n", c.Confidence)
	fmt.Fprintf(&sb, "Cross-entity: %t\n", len(entities) >= 2)
	fmt.Fprintf(&sb, "Competitive: %t\n", competitive(c))
	fmt.Fprintf(&sb, "Categories: %s\n", strings.Join(c.Categories(), ", "))
	sb.WriteString("\nSample findings:\n")
	for _, f := range sample(c, sampleSize) {
		fmt.Fprintf(&sb, "- [%s] %s\n", f.ID, strings.TrimSpace(f.Statement))
	}
	return sb.String()
}

// BuildPrompt 单次调用模式的 {system, user}
func BuildPrompt(c *model.Cluster, sampleSize int) (string, string) {
	instructions := themeInstructions
	if c.Kind() == model.KindAlert {
		instructions = alertInstructions
	}
	return systemPrompt, clusterContext(c, sampleSize) + "\n" + instructions
}
