package fraud

import (
	"fmt"
	"sort"
	"strings"

	"rtoshield/internal/models"
	"rtoshield/internal/services/rules"
)

const maxReasons = 5

type rankedReason struct {
	text   string
	weight float64
	risky  bool
}

// synthesizeReasons turns the layer outputs into a short ranked list a
// merchant can act on. The shape depends on the recommendation: a block
// leads with the strongest risk factors, a verify shows both sides, an
// approve surfaces the trust signals that earned it.
func synthesizeReasons(res *Result) []string {
	ranked := collectReasons(res)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].weight > ranked[j].weight })

	var out []string
	switch res.Recommendation {
	case models.RecommendationBlock:
		out = pick(ranked, maxReasons, true)
	case models.RecommendationVerify:
		out = append(pick(ranked, 3, true), pick(ranked, 2, false)...)
	default:
		out = pick(ranked, maxReasons, false)
		if len(out) == 0 {
			out = []string{"No significant risk factors found"}
		}
	}
	return out
}

func collectReasons(res *Result) []rankedReason {
	var ranked []rankedReason

	for _, hit := range res.RuleHits {
		w := severityRank(hit.Severity) * abs(hit.Delta)
		ranked = append(ranked, rankedReason{
			text:   capitalize(hit.Detail),
			weight: w,
			risky:  hit.Delta > 0,
		})
	}

	for _, sig := range res.StatSignals {
		if sig.Contribution < 10 {
			continue
		}
		ranked = append(ranked, rankedReason{
			text:   capitalize(sig.Detail),
			weight: sig.Contribution,
			risky:  true,
		})
	}

	for _, factor := range res.TopFactors {
		risky := factor.Direction == "increases_risk"
		text := fmt.Sprintf("Model weighted %s heavily", humanizeFeature(factor.Feature))
		if !risky {
			text = fmt.Sprintf("Model found %s reassuring", humanizeFeature(factor.Feature))
		}
		ranked = append(ranked, rankedReason{
			text:   text,
			weight: factor.Impact * 100,
			risky:  risky,
		})
	}
	return ranked
}

func pick(ranked []rankedReason, n int, risky bool) []string {
	var out []string
	for _, r := range ranked {
		if r.risky != risky || len(out) >= n {
			continue
		}
		out = append(out, r.text)
	}
	return out
}

func severityRank(severity string) float64 {
	switch severity {
	case rules.SeverityCritical:
		return 4
	case rules.SeverityHigh:
		return 3
	case rules.SeverityMedium:
		return 2
	case rules.SeverityLow:
		return 1
	default:
		return 0.5
	}
}

func humanizeFeature(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
