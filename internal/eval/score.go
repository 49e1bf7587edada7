package eval

import (
	"math"
	"strings"
	"time"
)

// joinCap bounds the concatenated document text fed to the models.
const joinCap = 12000

// promptCap bounds each side of the phase-2 comparison prompt.
const promptCap = 6000

// experienceLexicon is the fixed keyword set behind the experience signal.
var experienceLexicon = []string{
	"experience", "methodology", "case study", "reference", "certification", "compliance",
}

// defaultWeights is used when the RFQ carries no usable weight mapping.
var defaultWeights = map[string]float64{
	"price":      0.3,
	"timeline":   0.2,
	"experience": 0.2,
	"semantic":   0.3,
}

// ParseWeights normalizes a criterion→weight mapping so the values sum to 1.
// Empty or non-positive mappings fall back to the balanced defaults.
func ParseWeights(weights map[string]float64) map[string]float64 {
	sum := 0.0
	for _, v := range weights {
		sum += v
	}
	if len(weights) == 0 || sum <= 0 {
		out := make(map[string]float64, len(defaultWeights))
		for k, v := range defaultWeights {
			out[k] = v
		}
		return out
	}
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		out[k] = v / sum
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// priceScore interpolates the bid price within the budget range, inverted so
// a lower price scores higher. Degenerate bounds or a non-positive price
// yield the neutral 0.5.
func priceScore(price, budgetMin, budgetMax float64) float64 {
	if budgetMax <= 0 {
		if budgetMin > 0 {
			budgetMax = budgetMin + 1
		} else {
			budgetMax = 1
		}
	}
	if price <= 0 || budgetMax <= budgetMin {
		return 0.5
	}
	return clamp01((budgetMax - price) / (budgetMax - budgetMin))
}

// timelineScore compares the bid duration against the RFQ window. A bid that
// matches the window exactly scores 1.0, penalized proportionally by the
// absolute day deviation. No window means the signal is moot: 1.0.
func timelineScore(windowDays, bidDays int) float64 {
	if windowDays <= 0 {
		return 1.0
	}
	w := float64(windowDays)
	return clamp01((w - math.Abs(w-float64(bidDays))) / w)
}

// experienceScore counts lexicon hits in the combined bid text. Submissions
// under 200 characters take a thinness penalty.
func experienceScore(bidText string) float64 {
	lower := strings.ToLower(bidText)
	hits := 0
	for _, kw := range experienceLexicon {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	score := clamp01(0.3 + 0.1*float64(hits))
	if len(lower) < 200 {
		score *= 0.85
	}
	return score
}

// cosine is the similarity of two vectors; 0 when either is empty.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + 1e-9)
}

// weightedTotal combines the sub-scores using the normalized weight mapping,
// substituting defaultWeight for any criterion the mapping omits.
func weightedTotal(breakdown map[string]float64, weights map[string]float64, defaultWeight float64) float64 {
	total := 0.0
	for k, score := range breakdown {
		w, ok := weights[k]
		if !ok {
			w = defaultWeight
		}
		total += score * w
	}
	return clamp01(total)
}

func daysBetween(start, end *time.Time) int {
	if start == nil || end == nil {
		return 0
	}
	d := int(end.Sub(*start).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// joinTexts concatenates non-empty fragments, capped so model inputs stay
// bounded.
func joinTexts(items []string, limit int) string {
	var nonEmpty []string
	for _, it := range items {
		if it != "" {
			nonEmpty = append(nonEmpty, it)
		}
	}
	text := strings.Join(nonEmpty, "\n\n")
	if len(text) > limit {
		text = text[:limit]
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
