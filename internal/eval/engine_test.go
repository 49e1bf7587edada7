package eval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rfqmarket/models"
)

// stubGenerator returns canned responses in order.
type stubGenerator struct {
	responses []string
	err       error
	calls     int
}

func (s *stubGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	i := s.calls - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

func TestPhase1AcceptsModelVerdict(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		`{"status":"reject","reasons":["no license"],"missing":["license"],"red_flags":["unverifiable claims"],"clarifications":[]}`,
	}}
	svc := NewService(gen, nil, DefaultParams(), nil)

	res := svc.Phase1(context.Background(), RFQInput{Title: "Road works"}, "we build roads")
	require.Equal(t, models.PhaseReject, res.Status)
	require.Equal(t, []string{"no license"}, res.Report.Reasons)
	require.Equal(t, []string{"unverifiable claims"}, res.Report.RedFlags)
}

func TestPhase1FallsBackOnModelError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model down")}
	svc := NewService(gen, nil, DefaultParams(), nil)

	rfq := RFQInput{Criteria: "Vendors must hold a certification and show past performance."}
	res := svc.Phase1(context.Background(), rfq, "We have years of past performance on similar contracts.")

	require.Equal(t, models.PhaseClarify, res.Status)
	require.Contains(t, res.Report.Missing, "certification")
	require.NotContains(t, res.Report.Missing, "past performance")
	require.Contains(t, res.Report.Clarifications, "Please provide details about 'certification'.")
}

func TestPhase1FallbackPassesWhenNothingMissing(t *testing.T) {
	svc := NewService(nil, nil, DefaultParams(), nil)

	rfq := RFQInput{Criteria: "Describe your methodology."}
	res := svc.Phase1(context.Background(), rfq, "Our methodology is iterative.")
	require.Equal(t, models.PhasePass, res.Status)
	require.Empty(t, res.Report.Missing)
}

func TestPhase1IgnoresUnknownStatus(t *testing.T) {
	gen := &stubGenerator{responses: []string{`{"status":"maybe"}`}}
	svc := NewService(gen, nil, DefaultParams(), nil)

	res := svc.Phase1(context.Background(), RFQInput{}, "anything")
	require.Equal(t, models.PhasePass, res.Status)
	require.Equal(t, []string{"Heuristic fallback decision"}, res.Report.Reasons)
}

func TestPhase2DeterministicPass(t *testing.T) {
	svc := NewService(nil, nil, DefaultParams(), nil)

	quals := strings.Repeat("Delivered on budget. ", 10) +
		"Our experience, methodology, case study portfolio, reference list, certification and compliance record are attached."
	rfq := RFQInput{
		BudgetMin: 100, BudgetMax: 200,
		Weights: map[string]float64{"price": 2, "timeline": 1, "experience": 1},
	}
	bid := BidInput{Price: 120, Qualifications: quals}

	res := svc.Phase2(context.Background(), rfq, bid)

	// price 0.8*0.5 + timeline 1.0*0.25 + experience 0.9*0.25 + semantic 0
	require.InDelta(t, 0.875, res.Score, 1e-3)
	require.Equal(t, models.PhasePass, res.Status)
	require.InDelta(t, 0.8, res.Breakdown["price"], 1e-3)
	require.InDelta(t, 1.0, res.Breakdown["timeline"], 1e-3)
	require.Empty(t, res.RedFlags)
}

func TestPhase2ExperienceCountsFileTexts(t *testing.T) {
	svc := NewService(nil, nil, DefaultParams(), nil)

	bid := BidInput{
		Price:          120,
		Qualifications: "Subcontractor summary attached.",
		FileTexts:      []string{"Our certification and compliance programs reflect long experience."},
	}
	res := svc.Phase2(context.Background(), RFQInput{BudgetMin: 100, BudgetMax: 200}, bid)

	// 3 lexicon hits from the attached document, thin-text penalty applies
	require.InDelta(t, (0.3+0.3)*0.85, res.Breakdown["experience"], 1e-3)
}

func TestPhase2DeterministicReject(t *testing.T) {
	svc := NewService(nil, nil, DefaultParams(), nil)

	rfq := RFQInput{Weights: map[string]float64{"semantic": 1}}
	res := svc.Phase2(context.Background(), rfq, BidInput{Price: 0, Qualifications: "ok"})

	// semantic 0 with no embedder, everything else on the 0.25 default weight
	require.Less(t, res.Score, 0.5)
	require.Equal(t, models.PhaseReject, res.Status)
}

func TestPhase2RedFlagsBlockPass(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		`{"missing":[],"red_flags":["price below cost"],"clarification_needed":[]}`,
	}}
	svc := NewService(gen, nil, DefaultParams(), nil)

	quals := strings.Repeat("Delivered on budget. ", 10) +
		"Our experience, methodology, case study portfolio, reference list, certification and compliance record are attached."
	rfq := RFQInput{
		BudgetMin: 100, BudgetMax: 200,
		Weights: map[string]float64{"price": 2, "timeline": 1, "experience": 1},
	}
	res := svc.Phase2(context.Background(), rfq, BidInput{Price: 120, Qualifications: quals})

	require.GreaterOrEqual(t, res.Score, 0.72)
	require.Equal(t, models.PhaseClarify, res.Status)
	require.Equal(t, []string{"price below cost"}, res.RedFlags)
}

func TestPhase2SemanticUsesEmbedder(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0, 0}}
	svc := NewService(nil, emb, DefaultParams(), nil)

	rfq := RFQInput{Scope: "build a bridge"}
	res := svc.Phase2(context.Background(), rfq, BidInput{Qualifications: "we build bridges"})
	require.InDelta(t, 1.0, res.Breakdown["semantic"], 1e-3)
}

func TestPhase2EmbedderFailureDegrades(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("embed down")}
	svc := NewService(nil, emb, DefaultParams(), nil)

	res := svc.Phase2(context.Background(), RFQInput{Scope: "x"}, BidInput{Qualifications: "y"})
	require.InDelta(t, 0.0, res.Breakdown["semantic"], 1e-9)
}
