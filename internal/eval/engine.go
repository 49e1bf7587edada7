package eval

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"rfqmarket/internal/llm"
	"rfqmarket/models"
)

// Params are the scoring design parameters. They default to the documented
// values but stay configurable for behavioral tuning.
type Params struct {
	PassThreshold    float64
	ClarifyThreshold float64
	DefaultWeight    float64
}

// DefaultParams returns the documented scoring parameters.
func DefaultParams() Params {
	return Params{PassThreshold: 0.72, ClarifyThreshold: 0.5, DefaultWeight: 0.25}
}

// Service runs the two-phase bid evaluation. Model handles are injected at
// construction; a nil generator or embedder degrades to heuristics only.
type Service struct {
	gen    llm.Generator
	emb    llm.Embedder
	params Params
	log    *zap.Logger
}

// NewService constructs an evaluation service around the given model ports.
func NewService(gen llm.Generator, emb llm.Embedder, params Params, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{gen: gen, emb: emb, params: params, log: log}
}

// RFQInput is the owner-side view the engine evaluates against.
type RFQInput struct {
	Title       string
	Scope       string
	Criteria    string
	Eligibility string
	BudgetMin   float64
	BudgetMax   float64
	StartDate   *time.Time
	EndDate     *time.Time
	Weights     map[string]float64
	FileTexts   []string
}

// BidInput is the bidder-side view.
type BidInput struct {
	Price          float64
	TimelineStart  *time.Time
	TimelineEnd    *time.Time
	Qualifications string
	FileTexts      []string
}

// Phase1Result is the eligibility gate verdict.
type Phase1Result struct {
	Status string // pass | reject | clarify
	Report models.Phase1Report
}

// Phase2Result is the weighted scoring verdict.
type Phase2Result struct {
	Status              string // pass | reject | clarify
	Score               float64
	Breakdown           models.Phase2Breakdown
	Missing             []string
	RedFlags            []string
	ClarificationNeeded []string
}

// fallbackKeywords drive the deterministic phase-1 screen when the model
// response is unusable. Only keywords that appear in the RFQ criteria are
// required of the bidder.
var fallbackKeywords = []string{
	"experience", "methodology", "approach", "team", "compliance", "certification", "past performance",
}

// Phase1 screens bidder text against the RFQ's criteria and eligibility.
// The model verdict is validated before use; anything unparseable or missing
// a recognized status falls through to the keyword heuristic, so this phase
// never fails and always returns a well-typed result.
func (s *Service) Phase1(ctx context.Context, rfq RFQInput, bidderText string) Phase1Result {
	prompt := fmt.Sprintf(`You are an RFQ pre-qualification checker.

RFQ Title: %s
Scope (summary): %s

Evaluation Criteria (owner-provided):
%s

Eligibility Requirements (owner-provided):
%s

Bidder Submission (free text):
%s

Task:
1) Determine if the bidder MEETS minimum criteria & eligibility.
2) Identify what's missing relative to criteria/eligibility.
3) Identify any risks/red flags.
4) If something essential is unclear/missing, request clarification.

Return STRICT JSON with keys:
{
  "status": "pass" | "reject" | "clarify",
  "reasons": string[],
  "missing": string[],
  "red_flags": string[],
  "clarifications": string[]
}
Only return JSON.`, rfq.Title, rfq.Scope, rfq.Criteria, rfq.Eligibility, truncate(bidderText, promptCap))

	raw := llm.AskJSON(ctx, s.gen, prompt, nil)

	status, _ := raw["status"].(string)
	switch status {
	case models.PhasePass, models.PhaseReject, models.PhaseClarify:
		return Phase1Result{
			Status: status,
			Report: models.Phase1Report{
				Reasons:        asStrings(raw["reasons"]),
				Missing:        asStrings(raw["missing"]),
				RedFlags:       asStrings(raw["red_flags"]),
				Clarifications: asStrings(firstNonNil(raw["clarifications"], raw["clarification_needed"])),
			},
		}
	}

	s.log.Info("phase1 model verdict unusable, using keyword fallback")
	return phase1Fallback(rfq.Criteria, bidderText)
}

// phase1Fallback scans bidder text for required terms drawn from the
// criteria. Any missing keyword asks for clarification; none missing passes.
func phase1Fallback(criteria, bidderText string) Phase1Result {
	critLower := strings.ToLower(criteria)
	textLower := strings.ToLower(bidderText)

	var missing []string
	for _, kw := range fallbackKeywords {
		if strings.Contains(critLower, kw) && !strings.Contains(textLower, kw) {
			missing = append(missing, kw)
		}
	}

	status := models.PhasePass
	var clarifications []string
	if len(missing) > 0 {
		status = models.PhaseClarify
		for _, m := range missing {
			clarifications = append(clarifications, fmt.Sprintf("Please provide details about '%s'.", m))
		}
	}
	return Phase1Result{
		Status: status,
		Report: models.Phase1Report{
			Reasons:        []string{"Heuristic fallback decision"},
			Missing:        missing,
			RedFlags:       []string{},
			Clarifications: clarifications,
		},
	}
}

// Phase2 computes the four sub-scores, combines them under the RFQ weight
// mapping, and asks the model for missing points and red flags. Model
// failure degrades to empty findings; the numeric scoring is deterministic.
func (s *Service) Phase2(ctx context.Context, rfq RFQInput, bid BidInput) Phase2Result {
	weights := ParseWeights(rfq.Weights)

	rfqText := joinTexts(append([]string{rfq.Scope, rfq.Criteria, rfq.Eligibility}, rfq.FileTexts...), joinCap)
	bidText := joinTexts(append([]string{bid.Qualifications}, bid.FileTexts...), joinCap)

	semantic := s.semanticScore(ctx, rfqText, bidText)

	windowDays := daysBetween(rfq.StartDate, rfq.EndDate)
	bidDays := daysBetween(bid.TimelineStart, bid.TimelineEnd)

	breakdown := models.Phase2Breakdown{
		"price":      round3(priceScore(bid.Price, rfq.BudgetMin, rfq.BudgetMax)),
		"timeline":   round3(timelineScore(windowDays, bidDays)),
		"experience": round3(experienceScore(bidText)),
		"semantic":   round3(semantic),
	}
	total := weightedTotal(breakdown, weights, s.params.DefaultWeight)

	findings := s.compareFindings(ctx, rfqText, bidText)

	status := models.PhaseReject
	switch {
	case total >= s.params.PassThreshold && len(findings.RedFlags) == 0:
		status = models.PhasePass
	case total >= s.params.ClarifyThreshold:
		status = models.PhaseClarify
	}

	return Phase2Result{
		Status:              status,
		Score:               round3(total),
		Breakdown:           breakdown,
		Missing:             findings.Missing,
		RedFlags:            findings.RedFlags,
		ClarificationNeeded: findings.ClarificationNeeded,
	}
}

func (s *Service) semanticScore(ctx context.Context, rfqText, bidText string) float64 {
	if s.emb == nil || rfqText == "" || bidText == "" {
		return 0
	}
	rfqVec, err := s.emb.Embed(ctx, rfqText)
	if err != nil {
		s.log.Warn("rfq embedding failed", zap.Error(err))
		return 0
	}
	bidVec, err := s.emb.Embed(ctx, bidText)
	if err != nil {
		s.log.Warn("bid embedding failed", zap.Error(err))
		return 0
	}
	return clamp01(cosine(rfqVec, bidVec))
}

type findings struct {
	Missing             []string
	RedFlags            []string
	ClarificationNeeded []string
}

func (s *Service) compareFindings(ctx context.Context, rfqText, bidText string) findings {
	prompt := fmt.Sprintf(`You compare an RFQ document to a bidder proposal.

Return STRICT JSON with:
{
  "missing": string[],
  "red_flags": string[],
  "clarification_needed": string[]
}

RFQ TEXT:
%s

BID TEXT:
%s`, truncate(rfqText, promptCap), truncate(bidText, promptCap))

	raw := llm.AskJSON(ctx, s.gen, prompt, map[string]any{
		"missing": []any{}, "red_flags": []any{}, "clarification_needed": []any{},
	})
	return findings{
		Missing:             asStrings(raw["missing"]),
		RedFlags:            asStrings(raw["red_flags"]),
		ClarificationNeeded: asStrings(raw["clarification_needed"]),
	}
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return t
	default:
		return []string{fmt.Sprint(t)}
	}
}

func firstNonNil(vals ...any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
