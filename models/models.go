package models

// Roles a registered user can hold.
const (
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
	RoleBidder = "bidder"
)

// ValidRole reports whether role is one of the three known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleOwner || role == RoleBidder
}

// RFQ lifecycle.
const (
	RFQOpen   = "open"
	RFQClosed = "closed"
)

// Bid lifecycle.
const (
	BidSubmitted          = "submitted"
	BidNeedsClarification = "needs_clarification"
	BidRejected           = "rejected"
	BidSelected           = "selected"
)

// BidTerminal reports whether a bid status admits no further transitions.
func BidTerminal(status string) bool {
	return status == BidRejected || status == BidSelected
}

// Per-phase evaluation outcomes.
const (
	PhasePending       = "pending"
	PhasePass          = "pass"
	PhaseReject        = "reject"
	PhaseClarify       = "clarify"
	PhaseNotApplicable = "not_applicable"
)

// Clarification thread lifecycle.
const (
	ThreadOpen     = "open"
	ThreadResolved = "resolved"
	ThreadRejected = "rejected"
)

// Milestone lifecycle.
const (
	MilestonePending   = "pending"
	MilestoneSubmitted = "submitted"
	MilestoneApproved  = "approved"
	MilestoneRejected  = "rejected"
)

// Phase1Report is the structured verdict of the eligibility pre-screen.
// Stored on the bid as a validated blob, not free-form JSON.
type Phase1Report struct {
	Reasons        []string `json:"reasons"`
	Missing        []string `json:"missing"`
	RedFlags       []string `json:"red_flags"`
	Clarifications []string `json:"clarifications"`
}

// Phase2Breakdown maps criterion name to its sub-score in [0,1].
type Phase2Breakdown map[string]float64
