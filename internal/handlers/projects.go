package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/models"
)

// SelectWinnerHandler awards the RFQ to one bid. The transactional store
// call closes the RFQ, marks the bid selected, and creates the project; a
// concurrent second selection loses on the conditional update and gets 409.
// The on-chain close is best effort once the off-chain award committed.
func (h *Handler) SelectWinnerHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	bid, rfq, ok := h.loadBidWithAccess(w, r, p)
	if !ok {
		return
	}
	if rfq.OwnerID != p.UserID {
		writeError(w, http.StatusForbidden, "not your RFQ")
		return
	}
	if bid.Phase1Status != models.PhasePass || bid.Phase2Status != models.PhasePass {
		writeError(w, http.StatusConflict, "bid has not cleared evaluation")
		return
	}

	project, err := h.Store.SelectWinner(r.Context(), rfq.ID, bid.ID)
	if err != nil {
		h.storeError(w, err, "bid not found")
		return
	}

	if h.Anchor != nil && rfq.OnchainID != nil {
		if _, err := h.Anchor.CloseRFQ(r.Context(), *rfq.OnchainID); err != nil {
			h.Log.Warn("on-chain close failed after award",
				zap.Int("rfq_id", rfq.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, project)
}

// ListProjectsHandler returns projects scoped by role.
func (h *Handler) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var (
		projects []db.Project
		err      error
	)
	switch p.Role {
	case models.RoleOwner:
		projects, err = h.Store.ListProjectsByOwner(r.Context(), p.UserID)
	case models.RoleBidder:
		projects, err = h.Store.ListProjectsByBidder(r.Context(), p.UserID)
	default:
		projects, err = h.Store.ListProjects(r.Context())
	}
	if err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// GetProjectHandler returns one project for its owner, winning bidder, or an
// admin.
func (h *Handler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	project, _, _, ok := h.loadProjectWithAccess(w, r, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, project)
}

type createMilestoneRequest struct {
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
}

// CreateMilestoneHandler adds a pending milestone. Winning bidder only.
func (h *Handler) CreateMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	project, _, bid, ok := h.loadProjectWithAccess(w, r, p)
	if !ok {
		return
	}
	if bid.BidderID != p.UserID {
		writeError(w, http.StatusForbidden, "not your project")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dueDate")
		return
	}

	m := &db.Milestone{ProjectID: project.ID, Description: req.Description, DueDate: due}
	if err := h.Store.CreateMilestone(r.Context(), m); err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMilestonesHandler lists a project's milestones.
func (h *Handler) ListMilestonesHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	project, _, _, ok := h.loadProjectWithAccess(w, r, p)
	if !ok {
		return
	}
	milestones, err := h.Store.ListMilestones(r.Context(), project.ID)
	if err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, milestones)
}

type submitMilestoneRequest struct {
	DocumentHash string `json:"documentHash"`
}

// SubmitMilestoneHandler moves a pending milestone to submitted. Winning
// bidder only.
func (h *Handler) SubmitMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	h.milestoneToSubmitted(w, r, []string{models.MilestonePending})
}

// ResubmitMilestoneHandler re-submits a milestone the owner rejected. Only
// legal from rejected; any other state is a conflict.
func (h *Handler) ResubmitMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	h.milestoneToSubmitted(w, r, []string{models.MilestoneRejected})
}

func (h *Handler) milestoneToSubmitted(w http.ResponseWriter, r *http.Request, from []string) {
	p, _ := PrincipalFrom(r.Context())
	m, _, bid, ok := h.loadMilestoneWithAccess(w, r, p)
	if !ok {
		return
	}
	if bid.BidderID != p.UserID {
		writeError(w, http.StatusForbidden, "not your project")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req submitMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var docHash *string
	if req.DocumentHash != "" {
		docHash = &req.DocumentHash
	}

	if err := h.Store.TransitionMilestone(r.Context(), m.ID, from, models.MilestoneSubmitted, docHash, nil); err != nil {
		h.storeError(w, err, "milestone not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneSubmitted})
}

// ApproveMilestoneHandler accepts a submitted milestone. Owner only.
func (h *Handler) ApproveMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	m, rfq, _, ok := h.loadMilestoneWithAccess(w, r, p)
	if !ok {
		return
	}
	if rfq.OwnerID != p.UserID {
		writeError(w, http.StatusForbidden, "not your project")
		return
	}

	from := []string{models.MilestoneSubmitted}
	if err := h.Store.TransitionMilestone(r.Context(), m.ID, from, models.MilestoneApproved, nil, nil); err != nil {
		h.storeError(w, err, "milestone not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneApproved})
}

type rejectMilestoneRequest struct {
	Comment string `json:"comment"`
}

// RejectMilestoneHandler sends a submitted milestone back with a comment.
// Owner only.
func (h *Handler) RejectMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	m, rfq, _, ok := h.loadMilestoneWithAccess(w, r, p)
	if !ok {
		return
	}
	if rfq.OwnerID != p.UserID {
		writeError(w, http.StatusForbidden, "not your project")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req rejectMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Comment) == "" {
		writeError(w, http.StatusBadRequest, "comment is required")
		return
	}

	from := []string{models.MilestoneSubmitted}
	if err := h.Store.TransitionMilestone(r.Context(), m.ID, from, models.MilestoneRejected, nil, &req.Comment); err != nil {
		h.storeError(w, err, "milestone not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneRejected})
}

// loadProjectWithAccess fetches a project plus the RFQ and winning bid and
// enforces the read rule: RFQ owner, winning bidder, or admin.
func (h *Handler) loadProjectWithAccess(w http.ResponseWriter, r *http.Request, p Principal) (*db.Project, *db.RFQ, *db.Bid, bool) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return nil, nil, nil, false
	}
	project, err := h.Store.GetProject(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "project not found")
		return nil, nil, nil, false
	}
	rfq, err := h.Store.GetRFQ(r.Context(), project.RFQID)
	if err != nil {
		h.storeError(w, err, "RFQ not found")
		return nil, nil, nil, false
	}
	bid, err := h.Store.GetBid(r.Context(), project.WinnerBidID)
	if err != nil {
		h.storeError(w, err, "bid not found")
		return nil, nil, nil, false
	}
	if p.UserID != rfq.OwnerID && p.UserID != bid.BidderID && p.Role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return nil, nil, nil, false
	}
	return project, rfq, bid, true
}

// loadMilestoneWithAccess resolves a milestone through its project and
// applies the same access rule.
func (h *Handler) loadMilestoneWithAccess(w http.ResponseWriter, r *http.Request, p Principal) (*db.Milestone, *db.RFQ, *db.Bid, bool) {
	id, err := urlID(r, "milestoneID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid milestone id")
		return nil, nil, nil, false
	}
	m, err := h.Store.GetMilestone(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "milestone not found")
		return nil, nil, nil, false
	}
	project, err := h.Store.GetProject(r.Context(), m.ProjectID)
	if err != nil {
		h.storeError(w, err, "project not found")
		return nil, nil, nil, false
	}
	rfq, err := h.Store.GetRFQ(r.Context(), project.RFQID)
	if err != nil {
		h.storeError(w, err, "RFQ not found")
		return nil, nil, nil, false
	}
	bid, err := h.Store.GetBid(r.Context(), project.WinnerBidID)
	if err != nil {
		h.storeError(w, err, "bid not found")
		return nil, nil, nil, false
	}
	if p.UserID != rfq.OwnerID && p.UserID != bid.BidderID && p.Role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return nil, nil, nil, false
	}
	return m, rfq, bid, true
}
