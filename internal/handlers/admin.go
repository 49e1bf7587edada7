package handlers

import (
	"net/http"

	"rfqmarket/db"
	"rfqmarket/models"
)

// ListUsersHandler returns all registered users. Admin only.
func (h *Handler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// DeleteUserHandler removes a user account. Accounts still referenced by
// RFQs or bids are refused with 409. Admin only.
func (h *Handler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if id == p.UserID {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	if err := h.Store.DeleteUser(r.Context(), id); err != nil {
		h.storeError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

// DashboardHandler summarizes the caller's activity by role: bidders see
// their bids and recent open RFQs, owners their RFQs and projects, admins a
// platform-wide count view.
func (h *Handler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	switch p.Role {
	case models.RoleBidder:
		bids, err := h.Store.ListBidsByBidder(r.Context(), p.UserID)
		if err != nil {
			h.storeError(w, err, "")
			return
		}
		rfqs, err := h.Store.ListRecentOpenRFQs(r.Context(), 10)
		if err != nil {
			h.storeError(w, err, "")
			return
		}
		projects, err := h.Store.ListProjectsByBidder(r.Context(), p.UserID)
		if err != nil {
			h.storeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"bids":       bids,
			"openRfqs":   rfqs,
			"projects":   projects,
			"bidCount":   len(bids),
			"activeBids": countBidsByStatus(bids, models.BidSubmitted, models.BidNeedsClarification),
		})

	case models.RoleOwner:
		rfqs, err := h.Store.ListRFQsByOwner(r.Context(), p.UserID)
		if err != nil {
			h.storeError(w, err, "")
			return
		}
		projects, err := h.Store.ListProjectsByOwner(r.Context(), p.UserID)
		if err != nil {
			h.storeError(w, err, "")
			return
		}
		open := 0
		for _, rfq := range rfqs {
			if rfq.Status == models.RFQOpen {
				open++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"rfqs":     rfqs,
			"projects": projects,
			"openRfqs": open,
		})

	default:
		users, err := h.Store.ListUsers(r.Context())
		if err != nil {
			h.storeError(w, err, "")
			return
		}
		rfqs, err := h.Store.ListOpenRFQs(r.Context())
		if err != nil {
			h.storeError(w, err, "")
			return
		}
		projects, err := h.Store.ListProjects(r.Context())
		if err != nil {
			h.storeError(w, err, "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"userCount":    len(users),
			"openRfqCount": len(rfqs),
			"projectCount": len(projects),
		})
	}
}

func countBidsByStatus(bids []db.Bid, statuses ...string) int {
	n := 0
	for _, b := range bids {
		for _, s := range statuses {
			if b.Status == s {
				n++
				break
			}
		}
	}
	return n
}
