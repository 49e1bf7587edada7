package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/internal/chain"
	"rfqmarket/models"
)

func urlID(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}

type createRFQRequest struct {
	Title                   string             `json:"title"`
	Scope                   string             `json:"scope"`
	Deadline                string             `json:"deadline"`
	EvaluationCriteria      string             `json:"evaluationCriteria"`
	EligibilityRequirements string             `json:"eligibilityRequirements"`
	Category                string             `json:"category"`
	BudgetMin               float64            `json:"budgetMin"`
	BudgetMax               float64            `json:"budgetMax"`
	PublishDate             string             `json:"publishDate"`
	ClarificationDeadline   string             `json:"clarificationDeadline"`
	StartDate               string             `json:"startDate"`
	EndDate                 string             `json:"endDate"`
	Location                string             `json:"location"`
	EvaluationWeights       map[string]float64 `json:"evaluationWeights"`
}

// CreateRFQHandler publishes a new request for quotation. When anchoring is
// enabled the on-chain record is written first; a chain failure aborts the
// whole request so the ledger never lags the database.
func (h *Handler) CreateRFQHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req createRFQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.BudgetMin < 0 || req.BudgetMax < 0 || (req.BudgetMax > 0 && req.BudgetMin > req.BudgetMax) {
		writeError(w, http.StatusBadRequest, "invalid budget range")
		return
	}

	var parseErr error
	date := func(field, raw string) *time.Time {
		t, err := parseDate(raw)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("invalid %s", field)
		}
		return t
	}
	rfq := &db.RFQ{
		OwnerID:                 p.UserID,
		Title:                   req.Title,
		Scope:                   req.Scope,
		Deadline:                date("deadline", req.Deadline),
		EvaluationCriteria:      req.EvaluationCriteria,
		EligibilityRequirements: req.EligibilityRequirements,
		Category:                req.Category,
		BudgetMin:               req.BudgetMin,
		BudgetMax:               req.BudgetMax,
		PublishDate:             date("publishDate", req.PublishDate),
		ClarificationDeadline:   date("clarificationDeadline", req.ClarificationDeadline),
		StartDate:               date("startDate", req.StartDate),
		EndDate:                 date("endDate", req.EndDate),
		Location:                req.Location,
		EvaluationWeights:       db.WeightMap(req.EvaluationWeights),
	}
	if parseErr != nil {
		writeError(w, http.StatusBadRequest, parseErr.Error())
		return
	}

	if h.Anchor != nil {
		contentHash := chain.Keccak(rfq.Title + "|" + rfq.Scope + "|" + rfq.EvaluationCriteria)
		res, err := h.Anchor.CreateRFQ(r.Context(), rfq.Title, contentHash,
			chain.ToUnixSeconds(rfq.Deadline), rfq.Category, int64(rfq.BudgetMax), rfq.Location)
		if err != nil {
			h.Log.Error("rfq anchoring failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "blockchain anchoring failed")
			return
		}
		rfq.OnchainID = res.OnchainID
		rfq.TxHash = &res.TxHash
	}

	if err := h.Store.CreateRFQ(r.Context(), rfq); err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, rfq)
}

// ListRFQsHandler returns RFQs scoped by role: owners see their own, bidders
// and admins see everything open.
func (h *Handler) ListRFQsHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var (
		rfqs []db.RFQ
		err  error
	)
	if p.Role == models.RoleOwner {
		rfqs, err = h.Store.ListRFQsByOwner(r.Context(), p.UserID)
	} else {
		rfqs, err = h.Store.ListOpenRFQs(r.Context())
	}
	if err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, rfqs)
}

// GetRFQHandler returns one RFQ. Any authenticated user may read it.
func (h *Handler) GetRFQHandler(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid RFQ id")
		return
	}
	rfq, err := h.Store.GetRFQ(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "RFQ not found")
		return
	}
	writeJSON(w, http.StatusOK, rfq)
}

// UploadRFQFileHandler attaches a document to an RFQ the caller owns.
func (h *Handler) UploadRFQFileHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid RFQ id")
		return
	}
	rfq, err := h.Store.GetRFQ(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "RFQ not found")
		return
	}
	if rfq.OwnerID != p.UserID {
		writeError(w, http.StatusForbidden, "not your RFQ")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	stored, clean, err := h.Docs.SaveRFQFile(rfq.ID, header.Filename, file)
	if err != nil {
		h.Log.Error("rfq file save failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "could not store file")
		return
	}

	rec := &db.RFQFile{RFQID: rfq.ID, Filename: clean, StoredPath: stored}
	if err := h.Store.AddRFQFile(r.Context(), rec); err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListRFQFilesHandler lists documents attached to an RFQ.
func (h *Handler) ListRFQFilesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid RFQ id")
		return
	}
	if _, err := h.Store.GetRFQ(r.Context(), id); err != nil {
		h.storeError(w, err, "RFQ not found")
		return
	}
	files, err := h.Store.ListRFQFiles(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// DownloadRFQFileHandler streams a stored RFQ document.
func (h *Handler) DownloadRFQFileHandler(w http.ResponseWriter, r *http.Request) {
	fileID, err := urlID(r, "fileID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}
	rec, err := h.Store.GetRFQFile(r.Context(), fileID)
	if err != nil {
		h.storeError(w, err, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Filename))
	http.ServeFile(w, r, rec.StoredPath)
}

// ListRFQBidsHandler lists bids on an RFQ. The owner sees all of them;
// a bidder sees only their own.
func (h *Handler) ListRFQBidsHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid RFQ id")
		return
	}
	rfq, err := h.Store.GetRFQ(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "RFQ not found")
		return
	}

	var bids []db.Bid
	switch {
	case p.UserID == rfq.OwnerID || p.Role == models.RoleAdmin:
		bids, err = h.Store.ListBidsForRFQ(r.Context(), id)
	case p.Role == models.RoleBidder:
		bids, err = h.Store.ListBidsForRFQByBidder(r.Context(), id, p.UserID)
	default:
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	if err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

// ListCandidatesHandler returns the bids that cleared both evaluation
// phases, ranked by score. Owner only.
func (h *Handler) ListCandidatesHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid RFQ id")
		return
	}
	rfq, err := h.Store.GetRFQ(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "RFQ not found")
		return
	}
	if rfq.OwnerID != p.UserID && p.Role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "not your RFQ")
		return
	}
	bids, err := h.Store.ListCandidates(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, bids)
}
