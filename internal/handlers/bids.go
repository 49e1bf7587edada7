package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/internal/chain"
	"rfqmarket/internal/docstore"
	"rfqmarket/internal/eval"
	"rfqmarket/models"
)

// bidUpload is one proposal document held in memory until the bid row
// exists, so a failed anchor leaves no trace on disk or in the database.
type bidUpload struct {
	filename string
	data     []byte
}

// CreateBidHandler accepts a multipart bid submission: form fields plus at
// least one proposal document. Ordering matters: the document hash is
// anchored on-chain before anything is written off-chain, then the bid and
// its files are stored and the two-phase evaluation runs inline.
func (h *Handler) CreateBidHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	rfqID, err := strconv.Atoi(r.FormValue("rfqId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "rfqId is required")
		return
	}
	price, err := strconv.ParseFloat(r.FormValue("price"), 64)
	if err != nil || price <= 0 {
		writeError(w, http.StatusBadRequest, "price must be a positive number")
		return
	}
	timelineStart, err := parseDate(r.FormValue("timelineStart"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timelineStart")
		return
	}
	timelineEnd, err := parseDate(r.FormValue("timelineEnd"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timelineEnd")
		return
	}
	if timelineStart != nil && timelineEnd != nil && timelineEnd.Before(*timelineStart) {
		writeError(w, http.StatusBadRequest, "timelineEnd precedes timelineStart")
		return
	}
	qualifications := r.FormValue("qualifications")

	rfq, err := h.Store.GetRFQ(r.Context(), rfqID)
	if err != nil {
		h.storeError(w, err, "RFQ not found")
		return
	}
	if rfq.Status != models.RFQOpen {
		writeError(w, http.StatusConflict, "RFQ is closed")
		return
	}
	if rfq.Deadline != nil && time.Now().After(*rfq.Deadline) {
		writeError(w, http.StatusConflict, "RFQ deadline has passed")
		return
	}

	var uploads []bidUpload
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			f, err := header.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "could not read upload")
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "could not read upload")
				return
			}
			uploads = append(uploads, bidUpload{filename: header.Filename, data: data})
		}
	}
	if len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, "at least one proposal document is required")
		return
	}

	var fileTexts []string
	for _, u := range uploads {
		if text := docstore.TextFromBytes(u.filename, u.data); text != "" {
			fileTexts = append(fileTexts, text)
		}
	}
	// Qualifications default to the extracted document text, capped.
	if strings.TrimSpace(qualifications) == "" {
		qualifications = capText(strings.Join(fileTexts, "\n\n"), h.QualificationCap)
	}

	// One hash covers the whole document set.
	var hashInput bytes.Buffer
	for _, u := range uploads {
		hashInput.Write(u.data)
	}
	docHash := chain.Keccak(hashInput.String())

	bid := &db.Bid{
		RFQID:          rfq.ID,
		BidderID:       p.UserID,
		Price:          price,
		TimelineStart:  timelineStart,
		TimelineEnd:    timelineEnd,
		Qualifications: qualifications,
		DocumentHash:   docHash,
	}

	if h.Anchor != nil && rfq.OnchainID != nil {
		res, err := h.Anchor.SubmitBid(r.Context(), *rfq.OnchainID, int64(price), docHash)
		if err != nil {
			h.Log.Error("bid anchoring failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "blockchain anchoring failed")
			return
		}
		bid.OnchainID = res.OnchainID
		bid.TxHash = &res.TxHash
	}

	if err := h.Store.CreateBid(r.Context(), bid); err != nil {
		h.storeError(w, err, "")
		return
	}

	for _, u := range uploads {
		stored, clean, err := h.Docs.SaveBidFile(bid.ID, u.filename, bytes.NewReader(u.data))
		if err != nil {
			h.Log.Error("bid file save failed", zap.Error(err))
			writeError(w, http.StatusBadRequest, "could not store file")
			return
		}
		rec := &db.BidFile{BidID: bid.ID, Filename: clean, StoredPath: stored}
		if err := h.Store.AddBidFile(r.Context(), rec); err != nil {
			h.storeError(w, err, "")
			return
		}
	}

	h.runEvaluation(r.Context(), rfq, bid, fileTexts, "")
	writeJSON(w, http.StatusCreated, bid)
}

// MyBidsHandler lists the caller's own bids.
func (h *Handler) MyBidsHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	bids, err := h.Store.ListBidsByBidder(r.Context(), p.UserID)
	if err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

// GetBidHandler returns one bid, visible to its bidder, the RFQ owner, and
// admins.
func (h *Handler) GetBidHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	bid, _, ok := h.loadBidWithAccess(w, r, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

// RejectBidHandler lets the RFQ owner reject a bid outright. Terminal bids
// stay as they are.
func (h *Handler) RejectBidHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	bid, rfq, ok := h.loadBidWithAccess(w, r, p)
	if !ok {
		return
	}
	if rfq.OwnerID != p.UserID {
		writeError(w, http.StatusForbidden, "not your RFQ")
		return
	}

	from := []string{models.BidSubmitted, models.BidNeedsClarification}
	if err := h.Store.UpdateBidStatusIf(r.Context(), bid.ID, from, models.BidRejected); err != nil {
		h.storeError(w, err, "bid not found")
		return
	}
	if thread, err := h.Store.GetOpenThreadForBid(r.Context(), bid.ID); err == nil {
		if err := h.Store.UpdateThreadStatus(r.Context(), thread.ID, models.ThreadRejected); err != nil {
			h.Log.Warn("thread status update failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.BidRejected})
}

type clarifyRequest struct {
	Message string `json:"message"`
}

// RequestClarificationHandler opens (or reuses) a clarification thread on a
// bid and posts the owner's question. The bid moves to needs_clarification.
func (h *Handler) RequestClarificationHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	bid, rfq, ok := h.loadBidWithAccess(w, r, p)
	if !ok {
		return
	}
	if rfq.OwnerID != p.UserID {
		writeError(w, http.StatusForbidden, "not your RFQ")
		return
	}
	if models.BidTerminal(bid.Status) {
		writeError(w, http.StatusConflict, "bid is already decided")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req clarifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	thread, err := h.Store.GetOpenThreadForBid(r.Context(), bid.ID)
	if err != nil {
		thread = &db.ClarificationThread{BidID: bid.ID, OwnerID: rfq.OwnerID}
		if err := h.Store.CreateThread(r.Context(), thread); err != nil {
			h.storeError(w, err, "")
			return
		}
	}
	msg := &db.ClarificationMessage{
		ThreadID:   thread.ID,
		SenderID:   p.UserID,
		SenderRole: p.Role,
		Body:       req.Message,
	}
	if err := h.Store.AddMessage(r.Context(), msg); err != nil {
		h.storeError(w, err, "")
		return
	}

	from := []string{models.BidSubmitted, models.BidNeedsClarification}
	if err := h.Store.UpdateBidStatusIf(r.Context(), bid.ID, from, models.BidNeedsClarification); err != nil {
		h.storeError(w, err, "bid not found")
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

// GetBidThreadHandler returns the bid's clarification thread with messages.
func (h *Handler) GetBidThreadHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	bid, _, ok := h.loadBidWithAccess(w, r, p)
	if !ok {
		return
	}
	thread, err := h.Store.GetOpenThreadForBid(r.Context(), bid.ID)
	if err != nil {
		h.storeError(w, err, "no clarification thread")
		return
	}
	messages, err := h.Store.ListMessages(r.Context(), thread.ID)
	if err != nil {
		h.storeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread": thread, "messages": messages})
}

// ReplyThreadHandler posts the bidder's answer on a clarification thread and
// re-runs the evaluation over the enriched record. The thread's fate follows
// the re-evaluated bid status.
func (h *Handler) ReplyThreadHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	threadID, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid thread id")
		return
	}
	thread, err := h.Store.GetThread(r.Context(), threadID)
	if err != nil {
		h.storeError(w, err, "thread not found")
		return
	}
	if thread.Status != models.ThreadOpen {
		writeError(w, http.StatusConflict, "thread is closed")
		return
	}
	bid, err := h.Store.GetBid(r.Context(), thread.BidID)
	if err != nil {
		h.storeError(w, err, "bid not found")
		return
	}
	if bid.BidderID != p.UserID {
		writeError(w, http.StatusForbidden, "not your bid")
		return
	}
	if models.BidTerminal(bid.Status) {
		writeError(w, http.StatusConflict, "bid is already decided")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req clarifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	msg := &db.ClarificationMessage{
		ThreadID:   thread.ID,
		SenderID:   p.UserID,
		SenderRole: p.Role,
		Body:       req.Message,
	}
	if err := h.Store.AddMessage(r.Context(), msg); err != nil {
		h.storeError(w, err, "")
		return
	}

	rfq, err := h.Store.GetRFQ(r.Context(), bid.RFQID)
	if err != nil {
		h.storeError(w, err, "RFQ not found")
		return
	}

	transcript := h.threadTranscript(r.Context(), thread.ID)
	h.runEvaluation(r.Context(), rfq, bid, h.bidFileTexts(r.Context(), bid.ID), transcript)

	// Thread resolution tracks where the re-evaluation landed.
	var threadStatus string
	switch bid.Status {
	case models.BidSubmitted:
		threadStatus = models.ThreadResolved
	case models.BidRejected:
		threadStatus = models.ThreadRejected
	default:
		threadStatus = models.ThreadOpen
	}
	if threadStatus != models.ThreadOpen {
		if err := h.Store.UpdateThreadStatus(r.Context(), thread.ID, threadStatus); err != nil {
			h.Log.Warn("thread status update failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, bid)
}

// loadBidWithAccess fetches a bid plus its RFQ and enforces the read rule:
// the bidder, the RFQ owner, or an admin.
func (h *Handler) loadBidWithAccess(w http.ResponseWriter, r *http.Request, p Principal) (*db.Bid, *db.RFQ, bool) {
	id, err := urlID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bid id")
		return nil, nil, false
	}
	bid, err := h.Store.GetBid(r.Context(), id)
	if err != nil {
		h.storeError(w, err, "bid not found")
		return nil, nil, false
	}
	rfq, err := h.Store.GetRFQ(r.Context(), bid.RFQID)
	if err != nil {
		h.storeError(w, err, "RFQ not found")
		return nil, nil, false
	}
	if p.UserID != bid.BidderID && p.UserID != rfq.OwnerID && p.Role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return nil, nil, false
	}
	return bid, rfq, true
}

// bidFileTexts re-reads the stored proposal documents for re-evaluation.
func (h *Handler) bidFileTexts(ctx context.Context, bidID int) []string {
	files, err := h.Store.ListBidFiles(ctx, bidID)
	if err != nil {
		h.Log.Warn("listing bid files failed", zap.Error(err))
		return nil
	}
	var texts []string
	for _, f := range files {
		if text := docstore.ExtractText(f.StoredPath); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

// threadTranscript renders a clarification thread as evaluation input.
func (h *Handler) threadTranscript(ctx context.Context, threadID int) string {
	messages, err := h.Store.ListMessages(ctx, threadID)
	if err != nil {
		h.Log.Warn("listing thread messages failed", zap.Error(err))
		return ""
	}
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.SenderRole, m.Body)
	}
	return b.String()
}

// runEvaluation executes the two-phase evaluation and persists the outcome
// on the bid. Phase 2 only runs after a phase-1 pass; red flags accumulate
// as a union across runs. Evaluation never fails the enclosing request.
func (h *Handler) runEvaluation(ctx context.Context, rfq *db.RFQ, bid *db.Bid, fileTexts []string, transcript string) {
	rfqInput := eval.RFQInput{
		Title:       rfq.Title,
		Scope:       rfq.Scope,
		Criteria:    rfq.EvaluationCriteria,
		Eligibility: rfq.EligibilityRequirements,
		BudgetMin:   rfq.BudgetMin,
		BudgetMax:   rfq.BudgetMax,
		StartDate:   rfq.StartDate,
		EndDate:     rfq.EndDate,
		Weights:     map[string]float64(rfq.EvaluationWeights),
		FileTexts:   h.rfqFileTexts(ctx, rfq.ID),
	}

	bidderParts := append([]string{bid.Qualifications}, fileTexts...)
	if transcript != "" {
		bidderParts = append(bidderParts, "Clarification thread:\n"+transcript)
	}
	bidderText := strings.Join(bidderParts, "\n\n")

	p1 := h.Eval.Phase1(ctx, rfqInput, bidderText)
	bid.Phase1Status = p1.Status
	bid.Phase1Report = db.Phase1Report(p1.Report)
	bid.RedFlags = unionStrings(bid.RedFlags, p1.Report.RedFlags)

	switch p1.Status {
	case models.PhaseReject:
		bid.Status = models.BidRejected
		bid.Phase2Status = models.PhaseNotApplicable
		bid.Phase2Score = nil
		bid.Phase2Breakdown = db.WeightMap{}
	case models.PhaseClarify:
		bid.Status = models.BidNeedsClarification
		bid.Phase2Status = models.PhasePending
	case models.PhasePass:
		// Phase 2 joins qualifications and file texts itself; passing the
		// combined text here would count the documents twice.
		qualText := bid.Qualifications
		if transcript != "" {
			qualText += "\n\nClarification thread:\n" + transcript
		}
		bidInput := eval.BidInput{
			Price:          bid.Price,
			TimelineStart:  bid.TimelineStart,
			TimelineEnd:    bid.TimelineEnd,
			Qualifications: qualText,
			FileTexts:      fileTexts,
		}
		p2 := h.Eval.Phase2(ctx, rfqInput, bidInput)
		bid.Phase2Status = p2.Status
		score := p2.Score
		bid.Phase2Score = &score
		bid.Phase2Breakdown = db.WeightMap(p2.Breakdown)
		bid.RedFlags = unionStrings(bid.RedFlags, p2.RedFlags)

		switch p2.Status {
		case models.PhasePass:
			bid.Status = models.BidSubmitted
		case models.PhaseClarify:
			bid.Status = models.BidNeedsClarification
		default:
			bid.Status = models.BidRejected
		}
	}

	if err := h.Store.UpdateBidEvaluation(ctx, bid); err != nil {
		h.Log.Error("persisting evaluation failed", zap.Int("bid_id", bid.ID), zap.Error(err))
	}
}

func (h *Handler) rfqFileTexts(ctx context.Context, rfqID int) []string {
	files, err := h.Store.ListRFQFiles(ctx, rfqID)
	if err != nil {
		h.Log.Warn("listing rfq files failed", zap.Error(err))
		return nil
	}
	var texts []string
	for _, f := range files {
		if text := docstore.ExtractText(f.StoredPath); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

func capText(s string, limit int) string {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

func unionStrings(base db.StringList, extra []string) db.StringList {
	seen := map[string]bool{}
	out := db.StringList{}
	for _, s := range base {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
