package db

import (
	"context"
	"time"

	"rfqmarket/models"
)

type Bid struct {
	ID              int          `db:"id" json:"id"`
	RFQID           int          `db:"rfq_id" json:"rfqId"`
	BidderID        int          `db:"bidder_id" json:"bidderId"`
	Price           float64      `db:"price" json:"price"`
	TimelineStart   *time.Time   `db:"timeline_start" json:"timelineStart"`
	TimelineEnd     *time.Time   `db:"timeline_end" json:"timelineEnd"`
	Qualifications  string       `db:"qualifications" json:"qualifications"`
	DocumentHash    string       `db:"document_hash" json:"documentHash"`
	OnchainID       *int64       `db:"onchain_id" json:"onchainId"`
	TxHash          *string      `db:"tx_hash" json:"txHash"`
	Status          string       `db:"status" json:"status"`
	Phase1Status    string       `db:"phase1_status" json:"phase1Status"`
	Phase1Report    Phase1Report `db:"phase1_report" json:"phase1Report"`
	Phase2Status    string       `db:"phase2_status" json:"phase2Status"`
	Phase2Score     *float64     `db:"phase2_score" json:"phase2Score"`
	Phase2Breakdown WeightMap    `db:"phase2_breakdown" json:"phase2Breakdown"`
	RedFlags        StringList   `db:"red_flags" json:"redFlags"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
}

func (s *Storage) CreateBid(ctx context.Context, b *Bid) error {
	query := `
        INSERT INTO bids
            (rfq_id, bidder_id, price, timeline_start, timeline_end, qualifications,
             document_hash, onchain_id, tx_hash, status, phase1_status, phase1_report,
             phase2_status, phase2_breakdown, red_flags)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query,
		b.RFQID, b.BidderID, b.Price, b.TimelineStart, b.TimelineEnd, b.Qualifications,
		b.DocumentHash, b.OnchainID, b.TxHash, models.BidSubmitted,
		models.PhasePending, Phase1Report{}, models.PhasePending, WeightMap{}, StringList{}).
		Scan(&b.ID, &b.CreatedAt)
}

func (s *Storage) GetBid(ctx context.Context, id int) (*Bid, error) {
	b := &Bid{}
	err := s.db.GetContext(ctx, b, `SELECT * FROM bids WHERE id=$1`, id)
	return b, notFound(err)
}

// UpdateBidEvaluation persists the evaluation outcome: phase statuses,
// reports, score, the derived bid status, and the union-accumulated red
// flags. Bids already in a terminal status are left untouched and the
// call returns ErrConflict.
func (s *Storage) UpdateBidEvaluation(ctx context.Context, b *Bid) error {
	query := `
        UPDATE bids
        SET status=$1, phase1_status=$2, phase1_report=$3,
            phase2_status=$4, phase2_score=$5, phase2_breakdown=$6, red_flags=$7
        WHERE id=$8 AND status != ALL($9)`
	res, err := s.db.ExecContext(ctx, query,
		b.Status, b.Phase1Status, b.Phase1Report,
		b.Phase2Status, b.Phase2Score, b.Phase2Breakdown, b.RedFlags, b.ID,
		statusArray([]string{models.BidSelected, models.BidRejected}))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateBidStatusIf transitions a bid's status only when it currently holds
// the expected value. Returns ErrConflict when the guard fails.
func (s *Storage) UpdateBidStatusIf(ctx context.Context, bidID int, from []string, to string) error {
	query := `UPDATE bids SET status=$1 WHERE id=$2 AND status = ANY($3)`
	res, err := s.db.ExecContext(ctx, query, to, bidID, statusArray(from))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Storage) ListBidsForRFQ(ctx context.Context, rfqID int) ([]Bid, error) {
	bids := []Bid{}
	query := `SELECT * FROM bids WHERE rfq_id=$1 ORDER BY created_at DESC`
	err := s.db.SelectContext(ctx, &bids, query, rfqID)
	return bids, err
}

func (s *Storage) ListBidsForRFQByBidder(ctx context.Context, rfqID, bidderID int) ([]Bid, error) {
	bids := []Bid{}
	query := `SELECT * FROM bids WHERE rfq_id=$1 AND bidder_id=$2 ORDER BY created_at DESC`
	err := s.db.SelectContext(ctx, &bids, query, rfqID, bidderID)
	return bids, err
}

func (s *Storage) ListBidsByBidder(ctx context.Context, bidderID int) ([]Bid, error) {
	bids := []Bid{}
	query := `SELECT * FROM bids WHERE bidder_id=$1 ORDER BY created_at DESC`
	err := s.db.SelectContext(ctx, &bids, query, bidderID)
	return bids, err
}

// ListCandidates returns bids that cleared both phases, best score first.
func (s *Storage) ListCandidates(ctx context.Context, rfqID int) ([]Bid, error) {
	bids := []Bid{}
	query := `
        SELECT * FROM bids
        WHERE rfq_id=$1 AND phase1_status=$2 AND phase2_status=$2
        ORDER BY phase2_score DESC NULLS LAST`
	err := s.db.SelectContext(ctx, &bids, query, rfqID, models.PhasePass)
	return bids, err
}

// BidFile

type BidFile struct {
	ID         int       `db:"id" json:"id"`
	BidID      int       `db:"bid_id" json:"bidId"`
	Filename   string    `db:"filename" json:"filename"`
	StoredPath string    `db:"stored_path" json:"-"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploadedAt"`
}

func (s *Storage) AddBidFile(ctx context.Context, f *BidFile) error {
	query := `
        INSERT INTO bid_files (bid_id, filename, stored_path)
        VALUES ($1, $2, $3)
        RETURNING id, uploaded_at`
	return s.db.QueryRowContext(ctx, query, f.BidID, f.Filename, f.StoredPath).
		Scan(&f.ID, &f.UploadedAt)
}

func (s *Storage) ListBidFiles(ctx context.Context, bidID int) ([]BidFile, error) {
	files := []BidFile{}
	err := s.db.SelectContext(ctx, &files, `SELECT * FROM bid_files WHERE bid_id=$1 ORDER BY id ASC`, bidID)
	return files, err
}
