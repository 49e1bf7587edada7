package db

import (
	"context"
	"time"

	"rfqmarket/models"
)

type RFQ struct {
	ID                      int        `db:"id" json:"id"`
	OwnerID                 int        `db:"owner_id" json:"ownerId"`
	Title                   string     `db:"title" json:"title"`
	Scope                   string     `db:"scope" json:"scope"`
	Deadline                *time.Time `db:"deadline" json:"deadline"`
	EvaluationCriteria      string     `db:"evaluation_criteria" json:"evaluationCriteria"`
	EligibilityRequirements string     `db:"eligibility_requirements" json:"eligibilityRequirements"`
	Category                string     `db:"category" json:"category"`
	BudgetMin               float64    `db:"budget_min" json:"budgetMin"`
	BudgetMax               float64    `db:"budget_max" json:"budgetMax"`
	PublishDate             *time.Time `db:"publish_date" json:"publishDate"`
	ClarificationDeadline   *time.Time `db:"clarification_deadline" json:"clarificationDeadline"`
	StartDate               *time.Time `db:"start_date" json:"startDate"`
	EndDate                 *time.Time `db:"end_date" json:"endDate"`
	Location                string     `db:"location" json:"location"`
	EvaluationWeights       WeightMap  `db:"evaluation_weights" json:"evaluationWeights"`
	OnchainID               *int64     `db:"onchain_id" json:"onchainId"`
	TxHash                  *string    `db:"tx_hash" json:"txHash"`
	Status                  string     `db:"status" json:"status"`
	CreatedAt               time.Time  `db:"created_at" json:"createdAt"`
}

func (s *Storage) CreateRFQ(ctx context.Context, r *RFQ) error {
	query := `
        INSERT INTO rfqs
            (owner_id, title, scope, deadline, evaluation_criteria, eligibility_requirements,
             category, budget_min, budget_max, publish_date, clarification_deadline,
             start_date, end_date, location, evaluation_weights, onchain_id, tx_hash, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query,
		r.OwnerID, r.Title, r.Scope, r.Deadline, r.EvaluationCriteria, r.EligibilityRequirements,
		r.Category, r.BudgetMin, r.BudgetMax, r.PublishDate, r.ClarificationDeadline,
		r.StartDate, r.EndDate, r.Location, r.EvaluationWeights, r.OnchainID, r.TxHash, models.RFQOpen).
		Scan(&r.ID, &r.CreatedAt)
}

func (s *Storage) GetRFQ(ctx context.Context, id int) (*RFQ, error) {
	r := &RFQ{}
	err := s.db.GetContext(ctx, r, `SELECT * FROM rfqs WHERE id=$1`, id)
	return r, notFound(err)
}

func (s *Storage) ListOpenRFQs(ctx context.Context) ([]RFQ, error) {
	rfqs := []RFQ{}
	query := `SELECT * FROM rfqs WHERE status=$1 ORDER BY deadline ASC NULLS LAST`
	err := s.db.SelectContext(ctx, &rfqs, query, models.RFQOpen)
	return rfqs, err
}

func (s *Storage) ListRecentOpenRFQs(ctx context.Context, limit int) ([]RFQ, error) {
	rfqs := []RFQ{}
	query := `SELECT * FROM rfqs WHERE status=$1 ORDER BY publish_date DESC NULLS LAST LIMIT $2`
	err := s.db.SelectContext(ctx, &rfqs, query, models.RFQOpen, limit)
	return rfqs, err
}

func (s *Storage) ListRFQsByOwner(ctx context.Context, ownerID int) ([]RFQ, error) {
	rfqs := []RFQ{}
	query := `SELECT * FROM rfqs WHERE owner_id=$1 ORDER BY created_at DESC`
	err := s.db.SelectContext(ctx, &rfqs, query, ownerID)
	return rfqs, err
}

// RFQFile

type RFQFile struct {
	ID         int       `db:"id" json:"id"`
	RFQID      int       `db:"rfq_id" json:"rfqId"`
	Filename   string    `db:"filename" json:"filename"`
	StoredPath string    `db:"stored_path" json:"-"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploadedAt"`
}

func (s *Storage) AddRFQFile(ctx context.Context, f *RFQFile) error {
	query := `
        INSERT INTO rfq_files (rfq_id, filename, stored_path)
        VALUES ($1, $2, $3)
        RETURNING id, uploaded_at`
	return s.db.QueryRowContext(ctx, query, f.RFQID, f.Filename, f.StoredPath).
		Scan(&f.ID, &f.UploadedAt)
}

func (s *Storage) ListRFQFiles(ctx context.Context, rfqID int) ([]RFQFile, error) {
	files := []RFQFile{}
	err := s.db.SelectContext(ctx, &files, `SELECT * FROM rfq_files WHERE rfq_id=$1 ORDER BY id ASC`, rfqID)
	return files, err
}

func (s *Storage) GetRFQFile(ctx context.Context, id int) (*RFQFile, error) {
	f := &RFQFile{}
	err := s.db.GetContext(ctx, f, `SELECT * FROM rfq_files WHERE id=$1`, id)
	return f, notFound(err)
}
