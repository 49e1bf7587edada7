package db

import (
	"context"
	"time"

	"rfqmarket/models"
)

type Project struct {
	ID          int       `db:"id" json:"id"`
	RFQID       int       `db:"rfq_id" json:"rfqId"`
	WinnerBidID int       `db:"winner_bid_id" json:"winnerBidId"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// SelectWinner closes the RFQ, marks the bid selected, and creates the
// project in one transaction. The conditional RFQ update serializes racing
// selections: the second caller sees zero rows affected and gets
// ErrConflict, and UNIQUE(projects.rfq_id) backstops the invariant.
func (s *Storage) SelectWinner(ctx context.Context, rfqID, bidID int) (*Project, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE rfqs SET status=$1 WHERE id=$2 AND status=$3`,
		models.RFQClosed, rfqID, models.RFQOpen)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrConflict
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE bids SET status=$1 WHERE id=$2 AND rfq_id=$3 AND status != $4`,
		models.BidSelected, bidID, rfqID, models.BidRejected)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrConflict
	}

	// A selected bid takes no further clarification; close its open thread.
	_, err = tx.ExecContext(ctx,
		`UPDATE clarification_threads
         SET status=$1, resolved_at=NOW()
         WHERE bid_id=$2 AND status=$3`,
		models.ThreadResolved, bidID, models.ThreadOpen)
	if err != nil {
		return nil, err
	}

	p := &Project{RFQID: rfqID, WinnerBidID: bidID, Status: "in_progress"}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO projects (rfq_id, winner_bid_id, status) VALUES ($1, $2, $3) RETURNING id, created_at`,
		p.RFQID, p.WinnerBidID, p.Status).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if uniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Storage) GetProject(ctx context.Context, id int) (*Project, error) {
	p := &Project{}
	err := s.db.GetContext(ctx, p, `SELECT * FROM projects WHERE id=$1`, id)
	return p, notFound(err)
}

func (s *Storage) ListProjects(ctx context.Context) ([]Project, error) {
	projects := []Project{}
	err := s.db.SelectContext(ctx, &projects, `SELECT * FROM projects ORDER BY created_at DESC`)
	return projects, err
}

func (s *Storage) ListProjectsByOwner(ctx context.Context, ownerID int) ([]Project, error) {
	projects := []Project{}
	query := `
        SELECT p.* FROM projects p
        JOIN rfqs r ON p.rfq_id = r.id
        WHERE r.owner_id = $1
        ORDER BY p.created_at DESC`
	err := s.db.SelectContext(ctx, &projects, query, ownerID)
	return projects, err
}

func (s *Storage) ListProjectsByBidder(ctx context.Context, bidderID int) ([]Project, error) {
	projects := []Project{}
	query := `
        SELECT p.* FROM projects p
        JOIN bids b ON p.winner_bid_id = b.id
        WHERE b.bidder_id = $1
        ORDER BY p.created_at DESC`
	err := s.db.SelectContext(ctx, &projects, query, bidderID)
	return projects, err
}

// Milestone

type Milestone struct {
	ID               int        `db:"id" json:"id"`
	ProjectID        int        `db:"project_id" json:"projectId"`
	Description      string     `db:"description" json:"description"`
	DueDate          *time.Time `db:"due_date" json:"dueDate"`
	DocumentHash     *string    `db:"document_hash" json:"documentHash"`
	Status           string     `db:"status" json:"status"`
	RejectionComment *string    `db:"rejection_comment" json:"rejectionComment"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
}

func (s *Storage) CreateMilestone(ctx context.Context, m *Milestone) error {
	query := `
        INSERT INTO milestones (project_id, description, due_date, document_hash, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query,
		m.ProjectID, m.Description, m.DueDate, m.DocumentHash, models.MilestonePending).
		Scan(&m.ID, &m.CreatedAt)
}

func (s *Storage) GetMilestone(ctx context.Context, id int) (*Milestone, error) {
	m := &Milestone{}
	err := s.db.GetContext(ctx, m, `SELECT * FROM milestones WHERE id=$1`, id)
	return m, notFound(err)
}

func (s *Storage) ListMilestones(ctx context.Context, projectID int) ([]Milestone, error) {
	milestones := []Milestone{}
	query := `SELECT * FROM milestones WHERE project_id=$1 ORDER BY due_date ASC NULLS LAST, id ASC`
	err := s.db.SelectContext(ctx, &milestones, query, projectID)
	return milestones, err
}

// TransitionMilestone moves a milestone between states only when it
// currently sits in one of the allowed source states. The conditional
// update is the state machine: an illegal transition affects zero rows and
// returns ErrConflict.
func (s *Storage) TransitionMilestone(ctx context.Context, id int, from []string, to string, docHash, comment *string) error {
	query := `
        UPDATE milestones
        SET status=$1,
            document_hash = COALESCE($2, document_hash),
            rejection_comment = $3
        WHERE id=$4 AND status = ANY($5)`
	res, err := s.db.ExecContext(ctx, query, to, docHash, comment, id, statusArray(from))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}
