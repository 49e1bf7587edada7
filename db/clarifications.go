package db

import (
	"context"
	"time"

	"rfqmarket/models"
)

type ClarificationThread struct {
	ID         int        `db:"id" json:"id"`
	BidID      int        `db:"bid_id" json:"bidId"`
	OwnerID    int        `db:"owner_id" json:"ownerId"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolvedAt"`
}

type ClarificationMessage struct {
	ID         int       `db:"id" json:"id"`
	ThreadID   int       `db:"thread_id" json:"threadId"`
	SenderID   int       `db:"sender_id" json:"senderId"`
	SenderRole string    `db:"sender_role" json:"senderRole"`
	Body       string    `db:"body" json:"body"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

func (s *Storage) CreateThread(ctx context.Context, t *ClarificationThread) error {
	query := `
        INSERT INTO clarification_threads (bid_id, owner_id, status)
        VALUES ($1, $2, $3)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query, t.BidID, t.OwnerID, models.ThreadOpen).
		Scan(&t.ID, &t.CreatedAt)
}

func (s *Storage) GetThread(ctx context.Context, id int) (*ClarificationThread, error) {
	t := &ClarificationThread{}
	err := s.db.GetContext(ctx, t, `SELECT * FROM clarification_threads WHERE id=$1`, id)
	return t, notFound(err)
}

// GetOpenThreadForBid returns the bid's open thread, ErrNotFound if none.
func (s *Storage) GetOpenThreadForBid(ctx context.Context, bidID int) (*ClarificationThread, error) {
	t := &ClarificationThread{}
	query := `SELECT * FROM clarification_threads WHERE bid_id=$1 AND status=$2 ORDER BY id DESC LIMIT 1`
	err := s.db.GetContext(ctx, t, query, bidID, models.ThreadOpen)
	return t, notFound(err)
}

func (s *Storage) UpdateThreadStatus(ctx context.Context, id int, status string) error {
	query := `
        UPDATE clarification_threads
        SET status=$1, resolved_at = CASE WHEN $1 = 'open' THEN NULL ELSE NOW() END
        WHERE id=$2`
	_, err := s.db.ExecContext(ctx, query, status, id)
	return err
}

func (s *Storage) AddMessage(ctx context.Context, m *ClarificationMessage) error {
	query := `
        INSERT INTO clarification_messages (thread_id, sender_id, sender_role, body)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query, m.ThreadID, m.SenderID, m.SenderRole, m.Body).
		Scan(&m.ID, &m.CreatedAt)
}

func (s *Storage) ListMessages(ctx context.Context, threadID int) ([]ClarificationMessage, error) {
	msgs := []ClarificationMessage{}
	query := `SELECT * FROM clarification_messages WHERE thread_id=$1 ORDER BY created_at ASC, id ASC`
	err := s.db.SelectContext(ctx, &msgs, query, threadID)
	return msgs, err
}
