package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rfqmarket/models"
)

// Sentinel errors the handler layer maps to HTTP statuses.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// uniqueViolation reports a postgres unique-constraint failure.
func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func statusArray(vals []string) any {
	return pq.Array(vals)
}

// JSON column wrappers. Blobs are validated into typed values at the store
// boundary instead of round-tripping as raw strings.

type WeightMap map[string]float64

func (m WeightMap) Value() (driver.Value, error) { return json.Marshal(m) }
func (m *WeightMap) Scan(src any) error          { return scanJSON(src, m) }

type Phase1Report models.Phase1Report

func (r Phase1Report) Value() (driver.Value, error) { return json.Marshal(r) }
func (r *Phase1Report) Scan(src any) error          { return scanJSON(src, r) }

type StringList []string

func (l StringList) Value() (driver.Value, error) { return json.Marshal(l) }
func (l *StringList) Scan(src any) error          { return scanJSON(src, l) }

func scanJSON(src, dst any) error {
	switch t := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(t, dst)
	case string:
		return json.Unmarshal([]byte(t), dst)
	default:
		return errors.New("db: unsupported json column type")
	}
}

// User

type User struct {
	ID           int       `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	Company      string    `db:"company" json:"company"`
	Address      string    `db:"address" json:"address"`
	Avatar       string    `db:"avatar" json:"avatar"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

func (s *Storage) CreateUser(ctx context.Context, u *User) error {
	query := `
        INSERT INTO users (username, password_hash, role, name, email, phone, company, address, avatar)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query,
		u.Username, u.PasswordHash, u.Role, u.Name, u.Email, u.Phone, u.Company, u.Address, u.Avatar).
		Scan(&u.ID, &u.CreatedAt)
	if uniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	err := s.db.GetContext(ctx, u, `SELECT * FROM users WHERE username=$1`, username)
	return u, notFound(err)
}

func (s *Storage) GetUser(ctx context.Context, id int) (*User, error) {
	u := &User{}
	err := s.db.GetContext(ctx, u, `SELECT * FROM users WHERE id=$1`, id)
	return u, notFound(err)
}

func (s *Storage) ListUsers(ctx context.Context) ([]User, error) {
	users := []User{}
	err := s.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY id ASC`)
	return users, err
}

func (s *Storage) UpdateUserProfile(ctx context.Context, u *User) error {
	query := `
        UPDATE users
        SET name=$1, email=$2, phone=$3, company=$4, address=$5, avatar=$6
        WHERE id=$7`
	_, err := s.db.ExecContext(ctx, query, u.Name, u.Email, u.Phone, u.Company, u.Address, u.Avatar, u.ID)
	return err
}

// DeleteUser refuses to remove a user still referenced by RFQs or bids.
func (s *Storage) DeleteUser(ctx context.Context, id int) error {
	var refs int
	query := `
        SELECT (SELECT COUNT(1) FROM rfqs WHERE owner_id=$1)
             + (SELECT COUNT(1) FROM bids WHERE bidder_id=$1)`
	if err := s.db.GetContext(ctx, &refs, query, id); err != nil {
		return err
	}
	if refs > 0 {
		return ErrConflict
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Session

type Session struct {
	Token     string    `db:"token"`
	UserID    int       `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (s *Storage) CreateSession(ctx context.Context, sess *Session) error {
	query := `INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)`
	_, err := s.db.ExecContext(ctx, query, sess.Token, sess.UserID, sess.ExpiresAt)
	return err
}

func (s *Storage) GetSession(ctx context.Context, token string) (*Session, error) {
	sess := &Session{}
	query := `SELECT * FROM sessions WHERE token=$1 AND expires_at > NOW()`
	err := s.db.GetContext(ctx, sess, query, token)
	return sess, notFound(err)
}

func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=$1`, token)
	return err
}
