package handlers

import (
	"context"

	"rfqmarket/db"
)

// StorageInterface is the slice of the storage layer the handlers use.
type StorageInterface interface {
	CreateUser(ctx context.Context, u *db.User) error
	GetUserByUsername(ctx context.Context, username string) (*db.User, error)
	GetUser(ctx context.Context, id int) (*db.User, error)
	ListUsers(ctx context.Context) ([]db.User, error)
	UpdateUserProfile(ctx context.Context, u *db.User) error
	DeleteUser(ctx context.Context, id int) error

	CreateSession(ctx context.Context, sess *db.Session) error
	GetSession(ctx context.Context, token string) (*db.Session, error)
	DeleteSession(ctx context.Context, token string) error

	CreateRFQ(ctx context.Context, r *db.RFQ) error
	GetRFQ(ctx context.Context, id int) (*db.RFQ, error)
	ListOpenRFQs(ctx context.Context) ([]db.RFQ, error)
	ListRecentOpenRFQs(ctx context.Context, limit int) ([]db.RFQ, error)
	ListRFQsByOwner(ctx context.Context, ownerID int) ([]db.RFQ, error)
	AddRFQFile(ctx context.Context, f *db.RFQFile) error
	ListRFQFiles(ctx context.Context, rfqID int) ([]db.RFQFile, error)
	GetRFQFile(ctx context.Context, id int) (*db.RFQFile, error)

	CreateBid(ctx context.Context, b *db.Bid) error
	GetBid(ctx context.Context, id int) (*db.Bid, error)
	UpdateBidEvaluation(ctx context.Context, b *db.Bid) error
	UpdateBidStatusIf(ctx context.Context, bidID int, from []string, to string) error
	ListBidsForRFQ(ctx context.Context, rfqID int) ([]db.Bid, error)
	ListBidsForRFQByBidder(ctx context.Context, rfqID, bidderID int) ([]db.Bid, error)
	ListBidsByBidder(ctx context.Context, bidderID int) ([]db.Bid, error)
	ListCandidates(ctx context.Context, rfqID int) ([]db.Bid, error)
	AddBidFile(ctx context.Context, f *db.BidFile) error
	ListBidFiles(ctx context.Context, bidID int) ([]db.BidFile, error)

	CreateThread(ctx context.Context, t *db.ClarificationThread) error
	GetThread(ctx context.Context, id int) (*db.ClarificationThread, error)
	GetOpenThreadForBid(ctx context.Context, bidID int) (*db.ClarificationThread, error)
	UpdateThreadStatus(ctx context.Context, id int, status string) error
	AddMessage(ctx context.Context, m *db.ClarificationMessage) error
	ListMessages(ctx context.Context, threadID int) ([]db.ClarificationMessage, error)

	SelectWinner(ctx context.Context, rfqID, bidID int) (*db.Project, error)
	GetProject(ctx context.Context, id int) (*db.Project, error)
	ListProjects(ctx context.Context) ([]db.Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID int) ([]db.Project, error)
	ListProjectsByBidder(ctx context.Context, bidderID int) ([]db.Project, error)

	CreateMilestone(ctx context.Context, m *db.Milestone) error
	GetMilestone(ctx context.Context, id int) (*db.Milestone, error)
	ListMilestones(ctx context.Context, projectID int) ([]db.Milestone, error)
	TransitionMilestone(ctx context.Context, id int, from []string, to string, docHash, comment *string) error
}
