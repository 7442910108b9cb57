// Package types contains request and response shapes shared by the service
// and its HTTP adapter.
package types

import "github.com/okian/civicflow/internal/domain/model"

// SubmitReport carries a new citizen report.
type SubmitReport struct {
	Description string   `json:"description"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Address     string   `json:"address"`
	MediaRefs   []string `json:"mediaRefs,omitempty"`
	SubmittedBy string   `json:"-"`
}

// ClassificationWebhook is the payload the classifier posts when it finishes.
type ClassificationWebhook struct {
	ReportID       string                     `json:"reportId"`
	Classification model.ClassificationResult `json:"classification"`
}

// UpvoteResult is the state after a toggle.
type UpvoteResult struct {
	Upvotes int  `json:"upvotes"`
	Upvoted bool `json:"upvoted"`
}

// ReportPage is one page of a list query.
type ReportPage struct {
	Items []*model.Report `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// Inbox is one page of a user's notifications, newest first.
type Inbox struct {
	Items       []model.Notification `json:"items"`
	UnreadCount int64                `json:"unreadCount"`
	Page        int                  `json:"page"`
	Size        int                  `json:"size"`
}

// LeaderboardEntry represents a monthly leaderboard row.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"userId"`
	MonthlyPoints int64  `json:"monthlyPoints"`
	Badge         string `json:"badge"`
}

// UserStanding is a user's points with the derived badge.
type UserStanding struct {
	UserID         string `json:"userId"`
	LifetimePoints int64  `json:"lifetimePoints"`
	MonthlyPoints  int64  `json:"monthlyPoints"`
	Badge          string `json:"badge"`
}

// QueueStatus reports the classification backlog.
type QueueStatus struct {
	Mode        string `json:"mode"`
	QueueLength int64  `json:"queueLength"`
}

// Ack is the response to a deletion.
type Ack struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
