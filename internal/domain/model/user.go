package model

import "time"

// User is a citizen's standing in the points ledger. Badge is not stored; it
// is derived from LifetimePoints whenever it is read.
type User struct {
	ID               string    `json:"id" bson:"_id"`
	LifetimePoints   int64     `json:"lifetimePoints" bson:"lifetimePoints"`
	MonthlyPoints    int64     `json:"monthlyPoints" bson:"monthlyPoints"`
	LastMonthlyReset time.Time `json:"lastMonthlyReset" bson:"lastMonthlyReset"`
	DeviceToken      string    `json:"-" bson:"deviceToken,omitempty"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt" bson:"updatedAt"`
}

// PointsDelta is a single credit to one user.
type PointsDelta struct {
	UserID   string
	Lifetime int64
	Monthly  int64
}
