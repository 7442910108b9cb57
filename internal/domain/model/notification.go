package model

import "time"

// NotificationType classifies inbox rows.
type NotificationType string

// Notification types written by the lifecycle.
const (
	NotificationAcknowledgment NotificationType = "acknowledgment"
	NotificationStatusUpdate   NotificationType = "status_update"
)

// Notification is one durable inbox row.
type Notification struct {
	ID          string           `json:"id" bson:"_id"`
	RecipientID string           `json:"recipientId" bson:"recipientId"`
	ReportID    string           `json:"reportId" bson:"reportId"`
	Title       string           `json:"title" bson:"title"`
	Message     string           `json:"message" bson:"message"`
	Type        NotificationType `json:"type" bson:"type"`
	Read        bool             `json:"read" bson:"read"`
	CreatedAt   time.Time        `json:"createdAt" bson:"createdAt"`
}
