// Package push delivers best-effort device notifications.
package push

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/fcm/v1"
	"google.golang.org/api/option"

	"github.com/okian/civicflow/pkg/logger"
)

// ErrNoToken is returned when the recipient has no registered device.
var ErrNoToken = errors.New("no device token")

// Message is one device notification.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers a push message. Implementations never retry.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) Send(context.Context, Message) error { return nil }

// FCM sends through the Firebase Cloud Messaging v1 API.
type FCM struct {
	svc     *fcm.Service
	project string
	log     logger.Logger
}

// NewFCM builds an FCM sender for projectID. opts are passed to the API
// client; callers normally supply option.WithCredentialsFile.
func NewFCM(ctx context.Context, projectID string, log logger.Logger, opts ...option.ClientOption) (*FCM, error) {
	if projectID == "" {
		return nil, errors.New("fcm project id is empty")
	}
	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create fcm service: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &FCM{svc: svc, project: projectID, log: log}, nil
}

func (f *FCM) Send(ctx context.Context, m Message) error {
	if m.Token == "" {
		return ErrNoToken
	}
	req := &fcm.SendMessageRequest{
		Message: &fcm.Message{
			Token: m.Token,
			Notification: &fcm.Notification{
				Title: m.Title,
				Body:  m.Body,
			},
			Data: m.Data,
		},
	}
	resp, err := f.svc.Projects.Messages.Send("projects/"+f.project, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	f.log.Debug(ctx, "push sent", logger.String("messageId", resp.Name))
	return nil
}
