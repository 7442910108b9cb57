// Package api is the thin HTTP adapter over the report service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/civicflow/internal/adapters/http/swagger"
	"github.com/okian/civicflow/internal/domain/model"
	"github.com/okian/civicflow/internal/domain/types"
	"github.com/okian/civicflow/pkg/logger"
)

const (
	defaultMaxLeaderboardLimit = 100
	requestTimeout             = 30 * time.Second
)

// ReportDependencies covers report actions and reads.
type ReportDependencies interface {
	Submit(ctx context.Context, req types.SubmitReport) (*model.Report, error)
	GetReport(ctx context.Context, id string) (*model.Report, error)
	ListReports(ctx context.Context, f model.ReportFilter, page, limit int) (types.ReportPage, error)
	Nearby(ctx context.Context, lat, lng, radius float64, department string) ([]*model.Report, error)
	InBounds(ctx context.Context, swLat, swLng, neLat, neLng float64) ([]*model.Report, error)
	Stats(ctx context.Context) (model.ReportStats, error)
	AuditTrail(ctx context.Context, reportID string) ([]model.AuditEntry, error)
	Acknowledge(ctx context.Context, id, actor string) (*model.Report, error)
	Resolve(ctx context.Context, id, actor string, isAdmin bool) (*model.Report, error)
	Delete(ctx context.Context, id, actor string) (types.Ack, error)
	ToggleUpvote(ctx context.Context, id, actor string) (types.UpvoteResult, error)
}

// ClassificationDependencies covers the classifier webhook and backlog.
type ClassificationDependencies interface {
	MergeClassification(ctx context.Context, id string, res model.ClassificationResult) (*model.Report, error)
	QueueStatus(ctx context.Context) (types.QueueStatus, error)
}

// NotificationDependencies covers the inbox and device registration.
type NotificationDependencies interface {
	Inbox(ctx context.Context, recipientID string, page, size int) (types.Inbox, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	RegisterDeviceToken(ctx context.Context, userID, token string) error
}

// LeaderboardDependencies covers points and ranking reads.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error)
	Standing(ctx context.Context, userID string) (types.UserStanding, error)
}

// Dependencies is everything the handlers need. *service.Service satisfies it.
type Dependencies interface {
	ReportDependencies
	ClassificationDependencies
	NotificationDependencies
	LeaderboardDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler         *HealthHandler
	reportsHandler        *ReportsHandler
	classificationHandler *ClassificationHandler
	notificationsHandler  *NotificationsHandler
	leaderboardHandler    *LeaderboardHandler
	live                  http.Handler
	log                   logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLiveHandler mounts the live broadcast endpoint at /ws.
func WithLiveHandler(h http.Handler) Option {
	return func(s *Server) { s.live = h }
}

// WithMaxLeaderboardLimit caps the leaderboard limit parameter.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.leaderboardHandler.maxLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:         NewHealthHandler(),
		reportsHandler:        NewReportsHandler(deps),
		classificationHandler: NewClassificationHandler(deps),
		notificationsHandler:  NewNotificationsHandler(deps),
		leaderboardHandler:    NewLeaderboardHandler(deps, defaultMaxLeaderboardLimit),
		log:                   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Handle("/metrics", s.healthHandler.MetricsHandler())
	if s.live != nil {
		r.Handle("/ws", s.live)
	}
	swagger.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/reports", func(r chi.Router) {
			h := s.reportsHandler
			r.Post("/", h.HandleSubmit)
			r.Get("/", h.HandleList)
			r.Get("/nearby", h.HandleNearby)
			r.Get("/bounds", h.HandleBounds)
			r.Get("/stats", h.HandleStats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.HandleGet)
				r.Delete("/", h.HandleDelete)
				r.Get("/audit", h.HandleAudit)
				r.Post("/acknowledge", h.HandleAcknowledge)
				r.Post("/resolve", h.HandleResolve)
				r.Post("/upvote", h.HandleUpvote)
			})
		})

		r.Post("/webhooks/classification", s.classificationHandler.HandleWebhook)
		r.Get("/classification/queue", s.classificationHandler.HandleQueueStatus)

		r.Route("/notifications", func(r chi.Router) {
			h := s.notificationsHandler
			r.Get("/", h.HandleInbox)
			r.Post("/read-all", h.HandleMarkAllRead)
			r.Post("/{id}/read", h.HandleMarkRead)
		})
		r.Put("/users/me/device-token", s.notificationsHandler.HandleDeviceToken)
		r.Get("/users/me", s.leaderboardHandler.HandleStanding)
		r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"code":"internal_error","message":"encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return sonic.ConfigDefault.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
