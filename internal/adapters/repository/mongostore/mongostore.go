// Package mongostore implements the repository contracts on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/okian/civicflow/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	reportsCollection       = "reports"
	usersCollection         = "users"
	notificationsCollection = "notifications"
	auditCollection         = "audit"
)

const (
	connectTimeout = 15 * time.Second
	indexTimeout   = 10 * time.Second
)

// DB owns the client and hands out one store per collection.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
	log    logger.Logger
}

// Connect dials uri, pings, and ensures indexes. Index failures are logged,
// not fatal.
func Connect(ctx context.Context, uri, dbName string, log logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.NewNop()
	}
	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	c, err := mongo.Connect(dctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := c.Ping(dctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	d := &DB{client: c, db: c.Database(dbName), log: log}
	if err := d.createIndexes(ctx); err != nil {
		log.Warn(ctx, "mongo index creation warnings", logger.Error(err))
	}
	log.Info(ctx, "mongo connected",
		logger.String("uri", redactURI(uri)),
		logger.String("db", dbName),
		logger.Duration("elapsed", time.Since(start)))
	return d, nil
}

// Close disconnects the client.
func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Reports returns the report store.
func (d *DB) Reports() *Reports { return &Reports{col: d.db.Collection(reportsCollection)} }

// Users returns the points ledger.
func (d *DB) Users() *Users { return &Users{col: d.db.Collection(usersCollection)} }

// Notifications returns the inbox store.
func (d *DB) Notifications() *Notifications {
	return &Notifications{col: d.db.Collection(notificationsCollection)}
}

// Audit returns the audit log.
func (d *DB) Audit() *Audit { return &Audit{col: d.db.Collection(auditCollection)} }

func (d *DB) createIndexes(ctx context.Context) error {
	ictx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	specs := map[string][]mongo.IndexModel{
		reportsCollection: {
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "department", Value: 1}}},
			{Keys: bson.D{{Key: "submittedBy", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "resolvedAt", Value: 1}}},
		},
		usersCollection: {
			{Keys: bson.D{{Key: "lastMonthlyReset", Value: 1}}},
		},
		notificationsCollection: {
			{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "read", Value: 1}}},
		},
		auditCollection: {
			{Keys: bson.D{{Key: "reportId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}

	var errs []string
	for col, models := range specs {
		if _, err := d.db.Collection(col).Indexes().CreateMany(ictx, models); err != nil {
			errs = append(errs, col+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func redactURI(raw string) string {
	if raw == "" || !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.UserPassword("****", "****")
	return u.String()
}

func skipFor(page, size int) int64 {
	if page < 1 {
		page = 1
	}
	return int64((page - 1) * size)
}
