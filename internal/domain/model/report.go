// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"slices"
	"time"
)

// Status is a report lifecycle state.
type Status string

// Lifecycle states. DELETED is terminal and reachable from any other state.
const (
	StatusSubmitted    Status = "SUBMITTED"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResolved     Status = "RESOLVED"
	StatusDeleted      Status = "DELETED"
)

// Defaults applied to a freshly submitted report until classification lands.
const (
	DefaultTitle      = "Processing..."
	DefaultDepartment = "Processing"
	DefaultSeverity   = "MEDIUM"

	// NoTitle is what the classifier returns when it could not produce one.
	NoTitle = "No title"
)

// Departments known to the classifier.
var Departments = []string{ //nolint:gochecknoglobals // fixed catalogue
	"Sanitation and Waste Management",
	"Roads and Transport",
	"Electricity and Streetlights",
	"Water Supply and Drainage",
	"Public Health",
	"Environment",
	"Public Safety",
}

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusAcknowledged, StatusResolved, StatusDeleted:
		return true
	}
	return false
}

// Rank orders the forward states. DELETED sits outside the order and ranks -1.
func (s Status) Rank() int {
	switch s {
	case StatusSubmitted:
		return 0
	case StatusAcknowledged:
		return 1
	case StatusResolved:
		return 2
	}
	return -1
}

// Location is a GeoJSON point. Coordinates are [lng, lat].
type Location struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

// NewPoint validates lat/lng and builds a GeoJSON point.
func NewPoint(lat, lng float64) (Location, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Location{}, fmt.Errorf("%w: coordinates out of range (lat=%v, lng=%v)", ErrInvalidInput, lat, lng)
	}
	return Location{Type: "Point", Coordinates: []float64{lng, lat}}, nil
}

// Lat returns the latitude, or 0 for an empty point.
func (l Location) Lat() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[1]
}

// Lng returns the longitude, or 0 for an empty point.
func (l Location) Lng() float64 {
	if len(l.Coordinates) < 2 {
		return 0
	}
	return l.Coordinates[0]
}

// Report is a citizen-submitted civic issue. The Report Store is its only writer.
type Report struct {
	ID          string   `json:"id" bson:"_id"`
	Title       string   `json:"title" bson:"title"`
	Description string   `json:"description" bson:"description"`
	Location    Location `json:"location" bson:"location"`
	Address     string   `json:"address" bson:"address"`
	Department  string   `json:"department" bson:"department"`
	Severity    string   `json:"severity" bson:"severity"`
	Status      Status   `json:"status" bson:"status"`
	SubmittedBy string   `json:"submittedBy" bson:"submittedBy"`
	MediaRefs   []string `json:"mediaRefs,omitempty" bson:"mediaRefs,omitempty"`

	Upvotes   int      `json:"upvotes" bson:"upvotes"`
	UpvotedBy []string `json:"upvotedBy" bson:"upvotedBy"`

	Classified   bool     `json:"classified" bson:"classified"`
	MLDepartment string   `json:"mlDepartment,omitempty" bson:"mlDepartment,omitempty"`
	MLSeverity   string   `json:"mlSeverity,omitempty" bson:"mlSeverity,omitempty"`
	MLConfidence float64  `json:"mlConfidence,omitempty" bson:"mlConfidence,omitempty"`
	MLTitle      string   `json:"mlTitle,omitempty" bson:"mlTitle,omitempty"`
	Conflicts    []string `json:"conflicts,omitempty" bson:"conflicts,omitempty"`

	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty" bson:"acknowledgedAt,omitempty"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty" bson:"acknowledgedBy,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
	ResolvedBy     string     `json:"resolvedBy,omitempty" bson:"resolvedBy,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// NewReport builds a SUBMITTED report carrying the pre-classification defaults.
func NewReport(id, description, address, submittedBy string, loc Location, mediaRefs []string, now time.Time) *Report {
	return &Report{
		ID:          id,
		Title:       DefaultTitle,
		Description: description,
		Location:    loc,
		Address:     address,
		Department:  DefaultDepartment,
		Severity:    DefaultSeverity,
		Status:      StatusSubmitted,
		SubmittedBy: submittedBy,
		MediaRefs:   slices.Clone(mediaRefs),
		UpvotedBy:   []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy so callers never share slices with a store.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	c.Location.Coordinates = slices.Clone(r.Location.Coordinates)
	c.MediaRefs = slices.Clone(r.MediaRefs)
	c.UpvotedBy = slices.Clone(r.UpvotedBy)
	c.Conflicts = slices.Clone(r.Conflicts)
	if r.AcknowledgedAt != nil {
		t := *r.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// HasUpvoted reports whether actor is in the upvoter set.
func (r *Report) HasUpvoted(actor string) bool {
	return slices.Contains(r.UpvotedBy, actor)
}

// PrimaryMedia returns the first media reference, or "".
func (r *Report) PrimaryMedia() string {
	if len(r.MediaRefs) == 0 {
		return ""
	}
	return r.MediaRefs[0]
}

// ClassificationResult is what the external classifier posts back.
type ClassificationResult struct {
	Department string   `json:"department"`
	Severity   string   `json:"severity"`
	Confidence float64  `json:"confidence"`
	Title      string   `json:"title,omitempty"`
	Conflicts  []string `json:"conflicts,omitempty"`
}

// UsableTitle reports whether the classifier produced a title worth keeping.
func (c ClassificationResult) UsableTitle() bool {
	return c.Title != "" && c.Title != NoTitle
}

// Apply performs the field-only classification merge on r. Status and the
// lifecycle timestamps are never touched.
func (c ClassificationResult) Apply(r *Report) {
	r.Department = c.Department
	r.Severity = c.Severity
	r.MLDepartment = c.Department
	r.MLSeverity = c.Severity
	r.MLConfidence = c.Confidence
	r.Classified = true
	if c.UsableTitle() {
		r.Title = c.Title
		r.MLTitle = c.Title
	}
	if len(c.Conflicts) > 0 {
		r.Conflicts = slices.Clone(c.Conflicts)
	}
}

// ReportFilter narrows list queries. Zero values mean "any".
type ReportFilter struct {
	Status      Status
	Department  string
	Severity    string
	SubmittedBy string
}

// ReportStats summarizes the report corpus.
type ReportStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Resolved int64 `json:"resolved"`
}
