package models

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the lifecycle state of a report. The value on the report is a
// cached projection of the newest history entry; the history ledger is the
// source of truth.
type Status string

// All report lifecycle states.
const (
	StatusPending          Status = "Pending"
	StatusApproved         Status = "Approved"
	StatusAssignedToDept   Status = "AssignedToDept"
	StatusAssignedToWorker Status = "AssignedToWorker"
	StatusInProgress       Status = "InProgress"
	StatusResolved         Status = "Resolved"
	StatusRejected         Status = "Rejected"
)

// TerminalStatuses are the states no operation may move a report out of.
var TerminalStatuses = []Status{StatusResolved, StatusRejected}

// IsTerminal reports whether s is a terminal lifecycle state.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusAssignedToDept,
		StatusAssignedToWorker, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Priority is an ordered escalation rank. Stored as the rank so that
// never-downgrade checks are plain numeric comparisons in filters.
type Priority int32

// Priority ranks, lowest first.
const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "Low",
	PriorityMedium:   "Medium",
	PriorityHigh:     "High",
	PriorityCritical: "Critical",
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return fmt.Sprintf("Priority(%d)", int32(p))
}

// MarshalJSON renders the priority by name so API clients keep seeing
// "Low".."Critical" while the store keeps the ordered rank.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts a priority name.
func (p *Priority) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParsePriority(name)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePriority converts a priority name into its rank.
func ParsePriority(name string) (Priority, error) {
	for rank, n := range priorityNames {
		if n == name {
			return rank, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q: %w", name, ErrInvalidInput)
}

// ActorKind distinguishes system-initiated history entries from human ones.
type ActorKind string

// Actor kinds.
const (
	ActorSystem ActorKind = "system"
	ActorUser   ActorKind = "user"
)

// Actor identifies who (or what) produced a history entry.
type Actor struct {
	Kind   ActorKind           `bson:"kind" json:"kind"`
	UserID *primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"`
}

// SystemActor returns the actor for automated mutations.
func SystemActor() Actor {
	return Actor{Kind: ActorSystem}
}

// UserActor returns the actor for a human-initiated mutation.
func UserActor(id primitive.ObjectID) Actor {
	return Actor{Kind: ActorUser, UserID: &id}
}

// HistoryEntry is one record in a report's append-only ledger.
type HistoryEntry struct {
	Status        Status             `bson:"status" json:"status"`
	Actor         Actor              `bson:"actor" json:"actor"`
	Timestamp     primitive.DateTime `bson:"timestamp" json:"timestamp"`
	Notes         string             `bson:"notes,omitempty" json:"notes,omitempty"`
	ProofImageURL string             `bson:"proofImageUrl,omitempty" json:"proofImageUrl,omitempty"`
}

// GeoPoint is a GeoJSON point, coordinates ordered (lon, lat).
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewGeoPoint builds a GeoJSON point from a lon/lat pair.
func NewGeoPoint(lon, lat float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

// Address is the human-readable location attached to a report.
type Address struct {
	Street     string `bson:"street,omitempty" json:"street,omitempty"`
	City       string `bson:"city,omitempty" json:"city,omitempty"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postalCode,omitempty" json:"postalCode,omitempty"`
	Country    string `bson:"country,omitempty" json:"country,omitempty"`
}

// CategoryUnclassified is the sentinel category written when auto-routing
// fails for both the submitted and the predicted category.
const CategoryUnclassified = "Unclassified"

// Report represents a citizen-submitted issue report
type Report struct {
	ID                  primitive.ObjectID   `bson:"_id,omitempty" json:"id,omitempty"`
	SubmittedBy         *primitive.ObjectID  `bson:"submittedBy,omitempty" json:"submittedBy,omitempty"`
	IsAnonymous         bool                 `bson:"isAnonymous" json:"isAnonymous"`
	ClientRef           string               `bson:"clientRef,omitempty" json:"clientRef,omitempty"`
	Description         string               `bson:"description" json:"description"`
	Location            GeoPoint             `bson:"location" json:"location"`
	Address             Address              `bson:"address,omitempty" json:"address,omitempty"`
	ImageURL            string               `bson:"imageUrl" json:"imageUrl"`
	Category            string               `bson:"category" json:"category"`
	Status              Status               `bson:"status" json:"status"`
	Priority            Priority             `bson:"priority" json:"priority"`
	Upvotes             int                  `bson:"upvotes" json:"upvotes"`
	UpvotedBy           []primitive.ObjectID `bson:"upvotedBy,omitempty" json:"upvotedBy,omitempty"`
	AssignedDepartment  *primitive.ObjectID  `bson:"assignedDepartment,omitempty" json:"assignedDepartment,omitempty"`
	Zone                *primitive.ObjectID  `bson:"zone,omitempty" json:"zone,omitempty"`
	AssignedWorker      *primitive.ObjectID  `bson:"assignedWorker,omitempty" json:"assignedWorker,omitempty"`
	FundsAllocated      float64              `bson:"fundsAllocated" json:"fundsAllocated"`
	RejectionReason     string               `bson:"rejectionReason,omitempty" json:"rejectionReason,omitempty"`
	History             []HistoryEntry       `bson:"history" json:"history"`
	AIAnalyzed          bool                 `bson:"aiAnalyzed" json:"aiAnalyzed"`
	AIPredictedCategory string               `bson:"aiPredictedCategory,omitempty" json:"aiPredictedCategory,omitempty"`
	AISource            string               `bson:"aiSource,omitempty" json:"aiSource,omitempty"`
	AIConfidence        float64              `bson:"aiConfidence,omitempty" json:"aiConfidence,omitempty"`
	CreatedAt           primitive.DateTime   `bson:"createdAt" json:"createdAt"`
	UpdatedAt           primitive.DateTime   `bson:"updatedAt" json:"updatedAt"`
}
