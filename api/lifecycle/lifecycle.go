// Package lifecycle owns the report state machine. Every mutation appends to
// the report's history ledger in the same write that changes the cached
// status, and terminal states are re-checked inside the write filter so a
// concurrent resolve or reject can never be overwritten.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/civicgrid/civic-issue-api/api/autoroute"
	"github.com/civicgrid/civic-issue-api/api/engagement"
	"github.com/civicgrid/civic-issue-api/databases"
	"github.com/civicgrid/civic-issue-api/models"
)

// Realtime event names pushed to connected clients.
const (
	EventReportCreated  = "report:created"
	EventReportAssigned = "report:assignedToWorker"
	EventReportUpdated  = "report:updated"
)

// Notifier delivers best-effort push and email notifications. Failures are
// logged, never surfaced to the caller.
type Notifier interface {
	ReportCreated(ctx context.Context, report *models.Report)
	WorkerAssigned(ctx context.Context, report *models.Report)
	StatusChanged(ctx context.Context, report *models.Report)
}

// Broadcaster fans an event out to realtime subscribers without blocking.
type Broadcaster interface {
	Publish(event string, payload interface{})
}

// Engine executes report lifecycle operations against the report store.
// Notifier and Broadcast may be nil; both are side channels, not part of the
// operation's outcome.
type Engine struct {
	RDB       databases.ReportDatabase
	Router    *autoroute.Resolver
	Ledger    *engagement.Ledger
	Notifier  Notifier
	Broadcast Broadcaster

	now func() time.Time
}

// New creates an Engine. Router and Ledger are required.
func New(rdb databases.ReportDatabase, router *autoroute.Resolver, ledger *engagement.Ledger) *Engine {
	return &Engine{RDB: rdb, Router: router, Ledger: ledger, now: time.Now}
}

// WithClock overrides the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// IntakeInput carries everything a new report is created from.
type IntakeInput struct {
	SubmittedBy         *primitive.ObjectID
	IsAnonymous         bool
	ClientRef           string
	Description         string
	Category            string
	Location            models.GeoPoint
	Address             models.Address
	ImageURL            string
	AIAnalyzed          bool
	AIPredictedCategory string
	AISource            string
	AIConfidence        float64
}

func (in *IntakeInput) validate() error {
	if len(in.Location.Coordinates) < 2 {
		return fmt.Errorf("location coordinates required: %w", models.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Category) == "" {
		return fmt.Errorf("category required: %w", models.ErrInvalidInput)
	}
	if strings.TrimSpace(in.ImageURL) == "" {
		return fmt.Errorf("image required: %w", models.ErrInvalidInput)
	}
	if in.SubmittedBy == nil && !in.IsAnonymous {
		return fmt.Errorf("submitter required for non-anonymous reports: %w", models.ErrInvalidInput)
	}
	return nil
}

// Intake creates a report in Pending with its first history entry and the
// auto-routing outcome already applied, all in a single insert. A non-empty
// clientRef makes the call idempotent per submitter: a retry returns the
// previously created report instead of inserting a duplicate.
func (e *Engine) Intake(ctx context.Context, in IntakeInput) (*models.Report, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if in.ClientRef != "" && in.SubmittedBy != nil {
		existing, err := e.RDB.FindOne(ctx, bson.M{"submittedBy": *in.SubmittedBy, "clientRef": in.ClientRef})
		if err == nil {
			zap.S().Infow("intake deduplicated by client ref", "reportId", existing.ID.Hex(), "clientRef", in.ClientRef)
			return existing, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("check client ref: %w", err)
		}
	}

	if in.Address.Country == "" {
		in.Address.Country = "India"
	}

	now := primitive.NewDateTimeFromTime(e.now())
	report := &models.Report{
		SubmittedBy:         in.SubmittedBy,
		IsAnonymous:         in.IsAnonymous,
		ClientRef:           in.ClientRef,
		Description:         strings.TrimSpace(in.Description),
		Category:            strings.TrimSpace(in.Category),
		Location:            in.Location,
		Address:             in.Address,
		ImageURL:            in.ImageURL,
		Status:              models.StatusPending,
		Priority:            models.PriorityMedium,
		AIAnalyzed:          in.AIAnalyzed,
		AIPredictedCategory: in.AIPredictedCategory,
		AISource:            in.AISource,
		AIConfidence:        in.AIConfidence,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	note, err := e.route(ctx, report)
	if err != nil {
		return nil, err
	}
	report.History = []models.HistoryEntry{{
		Status:    report.Status,
		Actor:     models.SystemActor(),
		Timestamp: now,
		Notes:     note,
	}}

	id, err := e.RDB.InsertOne(ctx, *report)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		report.ID = oid
	}

	if in.SubmittedBy != nil && !in.IsAnonymous {
		if err := e.Ledger.AwardPoints(ctx, *in.SubmittedBy, engagement.ActionNewReport); err != nil {
			zap.S().Errorw("failed to award report points", "error", err, "userId", in.SubmittedBy.Hex())
		}
		if err := e.Ledger.EvaluateBadges(ctx, *in.SubmittedBy); err != nil {
			zap.S().Errorw("failed to evaluate submitter badges", "error", err, "userId", in.SubmittedBy.Hex())
		}
	}

	if e.Notifier != nil {
		e.Notifier.ReportCreated(ctx, report)
	}
	e.publish(EventReportCreated, report)

	zap.S().Infow("report created",
		"reportId", report.ID.Hex(), "category", report.Category, "zone", report.Zone, "department", report.AssignedDepartment)
	return report, nil
}

// route resolves the report's zone and department in place and returns the
// history note describing the outcome. When neither the submitted nor the
// predicted category matches a department, the category collapses to the
// Unclassified sentinel and the original value is preserved in the note.
func (e *Engine) route(ctx context.Context, report *models.Report) (string, error) {
	zone, err := e.Router.ResolveZone(ctx, report.Location)
	if err != nil {
		return "", err
	}
	if zone == nil {
		zap.S().Infow("no zone contains report location", "coordinates", report.Location.Coordinates)
		return "No zone contains the report location. Awaiting manual review.", nil
	}
	report.Zone = &zone.ID

	dept, err := e.Router.ResolveDepartment(ctx, zone.ID, report.Category, report.AIPredictedCategory)
	if err != nil {
		return "", err
	}
	if dept == nil {
		original := report.Category
		report.Category = models.CategoryUnclassified
		return fmt.Sprintf("Automatic routing failed. Original category was %q. Awaiting manual review.", original), nil
	}

	report.AssignedDepartment = &dept.ID
	report.Status = models.StatusAssignedToDept
	return fmt.Sprintf("Automatically routed to %s.", dept.Name), nil
}

// Assign attaches a report to exactly one of a department or a worker and
// records the matching state change. Passing both or neither is
// ErrInvalidAssignment.
func (e *Engine) Assign(ctx context.Context, reportID primitive.ObjectID, actor models.Actor, departmentID, workerID *primitive.ObjectID) (*models.Report, error) {
	if (departmentID == nil) == (workerID == nil) {
		return nil, models.ErrInvalidAssignment
	}

	var status models.Status
	set := bson.M{}
	if departmentID != nil {
		status = models.StatusAssignedToDept
		set["assignedDepartment"] = *departmentID
	} else {
		status = models.StatusAssignedToWorker
		set["assignedWorker"] = *workerID
	}

	now := primitive.NewDateTimeFromTime(e.now())
	set["status"] = status
	set["updatedAt"] = now

	res, err := e.RDB.UpdateOne(ctx,
		bson.M{"_id": reportID, "status": bson.M{"$nin": models.TerminalStatuses}},
		bson.M{
			"$set":  set,
			"$push": bson.M{"history": models.HistoryEntry{Status: status, Actor: actor, Timestamp: now}},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("assign report: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, e.rejectionCause(ctx, reportID)
	}

	report, err := e.RDB.FindOne(ctx, bson.M{"_id": reportID})
	if err != nil {
		return nil, fmt.Errorf("reload assigned report: %w", err)
	}

	if workerID != nil {
		if e.Notifier != nil {
			e.Notifier.WorkerAssigned(ctx, report)
		}
		e.publish(EventReportAssigned, report)
	} else {
		e.publish(EventReportUpdated, report)
	}

	zap.S().Infow("report assigned", "reportId", reportID.Hex(), "status", status)
	return report, nil
}

// UpdateStatus moves the report to newStatus and appends the matching
// history entry. A terminal report accepts only a repeat of its current
// state, which is a silent no-op; every other transition out of a terminal
// state is ErrTerminalState. Entering Resolved awards resolution points to
// the submitter exactly once, keyed off the conditional write.
func (e *Engine) UpdateStatus(ctx context.Context, reportID primitive.ObjectID, actor models.Actor, newStatus models.Status, notes string) (*models.Report, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", newStatus, models.ErrInvalidInput)
	}

	now := primitive.NewDateTimeFromTime(e.now())
	set := bson.M{"status": newStatus, "updatedAt": now}
	if newStatus == models.StatusRejected && notes != "" {
		set["rejectionReason"] = notes
	}

	res, err := e.RDB.UpdateOne(ctx,
		bson.M{"_id": reportID, "status": bson.M{"$nin": models.TerminalStatuses}},
		bson.M{
			"$set":  set,
			"$push": bson.M{"history": models.HistoryEntry{Status: newStatus, Actor: actor, Timestamp: now, Notes: notes}},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("update report status: %w", err)
	}
	if res.MatchedCount == 0 {
		report, ferr := e.RDB.FindOne(ctx, bson.M{"_id": reportID})
		if ferr != nil {
			return nil, fmt.Errorf("report %s: %w", reportID.Hex(), models.ErrNotFound)
		}
		if report.Status == newStatus {
			// Repeating the terminal state the report is already in.
			return report, nil
		}
		return nil, fmt.Errorf("report %s is %s: %w", reportID.Hex(), report.Status, models.ErrTerminalState)
	}

	report, err := e.RDB.FindOne(ctx, bson.M{"_id": reportID})
	if err != nil {
		return nil, fmt.Errorf("reload report: %w", err)
	}

	if newStatus == models.StatusResolved {
		e.awardResolution(ctx, report)
	}
	if e.Notifier != nil {
		e.Notifier.StatusChanged(ctx, report)
	}
	e.publish(EventReportUpdated, report)

	zap.S().Infow("report status updated", "reportId", reportID.Hex(), "status", newStatus)
	return report, nil
}

// RecordProof resolves the report and attaches the proof image to the
// resolution history entry in a single write.
func (e *Engine) RecordProof(ctx context.Context, reportID primitive.ObjectID, actor models.Actor, proofImageURL, notes string) (*models.Report, error) {
	if strings.TrimSpace(proofImageURL) == "" {
		return nil, fmt.Errorf("proof image required: %w", models.ErrInvalidInput)
	}

	now := primitive.NewDateTimeFromTime(e.now())
	res, err := e.RDB.UpdateOne(ctx,
		bson.M{"_id": reportID, "status": bson.M{"$nin": models.TerminalStatuses}},
		bson.M{
			"$set": bson.M{"status": models.StatusResolved, "updatedAt": now},
			"$push": bson.M{"history": models.HistoryEntry{
				Status:        models.StatusResolved,
				Actor:         actor,
				Timestamp:     now,
				Notes:         notes,
				ProofImageURL: proofImageURL,
			}},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("record resolution proof: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, e.rejectionCause(ctx, reportID)
	}

	report, err := e.RDB.FindOne(ctx, bson.M{"_id": reportID})
	if err != nil {
		return nil, fmt.Errorf("reload resolved report: %w", err)
	}

	e.awardResolution(ctx, report)
	if e.Notifier != nil {
		e.Notifier.StatusChanged(ctx, report)
	}
	e.publish(EventReportUpdated, report)

	zap.S().Infow("report resolved with proof", "reportId", reportID.Hex())
	return report, nil
}

// DetailUpdate is the set of mutable administrative fields. Nil means leave
// unchanged.
type DetailUpdate struct {
	FundsAllocated  *float64
	Priority        *models.Priority
	RejectionReason *string
}

// UpdateDetails applies administrative field changes without touching the
// lifecycle state. Terminal reports reject all detail changes. A funds
// change leaves a history note; priority and rejection reason do not.
func (e *Engine) UpdateDetails(ctx context.Context, reportID primitive.ObjectID, actor models.Actor, update DetailUpdate) (*models.Report, error) {
	set := bson.M{}
	mutation := bson.M{"$set": set}
	if update.FundsAllocated != nil {
		if *update.FundsAllocated < 0 {
			return nil, fmt.Errorf("funds must be non-negative: %w", models.ErrInvalidInput)
		}
		set["fundsAllocated"] = *update.FundsAllocated
		current, err := e.RDB.FindOne(ctx, bson.M{"_id": reportID})
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, fmt.Errorf("report %s: %w", reportID.Hex(), models.ErrNotFound)
			}
			return nil, fmt.Errorf("load report: %w", err)
		}
		mutation["$push"] = bson.M{"history": models.HistoryEntry{
			Status:    current.Status,
			Actor:     actor,
			Timestamp: primitive.NewDateTimeFromTime(e.now()),
			Notes:     fmt.Sprintf("Funds allocated: ₹%v", *update.FundsAllocated),
		}}
	}
	if update.Priority != nil {
		if _, err := models.ParsePriority(update.Priority.String()); err != nil {
			return nil, err
		}
		set["priority"] = *update.Priority
	}
	if update.RejectionReason != nil {
		set["rejectionReason"] = *update.RejectionReason
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update: %w", models.ErrInvalidInput)
	}
	set["updatedAt"] = primitive.NewDateTimeFromTime(e.now())

	res, err := e.RDB.UpdateOne(ctx,
		bson.M{"_id": reportID, "status": bson.M{"$nin": models.TerminalStatuses}},
		mutation,
	)
	if err != nil {
		return nil, fmt.Errorf("update report details: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, e.rejectionCause(ctx, reportID)
	}

	report, err := e.RDB.FindOne(ctx, bson.M{"_id": reportID})
	if err != nil {
		return nil, fmt.Errorf("reload report: %w", err)
	}
	e.publish(EventReportUpdated, report)
	return report, nil
}

// awardResolution pays the submitter for a report that just entered
// Resolved. The caller guarantees the transition happened in this call, so
// the award cannot double-fire.
func (e *Engine) awardResolution(ctx context.Context, report *models.Report) {
	if report.SubmittedBy == nil || report.IsAnonymous {
		return
	}
	if err := e.Ledger.AwardPoints(ctx, *report.SubmittedBy, engagement.ActionReportResolved); err != nil {
		zap.S().Errorw("failed to award resolution points", "error", err, "userId", report.SubmittedBy.Hex())
		return
	}
	if err := e.Ledger.EvaluateBadges(ctx, *report.SubmittedBy); err != nil {
		zap.S().Errorw("failed to evaluate submitter badges", "error", err, "userId", report.SubmittedBy.Hex())
	}
}

// rejectionCause explains a conditional write that matched nothing: the
// report is either gone or terminal.
func (e *Engine) rejectionCause(ctx context.Context, reportID primitive.ObjectID) error {
	report, err := e.RDB.FindOne(ctx, bson.M{"_id": reportID})
	if err != nil {
		return fmt.Errorf("report %s: %w", reportID.Hex(), models.ErrNotFound)
	}
	return fmt.Errorf("report %s is %s: %w", reportID.Hex(), report.Status, models.ErrTerminalState)
}

func (e *Engine) publish(event string, report *models.Report) {
	if e.Broadcast == nil {
		return
	}
	e.Broadcast.Publish(event, report)
}
