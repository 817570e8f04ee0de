// Package engagement tracks upvotes, points and badges. Upvotes are
// idempotent per (report, user); points are a monotonic counter; badges are
// append-only.
package engagement

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/civicgrid/civic-issue-api/databases"
	"github.com/civicgrid/civic-issue-api/models"
)

// ActionKind keys the fixed point value awarded for one real user action.
type ActionKind string

// Point-earning actions.
const (
	ActionNewReport      ActionKind = "NEW_REPORT"
	ActionUpvoteReport   ActionKind = "UPVOTE_REPORT"
	ActionReportResolved ActionKind = "REPORT_RESOLVED"
)

var pointsConfig = map[ActionKind]int{
	ActionNewReport:      20,
	ActionUpvoteReport:   5,
	ActionReportResolved: 50,
}

// Ledger owns upvote, point and badge accounting.
type Ledger struct {
	RDB databases.ReportDatabase
	UDB databases.UserDatabase
}

// New creates a Ledger over the report and user collections.
func New(rdb databases.ReportDatabase, udb databases.UserDatabase) *Ledger {
	return &Ledger{RDB: rdb, UDB: udb}
}

// Upvote records userID's vote on the report. The membership test, set
// insert and count refresh happen in one conditional pipeline update, so two
// concurrent votes by the same user cannot both land and the cached count is
// always derived from the set, never incremented independently. Returns
// models.ErrAlreadyUpvoted for a repeat vote and models.ErrNotFound for an
// unknown report. On success the voter earns upvote points and badge
// eligibility is re-evaluated for both the voter and the submitter.
func (l *Ledger) Upvote(ctx context.Context, reportID, userID primitive.ObjectID) (*models.Report, error) {
	filter := bson.M{
		"_id":       reportID,
		"upvotedBy": bson.M{"$ne": userID},
	}
	update := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.M{
			"upvotedBy": bson.M{"$setUnion": bson.A{
				bson.M{"$ifNull": bson.A{"$upvotedBy", bson.A{}}},
				bson.A{userID},
			}},
		}}},
		bson.D{{Key: "$set", Value: bson.M{
			"upvotes":   bson.M{"$size": "$upvotedBy"},
			"updatedAt": primitive.NewDateTimeFromTime(time.Now()),
		}}},
	}

	res, err := l.RDB.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, fmt.Errorf("upvote report: %w", err)
	}
	if res.MatchedCount == 0 {
		// Either the report does not exist or the user already voted.
		if _, ferr := l.RDB.FindOne(ctx, bson.M{"_id": reportID}); ferr != nil {
			return nil, fmt.Errorf("report %s: %w", reportID.Hex(), models.ErrNotFound)
		}
		return nil, models.ErrAlreadyUpvoted
	}

	report, err := l.RDB.FindOne(ctx, bson.M{"_id": reportID})
	if err != nil {
		return nil, fmt.Errorf("reload upvoted report: %w", err)
	}

	if err := l.AwardPoints(ctx, userID, ActionUpvoteReport); err != nil {
		zap.S().Errorw("failed to award upvote points", "error", err, "userId", userID.Hex())
	}
	if err := l.EvaluateBadges(ctx, userID); err != nil {
		zap.S().Errorw("failed to evaluate voter badges", "error", err, "userId", userID.Hex())
	}
	if report.SubmittedBy != nil && *report.SubmittedBy != userID {
		if err := l.EvaluateBadges(ctx, *report.SubmittedBy); err != nil {
			zap.S().Errorw("failed to evaluate submitter badges", "error", err, "userId", report.SubmittedBy.Hex())
		}
	}

	return report, nil
}

// AwardPoints adds the fixed point value for the action to the user's
// counter. Each call represents one real action; callers must not invoke it
// twice for the same logical event.
func (l *Ledger) AwardPoints(ctx context.Context, userID primitive.ObjectID, action ActionKind) error {
	points, ok := pointsConfig[action]
	if !ok {
		return fmt.Errorf("unknown point action %q: %w", action, models.ErrInvalidInput)
	}

	res, err := l.UDB.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$inc": bson.M{"points": points},
		"$set": bson.M{"updatedAt": primitive.NewDateTimeFromTime(time.Now())},
	})
	if err != nil {
		return fmt.Errorf("award %s points: %w", action, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", userID.Hex(), models.ErrNotFound)
	}
	zap.S().Infow("awarded points", "userId", userID.Hex(), "action", action, "points", points)
	return nil
}

// counts feeding the badge threshold predicates.
type badgeCounts struct {
	submitted   int64
	upvotesCast int64
	pothole     int64
	garbage     int64
	streetlight int64
	resolved    int64
	maxUpvotes  int
}

// EvaluateBadges recomputes every badge predicate against current data and
// appends the badges newly earned. Earned badges are never removed;
// re-running with unchanged counts is a no-op.
func (l *Ledger) EvaluateBadges(ctx context.Context, userID primitive.ObjectID) error {
	user, err := l.UDB.FindOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("user %s: %w", userID.Hex(), models.ErrNotFound)
	}

	counts, err := l.collectCounts(ctx, userID)
	if err != nil {
		return err
	}

	var earned []string
	for _, b := range Badges {
		if !user.HasBadge(b.Name) && b.earned(counts) {
			earned = append(earned, b.Name)
		}
	}
	if len(earned) == 0 {
		return nil
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	for _, name := range earned {
		// Conditional push so a concurrent evaluation cannot double-award.
		_, err := l.UDB.UpdateOne(ctx,
			bson.M{"_id": userID, "badges.name": bson.M{"$ne": name}},
			bson.M{"$push": bson.M{"badges": models.Badge{Name: name, EarnedAt: now}}},
		)
		if err != nil {
			return fmt.Errorf("award badge %q: %w", name, err)
		}
		zap.S().Infow("badge earned", "userId", userID.Hex(), "badge", name)
	}
	return nil
}

func (l *Ledger) collectCounts(ctx context.Context, userID primitive.ObjectID) (badgeCounts, error) {
	var c badgeCounts
	var err error

	if c.submitted, err = l.RDB.CountDocuments(ctx, bson.M{"submittedBy": userID}); err != nil {
		return c, fmt.Errorf("count submitted reports: %w", err)
	}
	if c.upvotesCast, err = l.RDB.CountDocuments(ctx, bson.M{"upvotedBy": userID}); err != nil {
		return c, fmt.Errorf("count upvotes cast: %w", err)
	}
	if c.pothole, err = l.RDB.CountDocuments(ctx, bson.M{"submittedBy": userID, "category": "Pothole"}); err != nil {
		return c, fmt.Errorf("count pothole reports: %w", err)
	}
	if c.garbage, err = l.RDB.CountDocuments(ctx, bson.M{"submittedBy": userID, "category": "Garbage"}); err != nil {
		return c, fmt.Errorf("count garbage reports: %w", err)
	}
	if c.streetlight, err = l.RDB.CountDocuments(ctx, bson.M{"submittedBy": userID, "category": "Streetlight"}); err != nil {
		return c, fmt.Errorf("count streetlight reports: %w", err)
	}
	if c.resolved, err = l.RDB.CountDocuments(ctx, bson.M{"submittedBy": userID, "status": models.StatusResolved}); err != nil {
		return c, fmt.Errorf("count resolved reports: %w", err)
	}

	top, err := l.RDB.Find(ctx, bson.M{"submittedBy": userID},
		options.Find().SetSort(bson.D{{Key: "upvotes", Value: -1}}).SetLimit(1))
	if err != nil {
		return c, fmt.Errorf("find most upvoted report: %w", err)
	}
	if len(top) > 0 {
		c.maxUpvotes = top[0].Upvotes
	}
	return c, nil
}
