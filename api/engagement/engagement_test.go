package engagement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/civicgrid/civic-issue-api/api/engagement"
	"github.com/civicgrid/civic-issue-api/databases/mocks"
	"github.com/civicgrid/civic-issue-api/models"
)

func matched(n int64) *mongo.UpdateResult {
	return &mongo.UpdateResult{MatchedCount: n, ModifiedCount: n}
}

func TestLedger_UpvoteSuccess(t *testing.T) {
	reportID := primitive.NewObjectID()
	voterID := primitive.NewObjectID()
	submitterID := primitive.NewObjectID()

	rdb := &mocks.ReportDatabase{}
	udb := &mocks.UserDatabase{}

	rdb.On("UpdateOne", mock.Anything, mock.MatchedBy(func(filter interface{}) bool {
		f := filter.(bson.M)
		return f["_id"] == reportID
	}), mock.Anything).Return(matched(1), nil)
	rdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Report{
		ID:          reportID,
		SubmittedBy: &submitterID,
		Upvotes:     3,
		UpvotedBy:   []primitive.ObjectID{voterID},
	}, nil)
	rdb.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(0), nil)
	rdb.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	udb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(matched(1), nil)
	udb.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{ID: voterID}, nil)

	l := engagement.New(rdb, udb)

	report, err := l.Upvote(context.Background(), reportID, voterID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Upvotes)
	assert.Contains(t, report.UpvotedBy, voterID)
}

func TestLedger_UpvoteAlreadyUpvoted(t *testing.T) {
	reportID := primitive.NewObjectID()
	voterID := primitive.NewObjectID()

	rdb := &mocks.ReportDatabase{}
	rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(matched(0), nil)
	rdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Report{
		ID:        reportID,
		UpvotedBy: []primitive.ObjectID{voterID},
	}, nil)

	l := engagement.New(rdb, &mocks.UserDatabase{})

	_, err := l.Upvote(context.Background(), reportID, voterID)
	assert.ErrorIs(t, err, models.ErrAlreadyUpvoted)
}

func TestLedger_UpvoteReportNotFound(t *testing.T) {
	rdb := &mocks.ReportDatabase{}
	rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(matched(0), nil)
	rdb.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	l := engagement.New(rdb, &mocks.UserDatabase{})

	_, err := l.Upvote(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLedger_AwardPoints(t *testing.T) {
	userID := primitive.NewObjectID()

	udb := &mocks.UserDatabase{}
	udb.On("UpdateOne", mock.Anything, bson.M{"_id": userID}, mock.MatchedBy(func(update interface{}) bool {
		inc := update.(bson.M)["$inc"].(bson.M)
		return inc["points"] == 50
	})).Return(matched(1), nil)

	l := engagement.New(&mocks.ReportDatabase{}, udb)

	err := l.AwardPoints(context.Background(), userID, engagement.ActionReportResolved)
	assert.NoError(t, err)
}

func TestLedger_AwardPointsUnknownAction(t *testing.T) {
	l := engagement.New(&mocks.ReportDatabase{}, &mocks.UserDatabase{})
	err := l.AwardPoints(context.Background(), primitive.NewObjectID(), engagement.ActionKind("BOGUS"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestLedger_AwardPointsUserNotFound(t *testing.T) {
	udb := &mocks.UserDatabase{}
	udb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(matched(0), nil)

	l := engagement.New(&mocks.ReportDatabase{}, udb)
	err := l.AwardPoints(context.Background(), primitive.NewObjectID(), engagement.ActionNewReport)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLedger_EvaluateBadgesAwardsNewlyEarned(t *testing.T) {
	userID := primitive.NewObjectID()

	rdb := &mocks.ReportDatabase{}
	udb := &mocks.UserDatabase{}

	udb.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{ID: userID}, nil)
	// One submitted report, nothing else.
	rdb.On("CountDocuments", mock.Anything, bson.M{"submittedBy": userID}).Return(int64(1), nil)
	rdb.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(0), nil)
	rdb.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	udb.On("UpdateOne", mock.Anything, mock.MatchedBy(func(filter interface{}) bool {
		f := filter.(bson.M)
		cond, ok := f["badges.name"].(bson.M)
		return ok && cond["$ne"] == "First Report"
	}), mock.Anything).Return(matched(1), nil)

	l := engagement.New(rdb, udb)

	err := l.EvaluateBadges(context.Background(), userID)
	require.NoError(t, err)
	udb.AssertNumberOfCalls(t, "UpdateOne", 1)
}

func TestLedger_EvaluateBadgesIdempotent(t *testing.T) {
	userID := primitive.NewObjectID()

	rdb := &mocks.ReportDatabase{}
	udb := &mocks.UserDatabase{}

	udb.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{
		ID:     userID,
		Badges: []models.Badge{{Name: "First Report"}},
	}, nil)
	rdb.On("CountDocuments", mock.Anything, bson.M{"submittedBy": userID}).Return(int64(1), nil)
	rdb.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(0), nil)
	rdb.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	l := engagement.New(rdb, udb)

	// Counts unchanged and the badge already held: no write happens.
	err := l.EvaluateBadges(context.Background(), userID)
	require.NoError(t, err)
	udb.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestLedger_EvaluateBadgesUserMissing(t *testing.T) {
	udb := &mocks.UserDatabase{}
	udb.On("FindOne", mock.Anything, mock.Anything).Return(nil, errors.New("mongo: no documents in result"))

	l := engagement.New(&mocks.ReportDatabase{}, udb)
	err := l.EvaluateBadges(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
