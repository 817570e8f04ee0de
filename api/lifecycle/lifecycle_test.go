package lifecycle_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/civicgrid/civic-issue-api/api/autoroute"
	"github.com/civicgrid/civic-issue-api/api/engagement"
	"github.com/civicgrid/civic-issue-api/api/lifecycle"
	"github.com/civicgrid/civic-issue-api/databases/mocks"
	"github.com/civicgrid/civic-issue-api/models"
)

var fixedTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type engineFixture struct {
	rdb *mocks.ReportDatabase
	udb *mocks.UserDatabase
	zdb *mocks.ZoneDatabase
	ddb *mocks.DepartmentDatabase
	eng *lifecycle.Engine
}

func newFixture() *engineFixture {
	f := &engineFixture{
		rdb: &mocks.ReportDatabase{},
		udb: &mocks.UserDatabase{},
		zdb: &mocks.ZoneDatabase{},
		ddb: &mocks.DepartmentDatabase{},
	}
	router := autoroute.New(f.zdb, f.ddb)
	ledger := engagement.New(f.rdb, f.udb)
	f.eng = lifecycle.New(f.rdb, router, ledger).WithClock(func() time.Time { return fixedTime })
	return f
}

// allowEngagement stubs the point and badge side effects so lifecycle tests
// can focus on the state machine.
func (f *engineFixture) allowEngagement(userID primitive.ObjectID) {
	f.udb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	f.udb.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{ID: userID}, nil)
	f.rdb.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(0), nil)
	f.rdb.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
}

func squareZone(id primitive.ObjectID) models.Zone {
	return models.Zone{
		ID:   id,
		Name: "Ward 4",
		Geometry: models.GeoPolygon{
			Type: "Polygon",
			Coordinates: [][][]float64{{
				{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
			}},
		},
	}
}

func TestEngine_IntakeValidation(t *testing.T) {
	f := newFixture()
	submitter := primitive.NewObjectID()

	cases := []struct {
		name string
		in   lifecycle.IntakeInput
	}{
		{"missing location", lifecycle.IntakeInput{SubmittedBy: &submitter, Category: "Pothole", ImageURL: "http://img"}},
		{"missing category", lifecycle.IntakeInput{SubmittedBy: &submitter, Location: models.NewGeoPoint(5, 5), ImageURL: "http://img"}},
		{"missing image", lifecycle.IntakeInput{SubmittedBy: &submitter, Location: models.NewGeoPoint(5, 5), Category: "Pothole"}},
		{"missing submitter", lifecycle.IntakeInput{Location: models.NewGeoPoint(5, 5), Category: "Pothole", ImageURL: "http://img"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.eng.Intake(context.Background(), tc.in)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestEngine_IntakeRoutesToDepartment(t *testing.T) {
	f := newFixture()
	submitter := primitive.NewObjectID()
	zoneID := primitive.NewObjectID()
	deptID := primitive.NewObjectID()
	reportID := primitive.NewObjectID()

	f.zdb.On("Find", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Zone{squareZone(zoneID)}, nil)
	f.ddb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.Department{ID: deptID, Name: "Road Maintenance", Zone: zoneID, Categories: []string{"Pothole"}}, nil)
	f.rdb.On("InsertOne", mock.Anything, mock.Anything).Return(reportID, nil)
	f.allowEngagement(submitter)

	report, err := f.eng.Intake(context.Background(), lifecycle.IntakeInput{
		SubmittedBy: &submitter,
		Description: "deep pothole near the crossing",
		Category:    "Pothole",
		Location:    models.NewGeoPoint(5, 5),
		ImageURL:    "https://cdn.example.com/p.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, reportID, report.ID)
	assert.Equal(t, models.StatusAssignedToDept, report.Status)
	assert.Equal(t, models.PriorityMedium, report.Priority)
	require.NotNil(t, report.Zone)
	assert.Equal(t, zoneID, *report.Zone)
	require.NotNil(t, report.AssignedDepartment)
	assert.Equal(t, deptID, *report.AssignedDepartment)
	require.Len(t, report.History, 1)
	assert.Equal(t, models.StatusAssignedToDept, report.History[0].Status)
	assert.Equal(t, models.ActorSystem, report.History[0].Actor.Kind)
	assert.Equal(t, "Automatically routed to Road Maintenance.", report.History[0].Notes)
}

func TestEngine_IntakeFallbackMatchKeepsSubmittedCategory(t *testing.T) {
	f := newFixture()
	submitter := primitive.NewObjectID()
	zoneID := primitive.NewObjectID()
	deptID := primitive.NewObjectID()

	categoryFilter := func(category string) func(interface{}) bool {
		return func(filter interface{}) bool {
			elem := filter.(bson.M)["categories"].(bson.M)["$elemMatch"].(bson.M)
			return elem["$regex"] == "^"+category+"$"
		}
	}

	f.zdb.On("Find", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Zone{squareZone(zoneID)}, nil)
	f.ddb.On("FindOne", mock.Anything, mock.MatchedBy(categoryFilter("Debris")), mock.Anything).
		Return(nil, mongo.ErrNoDocuments)
	f.ddb.On("FindOne", mock.Anything, mock.MatchedBy(categoryFilter("Garbage")), mock.Anything).
		Return(&models.Department{ID: deptID, Name: "Sanitation", Zone: zoneID, Categories: []string{"Garbage"}}, nil)
	f.rdb.On("InsertOne", mock.Anything, mock.Anything).Return(primitive.NewObjectID(), nil)
	f.allowEngagement(submitter)

	report, err := f.eng.Intake(context.Background(), lifecycle.IntakeInput{
		SubmittedBy:         &submitter,
		Category:            "Debris",
		AIPredictedCategory: "Garbage",
		Location:            models.NewGeoPoint(5, 5),
		ImageURL:            "https://cdn.example.com/d.jpg",
	})
	require.NoError(t, err)

	// The prediction only rescues routing; the submitted category stands.
	assert.Equal(t, "Debris", report.Category)
	assert.Equal(t, models.StatusAssignedToDept, report.Status)
	require.NotNil(t, report.AssignedDepartment)
	assert.Equal(t, deptID, *report.AssignedDepartment)
}

func TestEngine_IntakeNoZoneFallsToManualReview(t *testing.T) {
	f := newFixture()
	submitter := primitive.NewObjectID()

	f.zdb.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.rdb.On("InsertOne", mock.Anything, mock.Anything).Return(primitive.NewObjectID(), nil)
	f.allowEngagement(submitter)

	report, err := f.eng.Intake(context.Background(), lifecycle.IntakeInput{
		SubmittedBy: &submitter,
		Category:    "Pothole",
		Location:    models.NewGeoPoint(50, 50),
		ImageURL:    "https://cdn.example.com/p.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, report.Status)
	assert.Equal(t, "Pothole", report.Category)
	assert.Nil(t, report.Zone)
	assert.Nil(t, report.AssignedDepartment)
	require.Len(t, report.History, 1)
	assert.Equal(t, "No zone contains the report location. Awaiting manual review.", report.History[0].Notes)
}

func TestEngine_IntakeUnroutableCategoryBecomesUnclassified(t *testing.T) {
	f := newFixture()
	submitter := primitive.NewObjectID()
	zoneID := primitive.NewObjectID()

	f.zdb.On("Find", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Zone{squareZone(zoneID)}, nil)
	f.ddb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, mongo.ErrNoDocuments)
	f.rdb.On("InsertOne", mock.Anything, mock.Anything).Return(primitive.NewObjectID(), nil)
	f.allowEngagement(submitter)

	report, err := f.eng.Intake(context.Background(), lifecycle.IntakeInput{
		SubmittedBy: &submitter,
		Category:    "Broken Bench",
		Location:    models.NewGeoPoint(5, 5),
		ImageURL:    "https://cdn.example.com/b.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, report.Status)
	assert.Equal(t, models.CategoryUnclassified, report.Category)
	require.NotNil(t, report.Zone)
	assert.Nil(t, report.AssignedDepartment)
	require.Len(t, report.History, 1)
	assert.Equal(t, `Automatic routing failed. Original category was "Broken Bench". Awaiting manual review.`, report.History[0].Notes)
}

func TestEngine_IntakeClientRefDeduplicates(t *testing.T) {
	f := newFixture()
	submitter := primitive.NewObjectID()
	existing := &models.Report{ID: primitive.NewObjectID(), ClientRef: "sync-42", Status: models.StatusPending}

	f.rdb.On("FindOne", mock.Anything, bson.M{"submittedBy": submitter, "clientRef": "sync-42"}).
		Return(existing, nil)

	report, err := f.eng.Intake(context.Background(), lifecycle.IntakeInput{
		SubmittedBy: &submitter,
		ClientRef:   "sync-42",
		Category:    "Pothole",
		Location:    models.NewGeoPoint(5, 5),
		ImageURL:    "https://cdn.example.com/p.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, report.ID)
	f.rdb.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestEngine_AssignRequiresExactlyOneTarget(t *testing.T) {
	f := newFixture()
	id := primitive.NewObjectID()
	dept := primitive.NewObjectID()
	worker := primitive.NewObjectID()
	actor := models.UserActor(primitive.NewObjectID())

	_, err := f.eng.Assign(context.Background(), id, actor, nil, nil)
	assert.ErrorIs(t, err, models.ErrInvalidAssignment)

	_, err = f.eng.Assign(context.Background(), id, actor, &dept, &worker)
	assert.ErrorIs(t, err, models.ErrInvalidAssignment)
}

func TestEngine_AssignWorker(t *testing.T) {
	f := newFixture()
	reportID := primitive.NewObjectID()
	workerID := primitive.NewObjectID()
	actor := models.UserActor(primitive.NewObjectID())

	f.rdb.On("UpdateOne", mock.Anything, mock.MatchedBy(func(filter interface{}) bool {
		fl := filter.(bson.M)
		_, guarded := fl["status"]
		return fl["_id"] == reportID && guarded
	}), mock.Anything).Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	f.rdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Report{
		ID:             reportID,
		Status:         models.StatusAssignedToWorker,
		AssignedWorker: &workerID,
	}, nil)

	report, err := f.eng.Assign(context.Background(), reportID, actor, nil, &workerID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssignedToWorker, report.Status)
}

func TestEngine_AssignTerminalReport(t *testing.T) {
	f := newFixture()
	reportID := primitive.NewObjectID()
	deptID := primitive.NewObjectID()

	f.rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
	f.rdb.On("FindOne", mock.Anything, mock.Anything).
		Return(&models.Report{ID: reportID, Status: models.StatusRejected}, nil)

	_, err := f.eng.Assign(context.Background(), reportID, models.SystemActor(), &deptID, nil)
	assert.ErrorIs(t, err, models.ErrTerminalState)
}

func TestEngine_UpdateStatusUnknownStatus(t *testing.T) {
	f := newFixture()
	_, err := f.eng.UpdateStatus(context.Background(), primitive.NewObjectID(), models.SystemActor(), models.Status("Bogus"), "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestEngine_UpdateStatusRepeatTerminalIsNoOp(t *testing.T) {
	f := newFixture()
	reportID := primitive.NewObjectID()

	f.rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
	f.rdb.On("FindOne", mock.Anything, mock.Anything).
		Return(&models.Report{ID: reportID, Status: models.StatusResolved}, nil)

	report, err := f.eng.UpdateStatus(context.Background(), reportID, models.SystemActor(), models.StatusResolved, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, report.Status)
	// No second resolution award.
	f.udb.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_UpdateStatusOutOfTerminal(t *testing.T) {
	f := newFixture()
	reportID := primitive.NewObjectID()

	f.rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
	f.rdb.On("FindOne", mock.Anything, mock.Anything).
		Return(&models.Report{ID: reportID, Status: models.StatusResolved}, nil)

	_, err := f.eng.UpdateStatus(context.Background(), reportID, models.SystemActor(), models.StatusInProgress, "")
	assert.ErrorIs(t, err, models.ErrTerminalState)
}

func TestEngine_UpdateStatusResolvedAwardsSubmitter(t *testing.T) {
	f := newFixture()
	reportID := primitive.NewObjectID()
	submitter := primitive.NewObjectID()

	f.rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	f.rdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Report{
		ID:          reportID,
		Status:      models.StatusResolved,
		SubmittedBy: &submitter,
	}, nil)
	f.allowEngagement(submitter)

	_, err := f.eng.UpdateStatus(context.Background(), reportID, models.SystemActor(), models.StatusResolved, "fixed")
	require.NoError(t, err)

	f.udb.AssertCalled(t, "UpdateOne", mock.Anything, bson.M{"_id": submitter}, mock.MatchedBy(func(update interface{}) bool {
		inc, ok := update.(bson.M)["$inc"].(bson.M)
		return ok && inc["points"] == 50
	}))
}

func TestEngine_RecordProof(t *testing.T) {
	f := newFixture()
	reportID := primitive.NewObjectID()

	_, err := f.eng.RecordProof(context.Background(), reportID, models.SystemActor(), "  ", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	f.rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.MatchedBy(func(update interface{}) bool {
		push := update.(bson.M)["$push"].(bson.M)
		entry := push["history"].(models.HistoryEntry)
		return entry.Status == models.StatusResolved && entry.ProofImageURL == "https://cdn.example.com/proof.jpg"
	})).Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	f.rdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Report{
		ID:     reportID,
		Status: models.StatusResolved,
	}, nil)

	report, err := f.eng.RecordProof(context.Background(), reportID, models.SystemActor(), "https://cdn.example.com/proof.jpg", "done")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, report.Status)
}

func TestEngine_UpdateDetailsValidation(t *testing.T) {
	f := newFixture()
	id := primitive.NewObjectID()

	_, err := f.eng.UpdateDetails(context.Background(), id, models.SystemActor(), lifecycle.DetailUpdate{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	negative := -10.0
	_, err = f.eng.UpdateDetails(context.Background(), id, models.SystemActor(), lifecycle.DetailUpdate{FundsAllocated: &negative})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestEngine_UpdateDetailsPriority(t *testing.T) {
	f := newFixture()
	reportID := primitive.NewObjectID()
	p := models.PriorityHigh

	f.rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.MatchedBy(func(update interface{}) bool {
		set := update.(bson.M)["$set"].(bson.M)
		return set["priority"] == models.PriorityHigh
	})).Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	f.rdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Report{
		ID:       reportID,
		Priority: models.PriorityHigh,
	}, nil)

	report, err := f.eng.UpdateDetails(context.Background(), reportID, models.SystemActor(), lifecycle.DetailUpdate{Priority: &p})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, report.Priority)
}

func TestEngine_UpdateDetailsFundsLeavesHistoryNote(t *testing.T) {
	f := newFixture()
	reportID := primitive.NewObjectID()
	funds := 25000.0

	f.rdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Report{
		ID:     reportID,
		Status: models.StatusInProgress,
	}, nil)
	f.rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.MatchedBy(func(update interface{}) bool {
		m := update.(bson.M)
		set := m["$set"].(bson.M)
		push, ok := m["$push"].(bson.M)
		if !ok || set["fundsAllocated"] != funds {
			return false
		}
		entry := push["history"].(models.HistoryEntry)
		return entry.Status == models.StatusInProgress &&
			strings.Contains(entry.Notes, "Funds allocated")
	})).Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)

	_, err := f.eng.UpdateDetails(context.Background(), reportID, models.SystemActor(), lifecycle.DetailUpdate{FundsAllocated: &funds})
	require.NoError(t, err)
}
