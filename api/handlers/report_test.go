package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/civicgrid/civic-issue-api/api/autoroute"
	"github.com/civicgrid/civic-issue-api/api/engagement"
	"github.com/civicgrid/civic-issue-api/api/lifecycle"
	"github.com/civicgrid/civic-issue-api/api/handlers"
	"github.com/civicgrid/civic-issue-api/databases/mocks"
	"github.com/civicgrid/civic-issue-api/models"
)

type reportFixture struct {
	rdb *mocks.ReportDatabase
	udb *mocks.UserDatabase
	zdb *mocks.ZoneDatabase
	ddb *mocks.DepartmentDatabase
	h   handlers.Report
}

func newReportFixture() *reportFixture {
	f := &reportFixture{
		rdb: &mocks.ReportDatabase{},
		udb: &mocks.UserDatabase{},
		zdb: &mocks.ZoneDatabase{},
		ddb: &mocks.DepartmentDatabase{},
	}
	engine := lifecycle.New(f.rdb, autoroute.New(f.zdb, f.ddb), engagement.New(f.rdb, f.udb))
	f.h = handlers.Report{RDB: f.rdb, Engine: engine}
	return f
}

func (f *reportFixture) allowEngagement() {
	f.udb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	f.udb.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{}, nil)
	f.rdb.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(0), nil)
	f.rdb.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
}

func TestCreateReportHandler(t *testing.T) {
	f := newReportFixture()
	submitter := primitive.NewObjectID()
	zoneID := primitive.NewObjectID()
	deptID := primitive.NewObjectID()

	f.zdb.On("Find", mock.Anything, mock.Anything, mock.Anything).Return([]models.Zone{{
		ID: zoneID,
		Geometry: models.GeoPolygon{
			Type:        "Polygon",
			Coordinates: [][][]float64{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}},
		},
	}}, nil)
	f.ddb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.Department{ID: deptID, Name: "Sanitation", Zone: zoneID, Categories: []string{"Garbage"}}, nil)
	f.rdb.On("InsertOne", mock.Anything, mock.Anything).Return(primitive.NewObjectID(), nil)
	f.allowEngagement()

	body, _ := json.Marshal(map[string]interface{}{
		"submittedBy": submitter.Hex(),
		"description": "overflowing bin",
		"category":    "Garbage",
		"location":    models.NewGeoPoint(5, 5),
		"imageUrl":    "https://cdn.example.com/bin.jpg",
	})
	req := httptest.NewRequest("POST", "/api/v1/reports", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	f.h.CreateReportHandler(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var report models.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, models.StatusAssignedToDept, report.Status)
	assert.Equal(t, "Garbage", report.Category)
}

func TestSyncReportsHandler(t *testing.T) {
	f := newReportFixture()
	submitter := primitive.NewObjectID()

	f.rdb.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)
	f.zdb.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	f.rdb.On("InsertOne", mock.Anything, mock.Anything).Return(primitive.NewObjectID(), nil)
	f.allowEngagement()

	body, _ := json.Marshal(map[string]interface{}{
		"reports": []map[string]interface{}{
			{
				"clientRef":   "offline-1",
				"submittedBy": submitter.Hex(),
				"description": "deep pothole",
				"category":    "Pothole",
				"location":    models.NewGeoPoint(5, 5),
				"imageUrl":    "https://cdn.example.com/hole.jpg",
			},
			{
				"submittedBy": submitter.Hex(),
				"description": "missing clientRef",
				"category":    "Pothole",
				"location":    models.NewGeoPoint(5, 5),
				"imageUrl":    "https://cdn.example.com/hole2.jpg",
			},
		},
	})
	req := httptest.NewRequest("POST", "/api/v1/reports/sync", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	f.h.SyncReportsHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Successful int `json:"successful"`
		Failed     int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Successful)
	assert.Equal(t, 1, resp.Failed)
}

func TestCreateReportHandlerRejectsBadInput(t *testing.T) {
	f := newReportFixture()

	body := []byte(`{"description": "no category or image"}`)
	req := httptest.NewRequest("POST", "/api/v1/reports", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	f.h.CreateReportHandler(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpvoteReportHandler(t *testing.T) {
	f := newReportFixture()
	reportID := primitive.NewObjectID()
	voter := primitive.NewObjectID()

	f.rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	f.rdb.On("FindOne", mock.Anything, mock.Anything).
		Return(&models.Report{ID: reportID, Upvotes: 4, UpvotedBy: []primitive.ObjectID{voter}}, nil)
	f.allowEngagement()

	body := []byte(fmt.Sprintf(`{"userId": %q}`, voter.Hex()))
	req := httptest.NewRequest("POST", "/api/v1/reports/"+reportID.Hex()+"/upvote", bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"report_id": reportID.Hex()})
	rr := httptest.NewRecorder()

	f.h.UpvoteReportHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var report models.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 4, report.Upvotes)
}

func TestUpvoteReportHandlerConflict(t *testing.T) {
	f := newReportFixture()
	reportID := primitive.NewObjectID()
	voter := primitive.NewObjectID()

	f.rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
	f.rdb.On("FindOne", mock.Anything, mock.Anything).
		Return(&models.Report{ID: reportID, UpvotedBy: []primitive.ObjectID{voter}}, nil)

	body := []byte(fmt.Sprintf(`{"userId": %q}`, voter.Hex()))
	req := httptest.NewRequest("POST", "/api/v1/reports/"+reportID.Hex()+"/upvote", bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"report_id": reportID.Hex()})
	rr := httptest.NewRecorder()

	f.h.UpvoteReportHandler(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestUpdateStatusHandlerTerminalConflict(t *testing.T) {
	f := newReportFixture()
	reportID := primitive.NewObjectID()

	f.rdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
	f.rdb.On("FindOne", mock.Anything, mock.Anything).
		Return(&models.Report{ID: reportID, Status: models.StatusRejected}, nil)

	body := []byte(`{"status": "InProgress"}`)
	req := httptest.NewRequest("PATCH", "/api/v1/reports/"+reportID.Hex()+"/status", bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"report_id": reportID.Hex()})
	rr := httptest.NewRecorder()

	f.h.UpdateStatusHandler(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestFeedHandler(t *testing.T) {
	f := newReportFixture()
	f.rdb.On("Find", mock.Anything, bson.M{}, mock.Anything).
		Return([]models.Report{{ID: primitive.NewObjectID()}, {ID: primitive.NewObjectID()}}, nil)

	req := httptest.NewRequest("GET", "/api/v1/reports/feed?limit=10&page=1", nil)
	rr := httptest.NewRecorder()

	f.h.FeedHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var reports []models.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reports))
	assert.Len(t, reports, 2)
}

func TestMapHandlerRequiresBox(t *testing.T) {
	f := newReportFixture()

	req := httptest.NewRequest("GET", "/api/v1/reports/map?minLon=1", nil)
	rr := httptest.NewRecorder()

	f.h.MapHandler(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetReportHandlerNotFound(t *testing.T) {
	f := newReportFixture()
	reportID := primitive.NewObjectID()

	f.rdb.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	req := httptest.NewRequest("GET", "/api/v1/reports/"+reportID.Hex(), nil)
	req = mux.SetURLVars(req, map[string]string{"report_id": reportID.Hex()})
	rr := httptest.NewRecorder()

	f.h.GetReportHandler(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
