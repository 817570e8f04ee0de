package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/civicgrid/civic-issue-api/api/handlers"
	"github.com/civicgrid/civic-issue-api/databases/mocks"
	"github.com/civicgrid/civic-issue-api/models"
)

func TestCreateDepartmentHandler(t *testing.T) {
	zoneID := primitive.NewObjectID()

	zdb := &mocks.ZoneDatabase{}
	zdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Zone{ID: zoneID}, nil)
	ddb := &mocks.DepartmentDatabase{}
	ddb.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(0), nil)
	ddb.On("InsertOne", mock.Anything, mock.Anything).Return(nil, nil)

	h := handlers.Department{DDB: ddb, ZDB: zdb}

	body, _ := json.Marshal(map[string]interface{}{
		"name":       "Road Maintenance",
		"zone":       zoneID.Hex(),
		"categories": []string{"Pothole", "Road Damage"},
	})
	req := httptest.NewRequest("POST", "/api/v1/departments", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	h.CreateDepartmentHandler(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var dept models.Department
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dept))
	assert.Equal(t, "Road Maintenance", dept.Name)
	assert.Equal(t, zoneID, dept.Zone)
}

func TestCreateDepartmentHandlerDuplicateNameInZone(t *testing.T) {
	zoneID := primitive.NewObjectID()

	zdb := &mocks.ZoneDatabase{}
	zdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Zone{ID: zoneID}, nil)
	ddb := &mocks.DepartmentDatabase{}
	ddb.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(1), nil)

	h := handlers.Department{DDB: ddb, ZDB: zdb}

	body, _ := json.Marshal(map[string]interface{}{"name": "Road Maintenance", "zone": zoneID.Hex()})
	req := httptest.NewRequest("POST", "/api/v1/departments", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	h.CreateDepartmentHandler(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	ddb.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestCreateDepartmentHandlerUnknownZone(t *testing.T) {
	zdb := &mocks.ZoneDatabase{}
	zdb.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	h := handlers.Department{DDB: &mocks.DepartmentDatabase{}, ZDB: zdb}

	body, _ := json.Marshal(map[string]interface{}{"name": "Parks", "zone": primitive.NewObjectID().Hex()})
	req := httptest.NewRequest("POST", "/api/v1/departments", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	h.CreateDepartmentHandler(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateDepartmentHandlerCategories(t *testing.T) {
	deptID := primitive.NewObjectID()

	ddb := &mocks.DepartmentDatabase{}
	ddb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	ddb.On("FindOne", mock.Anything, mock.Anything).
		Return(&models.Department{ID: deptID, Categories: []string{"Garbage", "Debris"}}, nil)

	h := handlers.Department{DDB: ddb, ZDB: &mocks.ZoneDatabase{}}

	body := []byte(`{"categories": ["Garbage", "Debris"]}`)
	req := httptest.NewRequest("PATCH", "/api/v1/departments/"+deptID.Hex(), bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"department_id": deptID.Hex()})
	rr := httptest.NewRecorder()

	h.UpdateDepartmentHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var dept models.Department
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dept))
	assert.Equal(t, []string{"Garbage", "Debris"}, dept.Categories)
}
