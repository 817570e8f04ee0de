package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/civicgrid/civic-issue-api/api"
	"github.com/civicgrid/civic-issue-api/config"
	"github.com/civicgrid/civic-issue-api/databases"
	"github.com/civicgrid/civic-issue-api/models"
)

// Department handles department-related requests
type Department struct {
	DDB databases.DepartmentDatabase
	ZDB databases.ZoneDatabase
}

type createDepartmentRequest struct {
	Name       string        `json:"name"`
	Zone       string        `json:"zone"`
	Subhead    string        `json:"subhead"`
	Categories []string      `json:"categories"`
	Budget     models.Budget `json:"budget"`
}

// CreateDepartmentHandler registers a department inside a zone. The name
// must be unique within that zone.
func (d Department) CreateDepartmentHandler(w http.ResponseWriter, r *http.Request) {
	var req createDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		config.ErrorStatus("department name required", http.StatusBadRequest, w, models.ErrInvalidInput)
		return
	}
	zoneID, err := primitive.ObjectIDFromHex(req.Zone)
	if err != nil {
		config.ErrorStatus("invalid zone id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if _, err := d.ZDB.FindOne(ctx, bson.M{"_id": zoneID}); err != nil {
		domainError("zone not found", w, models.ErrNotFound)
		return
	}
	count, err := d.DDB.CountDocuments(ctx, bson.M{"zone": zoneID, "name": req.Name})
	if err != nil {
		domainError("failed to check department name", w, err)
		return
	}
	if count > 0 {
		config.ErrorStatus("department name already in use within zone", http.StatusConflict, w, models.ErrInvalidInput)
		return
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	dept := models.Department{
		ID:         primitive.NewObjectID(),
		Name:       req.Name,
		Zone:       zoneID,
		Categories: req.Categories,
		Budget:     req.Budget,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Subhead != "" {
		subheadID, err := primitive.ObjectIDFromHex(req.Subhead)
		if err != nil {
			config.ErrorStatus("invalid subhead id", http.StatusBadRequest, w, err)
			return
		}
		dept.Subhead = &subheadID
	}

	if _, err := d.DDB.InsertOne(ctx, dept); err != nil {
		domainError("failed to create department", w, err)
		return
	}
	respondJSON(w, http.StatusCreated, dept)
}

// ListDepartmentsHandler returns departments, optionally scoped to a zone.
func (d Department) ListDepartmentsHandler(w http.ResponseWriter, r *http.Request) {
	filter := bson.M{}
	if zone := r.URL.Query().Get("zone"); zone != "" {
		zoneID, err := primitive.ObjectIDFromHex(zone)
		if err != nil {
			config.ErrorStatus("invalid zone id", http.StatusBadRequest, w, err)
			return
		}
		filter["zone"] = zoneID
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	departments, err := d.DDB.Find(ctx, filter)
	if err != nil {
		domainError("failed to list departments", w, err)
		return
	}
	respondJSON(w, http.StatusOK, departments)
}

type updateDepartmentRequest struct {
	Categories []string       `json:"categories"`
	Subhead    *string        `json:"subhead"`
	Budget     *models.Budget `json:"budget"`
}

// UpdateDepartmentHandler changes a department's categories, subhead or
// budget.
func (d Department) UpdateDepartmentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["department_id"])
	if err != nil {
		config.ErrorStatus("invalid department id", http.StatusBadRequest, w, err)
		return
	}

	var req updateDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	set := bson.M{"updatedAt": primitive.NewDateTimeFromTime(time.Now())}
	if req.Categories != nil {
		set["categories"] = req.Categories
	}
	if req.Budget != nil {
		set["budget"] = *req.Budget
	}
	if req.Subhead != nil {
		subheadID, err := primitive.ObjectIDFromHex(*req.Subhead)
		if err != nil {
			config.ErrorStatus("invalid subhead id", http.StatusBadRequest, w, err)
			return
		}
		set["subhead"] = subheadID
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := d.DDB.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		domainError("failed to update department", w, err)
		return
	}
	if res.MatchedCount == 0 {
		domainError("department not found", w, models.ErrNotFound)
		return
	}

	dept, err := d.DDB.FindOne(ctx, bson.M{"_id": id})
	if err != nil {
		domainError("failed to reload department", w, err)
		return
	}
	respondJSON(w, http.StatusOK, dept)
}
