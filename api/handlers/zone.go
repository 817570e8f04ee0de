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
	"github.com/civicgrid/civic-issue-api/geo"
	"github.com/civicgrid/civic-issue-api/models"
)

// Zone handles zone-related requests
type Zone struct {
	ZDB databases.ZoneDatabase
	RDB databases.ReportDatabase
}

type createZoneRequest struct {
	Name     string            `json:"name"`
	Geometry models.GeoPolygon `json:"geometry"`
}

// CreateZoneHandler registers a new administrative zone. The outer ring must
// be a valid polygon and the name unique.
func (z Zone) CreateZoneHandler(w http.ResponseWriter, r *http.Request) {
	var req createZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		config.ErrorStatus("zone name required", http.StatusBadRequest, w, models.ErrInvalidInput)
		return
	}
	ring := geo.RingFromCoords(req.Geometry.OuterRing())
	if !ring.Valid() {
		config.ErrorStatus("zone polygon must have at least three distinct vertices", http.StatusBadRequest, w, models.ErrInvalidInput)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	count, err := z.ZDB.CountDocuments(ctx, bson.M{"name": req.Name})
	if err != nil {
		domainError("failed to check zone name", w, err)
		return
	}
	if count > 0 {
		config.ErrorStatus("zone name already in use", http.StatusConflict, w, models.ErrInvalidInput)
		return
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	zone := models.Zone{
		ID:        primitive.NewObjectID(),
		Name:      req.Name,
		Geometry:  models.GeoPolygon{Type: "Polygon", Coordinates: req.Geometry.Coordinates},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := z.ZDB.InsertOne(ctx, zone); err != nil {
		domainError("failed to create zone", w, err)
		return
	}
	respondJSON(w, http.StatusCreated, zone)
}

// ListZonesHandler returns all zones.
func (z Zone) ListZonesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	zones, err := z.ZDB.Find(ctx, bson.M{})
	if err != nil {
		domainError("failed to list zones", w, err)
		return
	}
	respondJSON(w, http.StatusOK, zones)
}

// GetZoneHandler returns one zone.
func (z Zone) GetZoneHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["zone_id"])
	if err != nil {
		config.ErrorStatus("invalid zone id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	zone, err := z.ZDB.FindOne(ctx, bson.M{"_id": id})
	if err != nil {
		domainError("failed to get zone", w, err)
		return
	}
	respondJSON(w, http.StatusOK, zone)
}
