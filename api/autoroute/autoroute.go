// Package autoroute resolves an inbound report's administrative zone from
// its coordinates and its responsible department from its category.
package autoroute

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civicgrid/civic-issue-api/databases"
	"github.com/civicgrid/civic-issue-api/geo"
	"github.com/civicgrid/civic-issue-api/models"
)

// Resolver performs zone and department resolution. It has no side effects:
// resolving the same point or category twice against unchanged data yields
// the same answer.
type Resolver struct {
	ZDB databases.ZoneDatabase
	DDB databases.DepartmentDatabase
}

// New creates a Resolver over the given zone and department collections.
func New(zdb databases.ZoneDatabase, ddb databases.DepartmentDatabase) *Resolver {
	return &Resolver{ZDB: zdb, DDB: ddb}
}

// ResolveZone returns the zone whose polygon contains the point, or nil if
// no zone does. Zones are checked in _id order, so a point inside two
// overlapping zones (a data-entry error) resolves to the lowest id.
func (r *Resolver) ResolveZone(ctx context.Context, point models.GeoPoint) (*models.Zone, error) {
	if len(point.Coordinates) < 2 {
		return nil, fmt.Errorf("point has no coordinates: %w", models.ErrInvalidInput)
	}

	sort := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	zones, err := r.ZDB.Find(ctx, bson.M{}, sort)
	if err != nil {
		return nil, fmt.Errorf("load zones: %w", err)
	}

	p := geo.Point{Lon: point.Coordinates[0], Lat: point.Coordinates[1]}
	for i := range zones {
		ring := geo.RingFromCoords(zones[i].Geometry.OuterRing())
		if ring.Contains(p) {
			return &zones[i], nil
		}
	}
	return nil, nil
}

// ResolveDepartment finds the department responsible for the category within
// the zone. The submitted category is matched first; the fallback (an
// automated classifier's prediction) is tried only when the primary finds
// nothing and differs case-insensitively from it. Matching is
// case-insensitive exact-string; when several departments claim the same
// category the lowest _id wins. Returns nil when both stages fail. The
// caller's category field is never mutated here.
func (r *Resolver) ResolveDepartment(ctx context.Context, zoneID primitive.ObjectID, primaryCategory, fallbackCategory string) (*models.Department, error) {
	primary := strings.TrimSpace(primaryCategory)
	fallback := strings.TrimSpace(fallbackCategory)

	dept, err := r.findByCategory(ctx, zoneID, primary)
	if err != nil {
		return nil, err
	}
	if dept != nil {
		return dept, nil
	}

	if fallback == "" || strings.EqualFold(fallback, primary) {
		return nil, nil
	}
	return r.findByCategory(ctx, zoneID, fallback)
}

func (r *Resolver) findByCategory(ctx context.Context, zoneID primitive.ObjectID, category string) (*models.Department, error) {
	if category == "" {
		return nil, nil
	}

	filter := bson.M{
		"zone": zoneID,
		"categories": bson.M{
			"$elemMatch": bson.M{
				"$regex":   "^" + regexp.QuoteMeta(category) + "$",
				"$options": "i",
			},
		},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})

	dept, err := r.DDB.FindOne(ctx, filter, opts)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find department for category %q: %w", category, err)
	}
	return dept, nil
}
