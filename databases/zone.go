package databases

// go generate: mockery --name ZoneDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civicgrid/civic-issue-api/models"
)

const zoneName = "zones"

// ZoneDatabase contains the methods to use with the zone collection
type ZoneDatabase interface {
	FindOne(ctx context.Context, filter interface{}) (*models.Zone, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Zone, error)
	InsertOne(ctx context.Context, zone models.Zone) (interface{}, error)
	CountDocuments(ctx context.Context, filter interface{}) (int64, error)
}

type zoneDatabase struct {
	db DatabaseHelper
}

// NewZoneDatabase initializes a new instance of zone database with the provided db connection
func NewZoneDatabase(db DatabaseHelper) ZoneDatabase {
	return &zoneDatabase{
		db: db,
	}
}

func (z *zoneDatabase) FindOne(ctx context.Context, filter interface{}) (*models.Zone, error) {
	zone := &models.Zone{}
	err := z.db.Collection(zoneName).FindOne(ctx, filter).Decode(&zone)
	if err != nil {
		return nil, err
	}
	return zone, nil
}

func (z *zoneDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Zone, error) {
	cursor, err := z.db.Collection(zoneName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var zones []models.Zone
	if err := cursor.All(ctx, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

func (z *zoneDatabase) InsertOne(ctx context.Context, zone models.Zone) (interface{}, error) {
	return z.db.Collection(zoneName).InsertOne(ctx, zone)
}

func (z *zoneDatabase) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	return z.db.Collection(zoneName).CountDocuments(ctx, filter)
}
