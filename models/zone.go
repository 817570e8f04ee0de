package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// GeoPolygon is a GeoJSON polygon. Only the first (outer) ring is used for
// containment; zones are created as single simple rings.
type GeoPolygon struct {
	Type        string        `bson:"type" json:"type"`
	Coordinates [][][]float64 `bson:"coordinates" json:"coordinates"`
}

// OuterRing returns the polygon's outer ring, or nil if absent.
func (p GeoPolygon) OuterRing() [][]float64 {
	if len(p.Coordinates) == 0 {
		return nil
	}
	return p.Coordinates[0]
}

// Zone represents a named polygonal administrative region
type Zone struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name      string             `bson:"name" json:"name"`
	Geometry  GeoPolygon         `bson:"geometry" json:"geometry"`
	CreatedAt primitive.DateTime `bson:"createdAt" json:"createdAt"`
	UpdatedAt primitive.DateTime `bson:"updatedAt" json:"updatedAt"`
}
