package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Budget tracks a department's allocated and spent funds.
type Budget struct {
	Total float64 `bson:"total" json:"total"`
	Spent float64 `bson:"spent" json:"spent"`
}

// Department represents an organizational unit within one zone responsible
// for a set of issue categories. (name, zone) is unique; two departments in
// one zone may claim the same category, in which case routing picks the one
// with the lowest id.
type Department struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	Name       string              `bson:"name" json:"name"`
	Zone       primitive.ObjectID  `bson:"zone" json:"zone"`
	Subhead    *primitive.ObjectID `bson:"subhead,omitempty" json:"subhead,omitempty"`
	Categories []string            `bson:"categories" json:"categories"`
	Budget     Budget              `bson:"budget" json:"budget"`
	CreatedAt  primitive.DateTime  `bson:"createdAt" json:"createdAt"`
	UpdatedAt  primitive.DateTime  `bson:"updatedAt" json:"updatedAt"`
}
