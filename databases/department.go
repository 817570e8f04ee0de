package databases

// go generate: mockery --name DepartmentDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civicgrid/civic-issue-api/models"
)

const departmentName = "departments"

// DepartmentDatabase contains the methods to use with the department collection
type DepartmentDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Department, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Department, error)
	InsertOne(ctx context.Context, department models.Department) (interface{}, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*mongo.UpdateResult, error)
	CountDocuments(ctx context.Context, filter interface{}) (int64, error)
}

type departmentDatabase struct {
	db DatabaseHelper
}

// NewDepartmentDatabase initializes a new instance of department database with the provided db connection
func NewDepartmentDatabase(db DatabaseHelper) DepartmentDatabase {
	return &departmentDatabase{
		db: db,
	}
}

func (d *departmentDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Department, error) {
	department := &models.Department{}
	err := d.db.Collection(departmentName).FindOne(ctx, filter, opts...).Decode(&department)
	if err != nil {
		return nil, err
	}
	return department, nil
}

func (d *departmentDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Department, error) {
	cursor, err := d.db.Collection(departmentName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var departments []models.Department
	if err := cursor.All(ctx, &departments); err != nil {
		return nil, err
	}
	return departments, nil
}

func (d *departmentDatabase) InsertOne(ctx context.Context, department models.Department) (interface{}, error) {
	return d.db.Collection(departmentName).InsertOne(ctx, department)
}

func (d *departmentDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*mongo.UpdateResult, error) {
	return d.db.Collection(departmentName).UpdateOne(ctx, filter, update)
}

func (d *departmentDatabase) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	return d.db.Collection(departmentName).CountDocuments(ctx, filter)
}
