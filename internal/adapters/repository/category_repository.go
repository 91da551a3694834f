package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mkrajcovic/blog-backend/internal/models"
)

// ErrNotFound is returned when a referenced document does not exist.
var ErrNotFound = errors.New("document not found")

// CategoryRepository is the narrow store interface the ordering engine works
// against. Sibling groups are addressed by parent id; nil means root.
type CategoryRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Category, error)
	FindOneByParentOrder(ctx context.Context, parentID *primitive.ObjectID, order int) (models.Category, error)
	FindByParent(ctx context.Context, parentID *primitive.ObjectID) ([]models.Category, error)
	All(ctx context.Context) ([]models.Category, error)
	Insert(ctx context.Context, category models.Category) (primitive.ObjectID, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	UpdateName(ctx context.Context, id primitive.ObjectID, name string) error
	UpdateLocale(ctx context.Context, id primitive.ObjectID, locale models.Locale) error
	SetOrder(ctx context.Context, id primitive.ObjectID, order int) error
	// ShiftOrders bulk-increments the order of every sibling of parentID whose
	// order is >= fromOrder by delta. Used to open or close a gap.
	ShiftOrders(ctx context.Context, parentID *primitive.ObjectID, fromOrder, delta int) error
	MaxOrder(ctx context.Context, parentID *primitive.ObjectID) (int, error)
}

type MongoCategoryRepository struct {
	DB *mongo.Database
}

func NewCategoryRepository(db *mongo.Database) CategoryRepository {
	return &MongoCategoryRepository{DB: db}
}

func (r *MongoCategoryRepository) coll() *mongo.Collection {
	return r.DB.Collection("categories")
}

// parentFilter builds the sibling-group filter. Root categories are stored
// with parent_id null.
func parentFilter(parentID *primitive.ObjectID) bson.M {
	if parentID == nil {
		return bson.M{"parent_id": nil}
	}
	return bson.M{"parent_id": *parentID}
}

func (r *MongoCategoryRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.Category, error) {
	var category models.Category
	err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&category)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Category{}, ErrNotFound
		}
		return models.Category{}, err
	}
	return category, nil
}

func (r *MongoCategoryRepository) FindOneByParentOrder(ctx context.Context, parentID *primitive.ObjectID, order int) (models.Category, error) {
	filter := parentFilter(parentID)
	filter["order"] = order

	var category models.Category
	err := r.coll().FindOne(ctx, filter).Decode(&category)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Category{}, ErrNotFound
		}
		return models.Category{}, err
	}
	return category, nil
}

func (r *MongoCategoryRepository) FindByParent(ctx context.Context, parentID *primitive.ObjectID) ([]models.Category, error) {
	opts := options.Find().SetSort(bson.M{"order": 1})
	cursor, err := r.coll().Find(ctx, parentFilter(parentID), opts)
	if err != nil {
		return nil, err
	}

	categories := []models.Category{}
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *MongoCategoryRepository) All(ctx context.Context) ([]models.Category, error) {
	cursor, err := r.coll().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	categories := []models.Category{}
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *MongoCategoryRepository) Insert(ctx context.Context, category models.Category) (primitive.ObjectID, error) {
	res, err := r.coll().InsertOne(ctx, category)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (r *MongoCategoryRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoCategoryRepository) UpdateName(ctx context.Context, id primitive.ObjectID, name string) error {
	return r.updateField(ctx, id, bson.M{"name": name})
}

func (r *MongoCategoryRepository) UpdateLocale(ctx context.Context, id primitive.ObjectID, locale models.Locale) error {
	return r.updateField(ctx, id, bson.M{"locale": locale})
}

func (r *MongoCategoryRepository) SetOrder(ctx context.Context, id primitive.ObjectID, order int) error {
	return r.updateField(ctx, id, bson.M{"order": order})
}

func (r *MongoCategoryRepository) updateField(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	res, err := r.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoCategoryRepository) ShiftOrders(ctx context.Context, parentID *primitive.ObjectID, fromOrder, delta int) error {
	filter := parentFilter(parentID)
	filter["order"] = bson.M{"$gte": fromOrder}

	_, err := r.coll().UpdateMany(ctx, filter, bson.M{"$inc": bson.M{"order": delta}})
	return err
}

func (r *MongoCategoryRepository) MaxOrder(ctx context.Context, parentID *primitive.ObjectID) (int, error) {
	opts := options.FindOne().SetSort(bson.M{"order": -1})

	var category models.Category
	err := r.coll().FindOne(ctx, parentFilter(parentID), opts).Decode(&category)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}
	return category.Order, nil
}
