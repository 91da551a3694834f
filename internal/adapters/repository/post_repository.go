package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mkrajcovic/blog-backend/internal/models"
)

type PostRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Post, error)
	FindBySlug(ctx context.Context, slug string) (models.Post, error)
	FindAll(ctx context.Context, locale models.Locale) ([]models.Post, error)
	Insert(ctx context.Context, post models.Post) (primitive.ObjectID, error)
	Update(ctx context.Context, post models.Post) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	CountByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error)
	IncrementViews(ctx context.Context, id primitive.ObjectID) error
	ToggleLike(ctx context.Context, id, userID primitive.ObjectID) (liked bool, err error)
}

type MongoPostRepository struct {
	DB *mongo.Database
}

func NewPostRepository(db *mongo.Database) PostRepository {
	return &MongoPostRepository{DB: db}
}

func (r *MongoPostRepository) coll() *mongo.Collection {
	return r.DB.Collection("posts")
}

func (r *MongoPostRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.Post, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoPostRepository) FindBySlug(ctx context.Context, slug string) (models.Post, error) {
	return r.findOne(ctx, bson.M{"slug": slug})
}

func (r *MongoPostRepository) findOne(ctx context.Context, filter bson.M) (models.Post, error) {
	var post models.Post
	err := r.coll().FindOne(ctx, filter).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, err
	}
	return post, nil
}

func (r *MongoPostRepository) FindAll(ctx context.Context, locale models.Locale) ([]models.Post, error) {
	filter := bson.M{}
	if locale != "" {
		filter["locale"] = locale
	}
	opts := options.Find().SetSort(bson.M{"createdAt": -1})

	cursor, err := r.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	posts := []models.Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *MongoPostRepository) Insert(ctx context.Context, post models.Post) (primitive.ObjectID, error) {
	res, err := r.coll().InsertOne(ctx, post)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (r *MongoPostRepository) Update(ctx context.Context, post models.Post) error {
	post.UpdatedAt = time.Now()
	res, err := r.coll().ReplaceOne(ctx, bson.M{"_id": post.ID}, post)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoPostRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoPostRepository) CountByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error) {
	return r.coll().CountDocuments(ctx, bson.M{"author": author})
}

func (r *MongoPostRepository) IncrementViews(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	return err
}

// ToggleLike adds the user to the likes set, or removes them when already
// present. Both paths are single atomic updates.
func (r *MongoPostRepository) ToggleLike(ctx context.Context, id, userID primitive.ObjectID) (bool, error) {
	res, err := r.coll().UpdateOne(ctx,
		bson.M{"_id": id, "likes": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"likes": userID}},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	res, err = r.coll().UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$pull": bson.M{"likes": userID}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, ErrNotFound
	}
	return false, nil
}
