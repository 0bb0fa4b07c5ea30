package mongostore

import (
	"context"
	"errors"

	"github.com/example/ec-shop/internal/domain/cart"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CartRepository keeps one document per user. Every write is conditional on the version read.
type CartRepository struct {
	collection *mongo.Collection
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{collection: db.Collection(cartsCollection)}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var doc cartDocument
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, cart.ErrCartNotFound
	}
	if err != nil {
		return nil, classify("get cart", err)
	}
	return doc.toDomain(), nil
}

func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	next := c.Version + 1
	doc := newCartDocument(c, next)

	if c.Version == 0 {
		_, err := r.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return cart.ErrVersionConflict
		}
		if err != nil {
			return classify("insert cart", err)
		}
		c.Version = next
		return nil
	}

	result, err := r.collection.ReplaceOne(ctx, bson.M{"user_id": c.UserID, "version": c.Version}, doc)
	if err != nil {
		return classify("replace cart", err)
	}
	if result.MatchedCount == 0 {
		return cart.ErrVersionConflict
	}
	c.Version = next
	return nil
}

func (r *CartRepository) DeleteVersion(ctx context.Context, userID string, version int64) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID, "version": version})
	if err != nil {
		return classify("delete cart", err)
	}
	if result.DeletedCount == 1 {
		return nil
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return classify("count carts", err)
	}
	if n == 0 {
		return cart.ErrCartNotFound
	}
	return cart.ErrVersionConflict
}
