package mongostore

import (
	"context"
	"errors"

	"github.com/example/ec-shop/internal/domain/order"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{collection: db.Collection(ordersCollection)}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	doc, err := newOrderDocument(o)
	if err != nil {
		return err
	}
	_, err = r.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) && o.IdempotencyKey != "" {
		return order.ErrDuplicateIdempotencyKey
	}
	return classify("insert order", err)
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	return r.findOne(ctx, bson.M{"user_id": userID, "idempotency_key": key})
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, classify("find orders", err)
	}
	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("decode orders", err)
	}

	orders := make([]*order.Order, 0, len(docs))
	for i := range docs {
		o, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M) (*order.Order, error) {
	var doc orderDocument
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, classify("find order", err)
	}
	return doc.toDomain()
}
