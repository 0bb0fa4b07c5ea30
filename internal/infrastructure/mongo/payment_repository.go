package mongostore

import (
	"context"

	"github.com/example/ec-shop/internal/domain/payment"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PaymentRepository struct {
	collection *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{collection: db.Collection(paymentsCollection)}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *payment.Payment) error {
	doc, err := newPaymentDocument(p)
	if err != nil {
		return err
	}
	_, err = r.collection.InsertOne(ctx, doc)
	return classify("insert payment", err)
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]*payment.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, classify("find payments", err)
	}
	var docs []paymentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("decode payments", err)
	}

	payments := make([]*payment.Payment, 0, len(docs))
	for i := range docs {
		p, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}
