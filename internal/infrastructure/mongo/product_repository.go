package mongostore

import (
	"context"
	"errors"

	"github.com/example/ec-shop/internal/domain/product"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ProductRepository struct {
	collection *mongo.Collection
}

func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{collection: db.Collection(productsCollection)}
}

func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) error {
	doc, err := newProductDocument(p)
	if err != nil {
		return err
	}
	_, err = r.collection.InsertOne(ctx, doc)
	return classify("insert product", err)
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	doc, err := newProductDocument(p)
	if err != nil {
		return err
	}
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": p.ID}, doc)
	if err != nil {
		return classify("update product", err)
	}
	if result.MatchedCount == 0 {
		return product.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify("delete product", err)
	}
	if result.DeletedCount == 0 {
		return product.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (*product.Product, error) {
	var doc productDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, classify("find product", err)
	}
	return doc.toDomain()
}

func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*product.Product, error) {
	found := make(map[string]*product.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	docs, err := r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range docs {
		found[p.ID] = p
	}
	return found, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*product.Product, error) {
	return r.find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *ProductRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*product.Product, error) {
	var findOpts []*options.FindOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	cursor, err := r.collection.Find(ctx, filter, findOpts...)
	if err != nil {
		return nil, classify("find products", err)
	}
	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("decode products", err)
	}

	products := make([]*product.Product, 0, len(docs))
	for i := range docs {
		p, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}
