package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/example/ec-shop/internal/domain/user"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository serves both accounts and their login sessions.
type UserRepository struct {
	users    *mongo.Collection
	sessions *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		users:    db.Collection(usersCollection),
		sessions: db.Collection(sessionsCollection),
	}
}

func (r *UserRepository) Insert(ctx context.Context, u *user.User) error {
	_, err := r.users.InsertOne(ctx, newUserDocument(u))
	if mongo.IsDuplicateKeyError(err) {
		return user.ErrEmailTaken
	}
	return classify("insert user", err)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	return r.findUser(ctx, bson.M{"_id": id})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.findUser(ctx, bson.M{"email": email})
}

func (r *UserRepository) findUser(ctx context.Context, filter bson.M) (*user.User, error) {
	var doc userDocument
	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, classify("find user", err)
	}
	return doc.toDomain()
}

func (r *UserRepository) InsertSession(ctx context.Context, s *user.Session) error {
	_, err := r.sessions.InsertOne(ctx, newSessionDocument(s))
	return classify("insert session", err)
}

func (r *UserRepository) FindSession(ctx context.Context, id string) (*user.Session, error) {
	var doc sessionDocument
	err := r.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, user.ErrSessionNotFound
	}
	if err != nil {
		return nil, classify("find session", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) EndSession(ctx context.Context, id string, at time.Time) error {
	result, err := r.sessions.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"logout_time": at}})
	if err != nil {
		return classify("end session", err)
	}
	if result.MatchedCount == 0 {
		return user.ErrSessionNotFound
	}
	return nil
}

func (r *UserRepository) ListSessions(ctx context.Context, userID string) ([]*user.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "login_time", Value: -1}})
	cursor, err := r.sessions.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, classify("find sessions", err)
	}
	var docs []sessionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("decode sessions", err)
	}

	sessions := make([]*user.Session, len(docs))
	for i := range docs {
		sessions[i] = docs[i].toDomain()
	}
	return sessions, nil
}
