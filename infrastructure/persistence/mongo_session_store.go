package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reelpipe/domain/repository"
	"reelpipe/infrastructure/utils"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const sessionCollection = "platform_sessions"

// NewMongoDb connects and pings the session database.
func NewMongoDb(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

type sessionDocument struct {
	Username  string    `bson:"_id"`
	Blob      []byte    `bson:"blob"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoSessionStore is the session store used when sessions.backend=mongo.
type MongoSessionStore struct {
	collection *mongo.Collection
}

func NewMongoSessionStore(client *mongo.Client, database string) *MongoSessionStore {
	return &MongoSessionStore{collection: client.Database(database).Collection(sessionCollection)}
}

var _ repository.ISessionStore = (*MongoSessionStore)(nil)

func (s *MongoSessionStore) Load(ctx context.Context, username string) ([]byte, error) {
	var doc sessionDocument
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: username}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Blob, nil
}

func (s *MongoSessionStore) Save(ctx context.Context, username string, blob []byte) error {
	doc := sessionDocument{Username: username, Blob: blob, UpdatedAt: utils.GetCurrentTime()}
	_, err := s.collection.ReplaceOne(ctx, bson.D{{Key: "_id", Value: username}}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoSessionStore) Delete(ctx context.Context, username string) error {
	_, err := s.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: username}})
	return err
}
