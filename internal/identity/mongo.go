package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the player directory.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. plots
	Collection string // e.g. players
}

// MongoLookup ищет игроков в коллекции MongoDB с документами
// {name, name_lower, uuid}.
type MongoLookup struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

type playerDoc struct {
	Name      string `bson:"name"`
	NameLower string `bson:"name_lower"`
	UUID      string `bson:"uuid"`
}

// NewMongoLookup подключается к MongoDB и создаёт индекс по имени.
func NewMongoLookup(ctx context.Context, cfg MongoConfig) (*MongoLookup, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "plots"
	}
	if cfg.Collection == "" {
		cfg.Collection = "players"
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	m := &MongoLookup{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := m.ensureIndexes(cctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *MongoLookup) ensureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "name_lower", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("name_lower_unique"),
	}
	_, err := m.collection.Indexes().CreateOne(ctx, idx)
	if err != nil {
		return fmt.Errorf("mongo index: %w", err)
	}
	return nil
}

// Lookup ищет игрока по имени без учёта регистра.
func (m *MongoLookup) Lookup(ctx context.Context, name string) (uuid.UUID, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	var doc playerDoc
	err := m.collection.FindOne(ctx, bson.M{"name_lower": strings.ToLower(name)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(doc.UUID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("игрок %s: некорректный uuid %q: %w", name, doc.UUID, err)
	}
	return id, true, nil
}

// Upsert сохраняет соответствие имени и UUID.
func (m *MongoLookup) Upsert(ctx context.Context, name string, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	doc := playerDoc{Name: name, NameLower: strings.ToLower(name), UUID: id.String()}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"name_lower": doc.NameLower}, doc, options.Replace().SetUpsert(true))
	return err
}

// Close closes the MongoDB connection.
func (m *MongoLookup) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
