package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/turbolytics/docket/internal"
	"github.com/turbolytics/docket/internal/index"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	DefaultDatabase   = "docket"
	DefaultCollection = "indexes"
)

var _ index.Store = (*IndexStore)(nil)

type document struct {
	Dataset    int                           `bson:"_id"`
	Files      map[string]internal.Reference `bson:"files"`
	LastPage   int                           `bson:"last_page"`
	Complete   bool                          `bson:"complete"`
	Started    bool                          `bson:"started"`
	EmptyPages int                           `bson:"empty_pages,omitempty"`
	UpdatedAt  time.Time                     `bson:"updated_at"`
}

// IndexStore keeps one document per dataset, keyed by dataset number.
// Replacing a single document is atomic in MongoDB.
type IndexStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
	now        func() time.Time
}

// NewIndexStore connects using a mongodb:// URL. The database comes from the
// URL path and the collection from the collection query parameter.
func NewIndexStore(ctx context.Context, uri *url.URL, logger *zap.Logger) (*IndexStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	query := uri.Query()
	collection := query.Get("collection")
	if collection == "" {
		collection = DefaultCollection
	}
	query.Del("collection")

	database := strings.Trim(uri.Path, "/")
	if database == "" {
		database = DefaultDatabase
	}

	cleanURI := *uri
	cleanURI.RawQuery = query.Encode()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cleanURI.String()))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("MongoDB index store ready",
		zap.String("database", database),
		zap.String("collection", collection),
	)
	return &IndexStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *IndexStore) Load(ctx context.Context, dataset int) (*index.Index, error) {
	var doc document
	err := s.collection.FindOne(ctx, bson.M{"_id": dataset}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		s.logger.Info("No index found", zap.Int("dataset", dataset))
		return index.New(dataset), nil
	}
	if err != nil {
		return nil, err
	}

	idx := &index.Index{
		Dataset:    doc.Dataset,
		Files:      doc.Files,
		LastPage:   doc.LastPage,
		Complete:   doc.Complete,
		Started:    doc.Started,
		EmptyPages: doc.EmptyPages,
		UpdatedAt:  doc.UpdatedAt,
	}
	if idx.Files == nil {
		idx.Files = index.New(dataset).Files
	}
	return idx, nil
}

func (s *IndexStore) Save(ctx context.Context, idx *index.Index) error {
	doc := document{
		Dataset:    idx.Dataset,
		Files:      idx.Files,
		LastPage:   idx.LastPage,
		Complete:   idx.Complete,
		Started:    idx.Started,
		EmptyPages: idx.EmptyPages,
		UpdatedAt:  s.now().UTC(),
	}

	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": idx.Dataset},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return err
	}
	idx.UpdatedAt = doc.UpdatedAt
	return nil
}

func (s *IndexStore) Close() error {
	return s.client.Disconnect(context.Background())
}
