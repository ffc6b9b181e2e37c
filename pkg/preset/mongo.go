package preset

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// DefaultCollection is the collection presets are stored in.
const DefaultCollection = "presets"

// presetDoc is the stored form. The tree is kept as its JSON text since
// the leaf/split union has no natural BSON shape.
type presetDoc struct {
	Name      string     `bson:"_id"`
	Layout    string     `bson:"layout"`
	FigSize   [2]float64 `bson:"figsize"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

// MongoStore keeps presets in a MongoDB collection keyed by name.
type MongoStore struct {
	coll   *mongo.Collection
	client *mongo.Client
}

// NewMongoStore uses the given collection. Close does not disconnect.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// DialMongo connects to uri, pings the primary and returns a store on the
// presets collection of database db. Close disconnects the client.
func DialMongo(ctx context.Context, uri, db string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{coll: client.Database(db).Collection(DefaultCollection), client: client}, nil
}

// Close disconnects a client opened by [DialMongo].
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) List(ctx context.Context) ([]*Preset, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer cur.Close(ctx)

	var out []*Preset
	for cur.Next(ctx) {
		var doc presetDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode preset: %w", err)
		}
		p, err := fromDoc(doc)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, cur.Err()
}

func (s *MongoStore) Get(ctx context.Context, name string) (*Preset, error) {
	if err := errors.ValidatePresetName(name); err != nil {
		return nil, err
	}
	var doc presetDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("get preset: %w", err)
	}
	return fromDoc(doc)
}

func (s *MongoStore) Put(ctx context.Context, p *Preset) error {
	if err := errors.ValidatePresetName(p.Name); err != nil {
		return err
	}
	if err := p.Validate(nil); err != nil {
		return err
	}
	tree, err := layout.Marshal(p.Layout)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	doc := presetDoc{
		Name:      p.Name,
		Layout:    string(tree),
		FigSize:   [2]float64{p.FigSize.Width, p.FigSize.Height},
		UpdatedAt: p.UpdatedAt,
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": p.Name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put preset: %w", err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, name string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": name}); err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	return nil
}

func fromDoc(doc presetDoc) (*Preset, error) {
	tree, err := layout.Unmarshal([]byte(doc.Layout))
	if err != nil {
		return nil, err
	}
	return &Preset{
		Name:      doc.Name,
		Layout:    tree,
		FigSize:   layout.FigureSize{Width: doc.FigSize[0], Height: doc.FigSize[1]},
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

var _ Store = (*MongoStore)(nil)
