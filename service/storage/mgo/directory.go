package mgo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VoiceGate/logger"
	"VoiceGate/module/user/model"
	"VoiceGate/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// Config represents the MongoDB configuration.
type Config struct {
	Uri         string
	Database    string
	MaxPoolSize int
}

func (c *Config) ValidateAndSetDefaults() error {
	if c.Uri == "" {
		return errors.New("mongo uri is required")
	}
	if c.Database == "" {
		return errors.New("mongo database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 20
	}
	return nil
}

// Directory stores users as {username, client_id, created_at} documents with a
// unique index on username.
type Directory struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewDirectory(ctx context.Context, cfg Config) (*Directory, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	opts := options.Client().ApplyURI(cfg.Uri).SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	coll := cli.Database(cfg.Database).Collection(usersCollection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "client_id", Value: 1}}},
	})
	if err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ensure indexes: %w", err)
	}
	logger.Infof("[Directory] mongo ready db=%s", cfg.Database)
	return &Directory{client: cli, coll: coll}, nil
}

func (d *Directory) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func (d *Directory) RegisterUsername(ctx context.Context, username string) (model.User, error) {
	u := model.User{Username: username, CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	if _, err := d.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.User{}, errs.ErrAlreadyExists.WrapMsg("", "username", username)
		}
		return model.User{}, errs.Storage(err, "register username", "username", username)
	}
	return u, nil
}

func (d *Directory) LookupClientID(ctx context.Context, username string) (string, bool, error) {
	var u model.User
	err := d.coll.FindOne(ctx, bson.M{"username": username}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, errs.ErrNotFound.WrapMsg("", "username", username)
		}
		return "", false, errs.Storage(err, "lookup client id", "username", username)
	}
	if u.ClientID == nil {
		return "", false, nil
	}
	return *u.ClientID, true, nil
}

func (d *Directory) SetClientID(ctx context.Context, username, clientID string) error {
	res, err := d.coll.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"client_id": clientID}})
	if err != nil {
		return errs.Storage(err, "set client id", "username", username)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("", "username", username)
	}
	return nil
}

func (d *Directory) ClearClientID(ctx context.Context, clientID string) (int64, error) {
	res, err := d.coll.UpdateMany(ctx,
		bson.M{"client_id": clientID},
		bson.M{"$set": bson.M{"client_id": nil}})
	if err != nil {
		return 0, errs.Storage(err, "clear client id", "clientId", clientID)
	}
	return res.ModifiedCount, nil
}

func (d *Directory) ReleaseUsername(ctx context.Context, username, clientID string) error {
	n, err := d.coll.CountDocuments(ctx, bson.M{"username": username})
	if err != nil {
		return errs.Storage(err, "release username", "username", username)
	}
	if n == 0 {
		return errs.ErrNotFound.WrapMsg("", "username", username)
	}
	_, err = d.coll.UpdateOne(ctx,
		bson.M{"username": username, "client_id": clientID},
		bson.M{"$set": bson.M{"client_id": nil}})
	if err != nil {
		return errs.Storage(err, "release username", "username", username)
	}
	return nil
}

func (d *Directory) ListUsers(ctx context.Context) ([]model.User, error) {
	cur, err := d.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, errs.Storage(err, "list users")
	}
	var out []model.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Storage(err, "list users")
	}
	return out, nil
}

func (d *Directory) RenameUsername(ctx context.Context, oldName, newName string) error {
	res, err := d.coll.UpdateOne(ctx,
		bson.M{"username": oldName},
		bson.M{"$set": bson.M{"username": newName}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrAlreadyExists.WrapMsg("", "username", newName)
		}
		return errs.Storage(err, "rename username", "from", oldName, "to", newName)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("", "username", oldName)
	}
	return nil
}

func (d *Directory) DeleteUsername(ctx context.Context, username string) error {
	res, err := d.coll.DeleteOne(ctx, bson.M{"username": username})
	if err != nil {
		return errs.Storage(err, "delete username", "username", username)
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound.WrapMsg("", "username", username)
	}
	return nil
}
