package service

import (
	"context"
	"time"

	"SCProject/module/chat/model"
	errs "SCProject/tools/errs"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrOffsetConflict reports a lost check-and-advance race: some other
// writer advanced the session between the caller's read and its update.
var ErrOffsetConflict = errors.New("upload offset conflict")

// UploadStore persists resumable-upload session metadata. AdvanceOffset is
// the atomic check-and-increment the chunk protocol leans on: concurrent
// overlapping writers are rejected, never interleaved.
type UploadStore interface {
	Create(ctx context.Context, s *model.UploadSession) error
	// GetOwned returns the session only when ownerID matches; a session
	// owned by someone else reads as not-found.
	GetOwned(ctx context.Context, id string, ownerID int64) (*model.UploadSession, error)
	// AdvanceOffset moves bytes_received from `from` to `from+by` iff the
	// stored offset still equals `from` and the session is not completed.
	// Returns ErrOffsetConflict otherwise.
	AdvanceOffset(ctx context.Context, id string, from, by int64) error
	Complete(ctx context.Context, id string, filePath string) error
	// PurgeIdleBefore removes incomplete sessions untouched since cutoff
	// and returns them so callers can remove their temp files.
	PurgeIdleBefore(ctx context.Context, cutoff time.Time) ([]*model.UploadSession, error)
}

type MongoUploadStore struct {
	coll *mongo.Collection
}

func NewMongoUploadStore(db *mongo.Database) *MongoUploadStore {
	return &MongoUploadStore{coll: db.Collection(model.UploadCollection)}
}

func (s *MongoUploadStore) Create(ctx context.Context, sess *model.UploadSession) error {
	_, err := s.coll.InsertOne(ctx, sess)
	return errors.Wrap(err, "create upload session")
}

func (s *MongoUploadStore) GetOwned(ctx context.Context, id string, ownerID int64) (*model.UploadSession, error) {
	var sess model.UploadSession
	err := s.coll.FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get upload session")
	}
	return &sess, nil
}

func (s *MongoUploadStore) AdvanceOffset(ctx context.Context, id string, from, by int64) error {
	now := time.Now().UTC()
	res := s.coll.FindOneAndUpdate(ctx,
		bson.M{
			"_id":            id,
			"bytes_received": from,
			"state":          bson.M{"$ne": model.UploadCompleted},
		},
		bson.M{
			"$inc": bson.M{"bytes_received": by},
			"$set": bson.M{"state": model.UploadReceiving, "updated_at": now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrOffsetConflict
		}
		return errors.Wrap(err, "advance offset")
	}
	return nil
}

func (s *MongoUploadStore) Complete(ctx context.Context, id string, filePath string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "state": bson.M{"$ne": model.UploadCompleted}},
		bson.M{"$set": bson.M{
			"state":      model.UploadCompleted,
			"file_path":  filePath,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return errors.Wrap(err, "complete upload session")
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *MongoUploadStore) PurgeIdleBefore(ctx context.Context, cutoff time.Time) ([]*model.UploadSession, error) {
	filter := bson.M{
		"state":      bson.M{"$ne": model.UploadCompleted},
		"updated_at": bson.M{"$lt": cutoff},
	}

	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "purge find")
	}
	defer cur.Close(ctx)

	var victims []*model.UploadSession
	if err := cur.All(ctx, &victims); err != nil {
		return nil, errors.Wrap(err, "purge decode")
	}
	if len(victims) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(victims))
	for _, v := range victims {
		ids = append(ids, v.ID)
	}
	if _, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return nil, errors.Wrap(err, "purge delete")
	}
	return victims, nil
}
