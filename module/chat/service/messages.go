package service

import (
	"context"

	"SCProject/module/chat/model"
	errs "SCProject/tools/errs"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultHistoryLimit = 50

// MessageStore is the durable side of the chat protocol. Implementations
// must keep per-row updates atomic; the protocol layer provides ordering.
type MessageStore interface {
	Save(ctx context.Context, m *model.ChatMessage) error
	Get(ctx context.Context, id int64) (*model.ChatMessage, error)
	// History returns messages between userID and peerID ordered by
	// creation time, excluding rows userID has soft-deleted.
	History(ctx context.Context, userID, peerID int64, offset, limit int64) ([]*model.ChatMessage, error)
	// MarkRead flags all unread peer->reader messages as read and returns
	// how many rows changed.
	MarkRead(ctx context.Context, readerID, peerID int64) (int64, error)
	HardDelete(ctx context.Context, id int64) error
	MarkDeletedForReceiver(ctx context.Context, id int64) error
}

type MongoMessageStore struct {
	coll *mongo.Collection
}

func NewMongoMessageStore(db *mongo.Database) *MongoMessageStore {
	return &MongoMessageStore{coll: db.Collection(model.MessageCollection)}
}

func (s *MongoMessageStore) Save(ctx context.Context, m *model.ChatMessage) error {
	_, err := s.coll.InsertOne(ctx, m)
	return errors.Wrap(err, "save message")
}

func (s *MongoMessageStore) Get(ctx context.Context, id int64) (*model.ChatMessage, error) {
	var m model.ChatMessage
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get message")
	}
	return &m, nil
}

func (s *MongoMessageStore) History(ctx context.Context, userID, peerID int64, offset, limit int64) ([]*model.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userID, "receiver_id": peerID, "deleted_for_sender": false},
		bson.M{"sender_id": peerID, "receiver_id": userID, "deleted_for_receiver": false},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(offset).
		SetLimit(limit)

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "history find")
	}
	defer cur.Close(ctx)

	var out []*model.ChatMessage
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "history decode")
	}
	return out, nil
}

func (s *MongoMessageStore) MarkRead(ctx context.Context, readerID, peerID int64) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"sender_id": peerID, "receiver_id": readerID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "mark read")
	}
	return res.ModifiedCount, nil
}

func (s *MongoMessageStore) HardDelete(ctx context.Context, id int64) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "hard delete")
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *MongoMessageStore) MarkDeletedForReceiver(ctx context.Context, id int64) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"deleted_for_receiver": true}},
	)
	if err != nil {
		return errors.Wrap(err, "soft delete")
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}
