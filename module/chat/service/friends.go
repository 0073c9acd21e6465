package service

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const FriendRequestCollection = "friend_requests"

// FriendRequestCounter supplies the pending-request badge pushed on the
// notification channel. The friendship tables themselves belong to the
// CRUD side of the app; the gateway only counts.
type FriendRequestCounter interface {
	Count(ctx context.Context, userID int64) (int64, error)
}

type MongoFriendRequestCounter struct {
	coll *mongo.Collection
}

func NewMongoFriendRequestCounter(db *mongo.Database) *MongoFriendRequestCounter {
	return &MongoFriendRequestCounter{coll: db.Collection(FriendRequestCollection)}
}

func (c *MongoFriendRequestCounter) Count(ctx context.Context, userID int64) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, bson.M{"receiver_id": userID, "status": "pending"})
	return n, errors.Wrap(err, "friend request count")
}
