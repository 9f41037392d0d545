package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultOpTimeout = 5 * time.Second

type MongoStore struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll, timeout: defaultOpTimeout}
}

// EnsureIndexes creates the backlog and history indexes.
func (r *MongoStore) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "receiver_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetBackground(true).SetName("receiver_status_created_idx"),
		},
		{
			Keys: bson.D{
				{Key: "sender_id", Value: 1},
				{Key: "receiver_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetBackground(true).SetName("pair_created_idx"),
		},
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.Indexes().CreateMany(ctx, models)
	return err
}

func (r *MongoStore) Create(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MongoStore) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var m domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MongoStore) FindPending(ctx context.Context, receiverID string) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	filter := bson.M{"receiver_id": receiverID, "status": domain.StatusSent}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *MongoStore) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	filter := bson.M{"_id": id, "status": domain.StatusSent}
	update := bson.M{"$set": bson.M{"status": domain.StatusDelivered, "delivered_at": at}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoStore) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	filter := bson.M{"_id": id, "status": bson.M{"$ne": domain.StatusRead}}
	// pipeline update so a message still in Sent gets delivered_at in the same write
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "status", Value: domain.StatusRead},
			{Key: "read_at", Value: at},
			{Key: "delivered_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$delivered_at", at}}}},
		}}},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoStore) History(ctx context.Context, userA, userB string, limit int64, before time.Time) ([]*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	filter := bson.M{"$or": pairFilter(userA, userB)}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	out, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MongoStore) Conversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	unread := bson.A{domain.StatusSent, domain.StatusDelivered}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender_id": userID},
			bson.M{"receiver_id": userID},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$addFields", Value: bson.M{
			"counterpart": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$sender_id", userID}}, "$receiver_id", "$sender_id"}},
			"unread_flag": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$receiver_id", userID}},
					bson.M{"$in": bson.A{"$status", unread}},
				}},
				1, 0,
			}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":             "$counterpart",
			"last_message_id": bson.M{"$first": "$_id"},
			"last_sender_id":  bson.M{"$first": "$sender_id"},
			"last_body":       bson.M{"$first": "$body"},
			"last_at":         bson.M{"$first": "$created_at"},
			"unread":          bson.M{"$sum": "$unread_flag"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "last_at", Value: -1}}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate conversations: %w", err)
	}
	defer cur.Close(ctx)
	out := []domain.ConversationSummary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoStore) UnreadByCounterpart(ctx context.Context, userID string) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"receiver_id": userID,
			"status":      bson.M{"$in": bson.A{domain.StatusSent, domain.StatusDelivered}},
		}}},
		{{Key: "$group", Value: bson.M{"_id": "$sender_id", "count": bson.M{"$sum": 1}}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate unread: %w", err)
	}
	defer cur.Close(ctx)
	out := map[string]int64{}
	for cur.Next(ctx) {
		var row struct {
			Sender string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.Sender] = row.Count
	}
	return out, cur.Err()
}

func (r *MongoStore) DeleteConversation(ctx context.Context, userA, userB string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.DeleteMany(ctx, bson.M{"$or": pairFilter(userA, userB)})
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Message, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func pairFilter(userA, userB string) bson.A {
	return bson.A{
		bson.M{"sender_id": userA, "receiver_id": userB},
		bson.M{"sender_id": userB, "receiver_id": userA},
	}
}
