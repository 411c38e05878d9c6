package mongo

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

	domainchat "socialnet/internal/domain/chat"
)

const conversationsCollection = "chats"

// ConversationRepository stores each conversation as one document with an
// embedded message log. A unique index on pair_key enforces one conversation
// per unordered pair; appends and seen updates are single-document updates.
type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(ctx context.Context, db *mongo.Database) (*ConversationRepository, error) {
	col := db.Collection(conversationsCollection)
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pair_key", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_pair_key")},
		{Keys: bson.D{{Key: "users", Value: 1}, {Key: "updated_at", Value: -1}}, Options: options.Index().SetName("users_updated_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: ensure chat indexes: %w", err)
	}
	return &ConversationRepository{col: col}, nil
}

func (r *ConversationRepository) FindConversation(ctx context.Context, userA, userB string) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{"pair_key": domainchat.PairKey(userA, userB)})
}

func (r *ConversationRepository) GetConversation(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": strings.TrimSpace(string(id))})
}

func (r *ConversationRepository) CreateConversation(ctx context.Context, userA, userB string, now time.Time) (*domainchat.Conversation, error) {
	a, b, err := domainchat.ValidateParticipants(userA, userB)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC().Truncate(time.Millisecond)
	doc := conversationDocument{
		ID:        uuid.NewString(),
		PairKey:   domainchat.PairKey(a, b),
		Users:     []string{a, b},
		Messages:  []messageDocument{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domainchat.ErrConflict
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, id domainchat.ConversationID, senderID, content string, now time.Time) (*domainchat.Message, error) {
	text, err := domainchat.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC().Truncate(time.Millisecond)
	msg := messageDocument{
		ID:        uuid.NewString(),
		Sender:    strings.TrimSpace(senderID),
		Content:   text,
		Seen:      false,
		CreatedAt: now,
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": string(id)},
		bson.M{
			"$push": bson.M{"messages": msg},
			"$set":  bson.M{"updated_at": now},
		},
	)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, domainchat.ErrNotFound
	}
	out := msg.toDomain(id)
	return &out, nil
}

func (r *ConversationRepository) MarkLastMessageSeen(ctx context.Context, id domainchat.ConversationID) (*domainchat.Message, error) {
	filter := bson.M{"_id": string(id), "messages.0": bson.M{"$exists": true}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"messages": bson.M{"$slice": -1}})

	var doc conversationDocument
	err := r.col.FindOneAndUpdate(ctx, filter, markLastSeenPipeline(), opts).Decode(&doc)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		if _, err := r.findOne(ctx, bson.M{"_id": string(id)}); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if len(doc.Messages) == 0 {
		return nil, nil
	}
	out := doc.Messages[len(doc.Messages)-1].toDomain(id)
	return &out, nil
}

func (r *ConversationRepository) ListConversationsForUser(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"users": strings.TrimSpace(userID)},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := make([]domainchat.Conversation, 0)
	for cur.Next(ctx) {
		var doc conversationDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, *doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

// markLastSeenPipeline rewrites the messages array in place, setting seen on
// the final element only. Running it server side keeps the update atomic.
func markLastSeenPipeline() mongo.Pipeline {
	lastIndex := bson.D{{Key: "$subtract", Value: bson.A{bson.D{{Key: "$size", Value: "$messages"}}, 1}}}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "messages", Value: bson.D{{Key: "$map", Value: bson.D{
			{Key: "input", Value: bson.D{{Key: "$range", Value: bson.A{0, bson.D{{Key: "$size", Value: "$messages"}}}}}},
			{Key: "as", Value: "i"},
			{Key: "in", Value: bson.D{{Key: "$let", Value: bson.D{
				{Key: "vars", Value: bson.D{{Key: "m", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$messages", "$$i"}}}}}},
				{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$$i", lastIndex}}},
					bson.D{{Key: "$mergeObjects", Value: bson.A{"$$m", bson.D{{Key: "seen", Value: true}}}}},
					"$$m",
				}}}},
			}}}},
		}}}}}}},
	}
}

type conversationDocument struct {
	ID        string            `bson:"_id"`
	PairKey   string            `bson:"pair_key"`
	Users     []string          `bson:"users"`
	Messages  []messageDocument `bson:"messages"`
	CreatedAt time.Time         `bson:"created_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

type messageDocument struct {
	ID        string    `bson:"_id"`
	Sender    string    `bson:"sender"`
	Content   string    `bson:"content"`
	Seen      bool      `bson:"seen"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d conversationDocument) toDomain() *domainchat.Conversation {
	id := domainchat.ConversationID(d.ID)
	conv := &domainchat.Conversation{
		ID:           id,
		Participants: append([]string(nil), d.Users...),
		Messages:     make([]domainchat.Message, 0, len(d.Messages)),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	for _, m := range d.Messages {
		conv.Messages = append(conv.Messages, m.toDomain(id))
	}
	return conv
}

func (d messageDocument) toDomain(conversationID domainchat.ConversationID) domainchat.Message {
	return domainchat.Message{
		ID:             domainchat.MessageID(d.ID),
		ConversationID: conversationID,
		SenderID:       d.Sender,
		Content:        d.Content,
		Seen:           d.Seen,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}

var _ domainchat.Store = (*ConversationRepository)(nil)
