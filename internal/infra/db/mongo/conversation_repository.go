package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"smajobb/internal/domain/chat"
	"smajobb/internal/domain/escrow"
)

// ConversationRepository persists conversation metadata and messages.
// Message ids come from a counters document so they stay monotonic across
// processes.
type ConversationRepository struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	counters      *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{
		conversations: db.Collection("agg_conversation"),
		messages:      db.Collection("chat_message"),
		counters:      db.Collection("counters"),
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id string) (*chat.Conversation, error) {
	var doc conversationDocument
	if err := r.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) ByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*chat.Conversation, error) {
	var doc conversationDocument
	filter := bson.M{"listing_id": listingID, "buyer_id": buyerID}
	if err := r.conversations.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) ListByUser(ctx context.Context, userID string) ([]*chat.Conversation, error) {
	filter := bson.M{"$or": bson.A{bson.M{"buyer_id": userID}, bson.M{"seller_id": userID}}}
	cursor, err := r.conversations.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []*chat.Conversation
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, doc.toAggregate())
	}
	return result, cursor.Err()
}

func (r *ConversationRepository) Save(ctx context.Context, conversation *chat.Conversation) error {
	doc := newConversationDocument(conversation)
	opts := options.Update().SetUpsert(true)
	_, err := r.conversations.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	return err
}

// Append stores a message under the next monotonic id.
func (r *ConversationRepository) Append(ctx context.Context, conversationID, senderID, body string, at time.Time) (chat.Message, error) {
	id, err := r.nextMessageID(ctx)
	if err != nil {
		return chat.Message{}, err
	}
	msg := chat.Message{
		ID:             chat.MessageID(id),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      chat.FormatTime(at),
	}
	doc := messageDocument{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      msg.CreatedAt,
	}
	if _, err := r.messages.InsertOne(ctx, doc); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (r *ConversationRepository) List(ctx context.Context, conversationID string) ([]chat.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []chat.Message
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, chat.Message{
			ID:             chat.MessageID(doc.ID),
			ConversationID: doc.ConversationID,
			SenderID:       doc.SenderID,
			Body:           doc.Body,
			CreatedAt:      doc.CreatedAt,
		})
	}
	return result, cursor.Err()
}

func (r *ConversationRepository) nextMessageID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": "chat_message"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

type conversationDocument struct {
	ID                string           `bson:"_id"`
	ListingID         string           `bson:"listing_id"`
	BuyerID           string           `bson:"buyer_id"`
	SellerID          string           `bson:"seller_id"`
	SafePaymentStatus string           `bson:"safe_payment_status"`
	SafePaymentAmount *int64           `bson:"safe_payment_amount,omitempty"`
	PaymentIntentID   string           `bson:"payment_intent_id"`
	LastRead          map[string]int64 `bson:"last_read"`
	CreatedAt         int64            `bson:"created_at"`
	UpdatedAt         int64            `bson:"updated_at"`
}

type messageDocument struct {
	ID             int64  `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	Body           string `bson:"body"`
	CreatedAt      string `bson:"created_at"`
}

func newConversationDocument(c *chat.Conversation) conversationDocument {
	doc := conversationDocument{
		ID:                c.ID,
		ListingID:         c.ListingID,
		BuyerID:           c.BuyerID,
		SellerID:          c.SellerID,
		SafePaymentStatus: string(c.SafePaymentStatus),
		SafePaymentAmount: c.SafePaymentAmount,
		PaymentIntentID:   c.PaymentIntentID,
		CreatedAt:         c.CreatedAt.UnixMilli(),
		UpdatedAt:         c.UpdatedAt.UnixMilli(),
	}
	if len(c.LastRead) > 0 {
		doc.LastRead = make(map[string]int64, len(c.LastRead))
		for user, at := range c.LastRead {
			doc.LastRead[user] = at.UnixMilli()
		}
	}
	return doc
}

func (d conversationDocument) toAggregate() *chat.Conversation {
	conv := &chat.Conversation{
		ID:                d.ID,
		ListingID:         d.ListingID,
		BuyerID:           d.BuyerID,
		SellerID:          d.SellerID,
		SafePaymentStatus: escrow.PaymentStatus(d.SafePaymentStatus),
		SafePaymentAmount: d.SafePaymentAmount,
		PaymentIntentID:   d.PaymentIntentID,
		CreatedAt:         timestampToTime(d.CreatedAt),
		UpdatedAt:         timestampToTime(d.UpdatedAt),
	}
	if len(d.LastRead) > 0 {
		conv.LastRead = make(map[string]time.Time, len(d.LastRead))
		for user, ms := range d.LastRead {
			conv.LastRead[user] = timestampToTime(ms)
		}
	}
	return conv
}
