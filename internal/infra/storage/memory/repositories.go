package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"smajobb/internal/domain/chat"
	domainlistings "smajobb/internal/domain/listings"
	domainreviews "smajobb/internal/domain/reviews"
)

// ListingRepository is a mutex-guarded in-memory implementation used in dev
// and tests.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{items: make(map[domainlistings.ListingID]*domainlistings.Listing)}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrNotFound
	}
	clone := *listing
	return &clone, nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *listing
	clone.Version++
	clone.ClearEvents()
	r.items[listing.ID] = &clone
	listing.Version = clone.Version
	return nil
}

func (r *ListingRepository) ListByOwner(ctx context.Context, owner domainlistings.OwnerID) ([]*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainlistings.Listing
	for _, listing := range r.items {
		if listing.Owner == owner {
			clone := *listing
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ListingRepository) Delete(ctx context.Context, id domainlistings.ListingID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domainlistings.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// ConversationRepository keeps conversations and their messages together;
// message ids are assigned from a per-store monotonic counter so ordering
// and dedup contracts hold.
type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*chat.Conversation
	messages      map[string][]chat.Message
	nextMessageID chat.MessageID
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		conversations: make(map[string]*chat.Conversation),
		messages:      make(map[string][]chat.Message),
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (r *ConversationRepository) ByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conv := range r.conversations {
		if conv.ListingID == listingID && conv.BuyerID == buyerID {
			return cloneConversation(conv), nil
		}
	}
	return nil, chat.ErrConversationNotFound
}

func (r *ConversationRepository) ListByUser(ctx context.Context, userID string) ([]*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*chat.Conversation
	for _, conv := range r.conversations {
		if conv.Participant(userID) {
			out = append(out, cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *ConversationRepository) Save(ctx context.Context, conversation *chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[conversation.ID] = cloneConversation(conversation)
	return nil
}

func (r *ConversationRepository) Append(ctx context.Context, conversationID, senderID, body string, at time.Time) (chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[conversationID]; !ok {
		return chat.Message{}, chat.ErrConversationNotFound
	}
	r.nextMessageID++
	msg := chat.Message{
		ID:             r.nextMessageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      chat.FormatTime(at),
	}
	r.messages[conversationID] = append(r.messages[conversationID], msg)
	return msg, nil
}

func (r *ConversationRepository) List(ctx context.Context, conversationID string) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.conversations[conversationID]; !ok {
		return nil, chat.ErrConversationNotFound
	}
	msgs := r.messages[conversationID]
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func cloneConversation(conv *chat.Conversation) *chat.Conversation {
	clone := *conv
	if conv.SafePaymentAmount != nil {
		amount := *conv.SafePaymentAmount
		clone.SafePaymentAmount = &amount
	}
	if conv.LastRead != nil {
		clone.LastRead = make(map[string]time.Time, len(conv.LastRead))
		for k, v := range conv.LastRead {
			clone.LastRead[k] = v
		}
	}
	return &clone
}

// ReviewRepository stores reviews keyed by (reviewer, listing).
type ReviewRepository struct {
	mu    sync.RWMutex
	items []*domainreviews.Review
}

func NewReviewRepository() *ReviewRepository {
	return &ReviewRepository{}
}

func (r *ReviewRepository) ByReviewerAndListing(ctx context.Context, reviewerID string, listingID domainlistings.ListingID) (*domainreviews.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, review := range r.items {
		if review.ReviewerID == reviewerID && review.ListingID == listingID {
			clone := *review
			return &clone, nil
		}
	}
	return nil, domainreviews.ErrNotFound
}

func (r *ReviewRepository) ListByReviewer(ctx context.Context, reviewerID string) ([]*domainreviews.Review, error) {
	return r.filter(func(review *domainreviews.Review) bool { return review.ReviewerID == reviewerID })
}

func (r *ReviewRepository) ListByReviewee(ctx context.Context, revieweeID string) ([]*domainreviews.Review, error) {
	return r.filter(func(review *domainreviews.Review) bool { return review.RevieweeID == revieweeID })
}

func (r *ReviewRepository) Save(ctx context.Context, review *domainreviews.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.ReviewerID == review.ReviewerID && existing.ListingID == review.ListingID {
			return domainreviews.ErrAlreadyReviewed
		}
	}
	clone := *review
	r.items = append(r.items, &clone)
	return nil
}

func (r *ReviewRepository) filter(keep func(*domainreviews.Review) bool) ([]*domainreviews.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainreviews.Review
	for _, review := range r.items {
		if keep(review) {
			clone := *review
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
