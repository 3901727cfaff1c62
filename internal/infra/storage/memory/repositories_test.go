package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"smajobb/internal/domain/chat"
	domainreviews "smajobb/internal/domain/reviews"
)

func TestMessageIDsMonotonicAndOrdered(t *testing.T) {
	repo := NewConversationRepository()
	ctx := context.Background()
	now := time.Now()

	var last chat.MessageID
	for i := 0; i < 5; i++ {
		msg, err := repo.Append(ctx, "conv-1", "user-a", "melding", now)
		if err != nil {
			t.Fatal(err)
		}
		if msg.ID <= last {
			t.Fatalf("id %d not greater than previous %d", msg.ID, last)
		}
		last = msg.ID
	}
	// Ids keep climbing across conversations.
	msg, err := repo.Append(ctx, "conv-2", "user-b", "annen", now)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID <= last {
		t.Fatalf("cross-conversation id %d not greater than %d", msg.ID, last)
	}

	list, err := repo.List(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 5 {
		t.Fatalf("len = %d, want 5", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].ID <= list[i-1].ID {
			t.Fatal("List must return ascending id order")
		}
	}
}

func TestConversationCloneIsolation(t *testing.T) {
	repo := NewConversationRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	conv := &chat.Conversation{ID: "conv-1", ListingID: "job-1", BuyerID: "b", SellerID: "s", CreatedAt: now, UpdatedAt: now}
	if err := repo.Save(ctx, conv); err != nil {
		t.Fatal(err)
	}

	loaded, err := repo.ByID(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	loaded.MarkRead("b", now)
	again, err := repo.ByID(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := again.LastReadAt("b"); ok {
		t.Fatal("mutating a loaded copy must not leak into the store")
	}

	if _, err := repo.ByListingAndBuyer(ctx, "job-1", "b"); err != nil {
		t.Fatalf("lookup by listing and buyer: %v", err)
	}
	if _, err := repo.ByListingAndBuyer(ctx, "job-1", "x"); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("error = %v, want ErrConversationNotFound", err)
	}
}

func TestReviewIdempotencyPerReviewerListing(t *testing.T) {
	repo := NewReviewRepository()
	ctx := context.Background()

	review, err := domainreviews.Submit(domainreviews.SubmitParams{
		ID:         "rev-1",
		ListingID:  "job-1",
		ReviewerID: "user-a",
		RevieweeID: "user-b",
		Rating:     5,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, review); err != nil {
		t.Fatal(err)
	}

	duplicate, err := domainreviews.Submit(domainreviews.SubmitParams{
		ID:         "rev-2",
		ListingID:  "job-1",
		ReviewerID: "user-a",
		RevieweeID: "user-b",
		Rating:     1,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, duplicate); !errors.Is(err, domainreviews.ErrAlreadyReviewed) {
		t.Fatalf("duplicate save error = %v, want ErrAlreadyReviewed", err)
	}

	// Same reviewer, different listing is fine.
	other, err := domainreviews.Submit(domainreviews.SubmitParams{
		ID:         "rev-3",
		ListingID:  "job-2",
		ReviewerID: "user-a",
		RevieweeID: "user-b",
		Rating:     4,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, other); err != nil {
		t.Fatalf("other listing save: %v", err)
	}

	received, err := repo.ListByReviewee(ctx, "user-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(received) != 2 {
		t.Fatalf("reviews for reviewee = %d, want 2", len(received))
	}
}
