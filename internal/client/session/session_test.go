package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smajobb/internal/app/dto"
	"smajobb/internal/client/api"
	"smajobb/internal/domain/chat"
)

const (
	testViewer      = "user-a"
	testCounterpart = "user-b"
	testConvID      = "conv-1"
)

// fakeBackend serves the handful of endpoints the session talks to and
// counts the calls that matter.
type fakeBackend struct {
	mu            sync.Mutex
	messages      []dto.ChatMessage
	conversations []dto.Conversation
	readCalls     int32
	acceptCalls   int32
	intentCalls   int32
	confirmCalls  int32
	lastReadAt    string
	acceptDefer   bool
	intentDefer   bool
	updateStatus  int
	confirmStatus int
	release       chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		updateStatus:  http.StatusOK,
		confirmStatus: http.StatusOK,
	}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	conversation := dto.Conversation{ID: testConvID, ListingID: "job-1", BuyerID: testCounterpart, SellerID: testViewer, LastReadAt: b.lastReadAt}
	listing := dto.Listing{ID: "job-1", OwnerID: testViewer, Title: "Male gjerdet", Status: "INITIATED"}

	mux.HandleFunc("GET /api/v1/conversations/"+testConvID, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, conversation)
	})
	mux.HandleFunc("GET /api/v1/listings/job-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing)
	})
	mux.HandleFunc("GET /api/v1/conversations/"+testConvID+"/messages", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, dto.ChatMessageList{Items: b.messages})
	})
	mux.HandleFunc("POST /api/v1/conversations/"+testConvID+"/read", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.readCalls, 1)
		writeJSON(w, map[string]string{"read_at": "2026-03-01T12:00:00Z"})
	})
	mux.HandleFunc("GET /api/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, dto.ConversationList{Items: b.conversations})
	})
	mux.HandleFunc("POST /api/v1/listings/job-1/accept", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.acceptCalls, 1)
		b.mu.Lock()
		deferred := b.acceptDefer
		b.mu.Unlock()
		if deferred {
			writeJSON(w, dto.EscrowAction{RequiresOnboarding: true, OnboardingURL: "https://pay.example.test/onboarding"})
			return
		}
		writeJSON(w, dto.EscrowAction{Listing: &listing, Conversation: &conversation})
	})
	mux.HandleFunc("POST /api/v1/conversations/"+testConvID+"/decline", func(w http.ResponseWriter, r *http.Request) {
		if b.release != nil {
			<-b.release
		}
		writeJSON(w, dto.EscrowAction{Listing: &listing, Conversation: &conversation})
	})
	mux.HandleFunc("PUT /api/v1/listings/job-1", func(w http.ResponseWriter, r *http.Request) {
		if b.updateStatus != http.StatusOK {
			w.WriteHeader(b.updateStatus)
			writeJSON(w, map[string]string{"error": "listing is completed"})
			return
		}
		writeJSON(w, listing)
	})
	mux.HandleFunc("POST /api/v1/conversations/"+testConvID+"/payment/confirm", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.confirmCalls, 1)
		if b.confirmStatus != http.StatusOK {
			w.WriteHeader(b.confirmStatus)
			writeJSON(w, map[string]string{"error": "card declined"})
			return
		}
		writeJSON(w, dto.EscrowAction{Listing: &listing, Conversation: &conversation})
	})
	mux.HandleFunc("POST /api/v1/conversations/"+testConvID+"/payment/intent", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.intentCalls, 1)
		b.mu.Lock()
		deferred := b.intentDefer
		b.mu.Unlock()
		if deferred {
			// A deferred pay carries no intent at all; the secret stays empty.
			writeJSON(w, dto.PaymentIntent{Conversation: conversation})
			return
		}
		writeJSON(w, dto.PaymentIntent{ClientSecret: "secret", PublishableKey: "pk", Conversation: conversation})
	})
	mux.HandleFunc("GET /api/v1/conversations/"+testConvID+"/payment/onboarding", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		deferred := b.intentDefer
		b.mu.Unlock()
		writeJSON(w, dto.OnboardingStatus{RequiresOnboarding: deferred, OnboardingURL: "https://pay.example.test/onboarding"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type fakeTransport struct {
	connects    int32
	disconnects int32
}

func (t *fakeTransport) Connect(conversationID string) { atomic.AddInt32(&t.connects, 1) }
func (t *fakeTransport) Disconnect()                   { atomic.AddInt32(&t.disconnects, 1) }

func newTestSession(t *testing.T, backend *fakeBackend) (*Session, *fakeTransport) {
	t.Helper()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)
	transport := &fakeTransport{}
	sess := New(api.New(server.URL, "token"), transport, testViewer, testConvID, nil)
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	return sess, transport
}

func waitRows(t *testing.T, sess *Session, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sess.Rows()) == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d rows, have %d", n, len(sess.Rows()))
}

func TestMarkReadOncePerViewingSession(t *testing.T) {
	backend := newFakeBackend()
	backend.messages = []dto.ChatMessage{
		{ID: 1, ConversationID: testConvID, SenderID: testCounterpart, Body: "hei", CreatedAt: "2026-03-01T11:00:00Z"},
	}
	sess, transport := newTestSession(t, backend)
	ctx := context.Background()

	sess.MarkViewed(ctx)
	sess.MarkViewed(ctx)
	if got := atomic.LoadInt32(&backend.readCalls); got != 1 {
		t.Fatalf("read calls = %d, want 1", got)
	}

	// A counterpart message rearms the tracker.
	sess.Deliver(chat.Message{ID: 10, ConversationID: testConvID, SenderID: testCounterpart, Body: "hallo", CreatedAt: "2026-03-01T12:01:00Z"})
	waitRows(t, sess, 2)
	sess.MarkViewed(ctx)
	if got := atomic.LoadInt32(&backend.readCalls); got != 2 {
		t.Fatalf("read calls after rearm = %d, want 2", got)
	}

	// Own echo does not rearm.
	sess.Deliver(chat.Message{ID: 11, ConversationID: testConvID, SenderID: testViewer, Body: "svar", CreatedAt: "2026-03-01T12:02:00Z"})
	waitRows(t, sess, 3)
	sess.Close(ctx)
	if got := atomic.LoadInt32(&backend.readCalls); got != 2 {
		t.Fatalf("read calls after close = %d, want 2", got)
	}
	if atomic.LoadInt32(&transport.disconnects) != 1 {
		t.Fatal("close must detach the transport")
	}
}

func TestNoMarkReadWithoutUnreadMessages(t *testing.T) {
	ctx := context.Background()

	// An empty thread arms nothing.
	backend := newFakeBackend()
	sess, _ := newTestSession(t, backend)
	sess.MarkViewed(ctx)
	sess.Close(ctx)
	if got := atomic.LoadInt32(&backend.readCalls); got != 0 {
		t.Fatalf("read calls on empty thread = %d, want 0", got)
	}

	// Counterpart messages older than the watermark are already read.
	backend = newFakeBackend()
	backend.lastReadAt = "2026-03-01T11:30:00Z"
	backend.messages = []dto.ChatMessage{
		{ID: 1, ConversationID: testConvID, SenderID: testCounterpart, Body: "hei", CreatedAt: "2026-03-01T11:00:00Z"},
	}
	sess, _ = newTestSession(t, backend)
	sess.MarkViewed(ctx)
	sess.Close(ctx)
	if got := atomic.LoadInt32(&backend.readCalls); got != 0 {
		t.Fatalf("read calls on read thread = %d, want 0", got)
	}
}

func TestInboundDedupByID(t *testing.T) {
	backend := newFakeBackend()
	sess, _ := newTestSession(t, backend)
	defer sess.Close(context.Background())

	msg := chat.Message{ID: 5, ConversationID: testConvID, SenderID: testCounterpart, Body: "en", CreatedAt: "2026-03-01T12:00:00Z"}
	sess.Deliver(msg)
	sess.Deliver(msg)
	sess.Deliver(msg)
	waitRows(t, sess, 1)

	time.Sleep(20 * time.Millisecond)
	if got := len(sess.Rows()); got != 1 {
		t.Fatalf("rows after redelivery = %d, want 1", got)
	}
}

func TestActionInFlightGuard(t *testing.T) {
	backend := newFakeBackend()
	backend.release = make(chan struct{})
	sess, _ := newTestSession(t, backend)
	defer sess.Close(context.Background())

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- sess.Decline(context.Background())
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	if err := sess.Decline(context.Background()); !errors.Is(err, ErrActionInFlight) {
		t.Fatalf("second decline error = %v, want ErrActionInFlight", err)
	}
	close(backend.release)
	if err := <-done; err != nil {
		t.Fatalf("first decline: %v", err)
	}
	// The guard clears once the first call finishes; the closed release
	// channel no longer blocks the handler.
	if err := sess.Decline(context.Background()); err != nil {
		t.Fatalf("decline after completion: %v", err)
	}
}

func TestOnboardingContinuationRetriedOnce(t *testing.T) {
	backend := newFakeBackend()
	backend.acceptDefer = true
	sess, _ := newTestSession(t, backend)
	defer sess.Close(context.Background())
	ctx := context.Background()

	url, err := sess.Accept(ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if url == "" {
		t.Fatal("deferred accept must return the onboarding url")
	}
	if atomic.LoadInt32(&backend.acceptCalls) != 1 {
		t.Fatalf("accept calls = %d, want 1", backend.acceptCalls)
	}

	backend.mu.Lock()
	backend.acceptDefer = false
	backend.mu.Unlock()

	if err := sess.ResumeAfterOnboarding(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if atomic.LoadInt32(&backend.acceptCalls) != 2 {
		t.Fatalf("accept calls after resume = %d, want 2", backend.acceptCalls)
	}

	// A second resume is a no-op.
	if err := sess.ResumeAfterOnboarding(ctx); err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if atomic.LoadInt32(&backend.acceptCalls) != 2 {
		t.Fatalf("accept calls after second resume = %d, want 2", backend.acceptCalls)
	}
}

func TestDeferredPayResumesFullFlow(t *testing.T) {
	backend := newFakeBackend()
	backend.intentDefer = true
	sess, _ := newTestSession(t, backend)
	defer sess.Close(context.Background())
	ctx := context.Background()

	url, err := sess.Pay(ctx)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if url == "" {
		t.Fatal("deferred pay must return the onboarding url")
	}
	if got := atomic.LoadInt32(&backend.confirmCalls); got != 0 {
		t.Fatalf("confirm calls before onboarding = %d, want 0", got)
	}

	backend.mu.Lock()
	backend.intentDefer = false
	backend.mu.Unlock()

	// The resume replays intent creation before confirming; confirming a
	// never-created intent would be refused server-side.
	if err := sess.ResumeAfterOnboarding(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := atomic.LoadInt32(&backend.intentCalls); got != 2 {
		t.Fatalf("intent calls after resume = %d, want 2", got)
	}
	if got := atomic.LoadInt32(&backend.confirmCalls); got != 1 {
		t.Fatalf("confirm calls after resume = %d, want 1", got)
	}

	// A second resume is a no-op.
	if err := sess.ResumeAfterOnboarding(ctx); err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if got := atomic.LoadInt32(&backend.confirmCalls); got != 1 {
		t.Fatalf("confirm calls after second resume = %d, want 1", got)
	}
}

func TestErrorSlotDistinguishesKinds(t *testing.T) {
	backend := newFakeBackend()
	backend.updateStatus = http.StatusConflict
	backend.confirmStatus = http.StatusConflict
	sess, _ := newTestSession(t, backend)
	defer sess.Close(context.Background())
	ctx := context.Background()

	if err := sess.UpdateJob(ctx, api.ListingUpdate{Title: "Nytt navn"}); err == nil {
		t.Fatal("update should fail")
	}
	slot := sess.LastError()
	if slot == nil || slot.Kind != ErrorJobUpdate {
		t.Fatalf("error slot = %+v, want job-update kind", slot)
	}
	var apiErr *api.APIError
	if !errors.As(slot.Err, &apiErr) || apiErr.Message != "listing is completed" {
		t.Fatalf("wrapped error = %v", slot.Err)
	}
	// Reading the slot clears it.
	if sess.LastError() != nil {
		t.Fatal("error slot must clear on read")
	}

	if err := sess.confirmPayment(ctx); err == nil {
		t.Fatal("confirm should fail")
	}
	slot = sess.LastError()
	if slot == nil || slot.Kind != ErrorPaymentConfirm {
		t.Fatalf("error slot = %+v, want payment-confirm kind", slot)
	}

	// Failed actions leave the snapshots untouched.
	if sess.Listing() == nil || sess.Listing().Title != "Male gjerdet" {
		t.Fatalf("listing snapshot changed: %+v", sess.Listing())
	}
}
