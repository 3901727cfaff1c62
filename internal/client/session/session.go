package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"smajobb/internal/app/dto"
	"smajobb/internal/client/api"
	"smajobb/internal/domain/chat"
)

// Transport is the realtime attachment the session drives; satisfied by
// channel.Client.
type Transport interface {
	Connect(conversationID string)
	Disconnect()
}

// Session owns everything one open conversation view needs: the message
// thread, the listing and conversation snapshots, the realtime attachment,
// the escrow action coordinator and the read tracker. All mutation funnels
// through one mutex; the inbound pump is the only goroutine it starts.
type Session struct {
	API       *api.Client
	Transport Transport
	Logger    *slog.Logger

	ViewerID       string
	ConversationID string

	Badge *BadgeCoordinator

	mu           sync.Mutex
	thread       *chat.Thread
	listing      *dto.Listing
	conversation *dto.Conversation
	inFlight     map[ActionKind]bool
	pending      *onboardingContinuation
	lastError    *ActionError
	readArmed    bool
	readFired    bool

	inbound chan chat.Message
	done    chan struct{}
	once    sync.Once
}

func New(client *api.Client, transport Transport, viewerID, conversationID string, logger *slog.Logger) *Session {
	return &Session{
		API:            client,
		Transport:      transport,
		Logger:         logger,
		ViewerID:       viewerID,
		ConversationID: conversationID,
		thread:         chat.NewThread(),
		inFlight:       make(map[ActionKind]bool),
		inbound:        make(chan chat.Message, 256),
		done:           make(chan struct{}),
	}
}

// Open loads history and snapshots, then attaches the realtime channel.
func (s *Session) Open(ctx context.Context) error {
	conv, err := s.API.GetConversation(ctx, s.ConversationID)
	if err != nil {
		return err
	}
	messages, err := s.API.ListMessages(ctx, s.ConversationID)
	if err != nil {
		return err
	}
	var listing *dto.Listing
	if conv.ListingID != "" {
		// A missing listing degrades the escrow panel, not the chat.
		if l, lerr := s.API.GetListing(ctx, conv.ListingID); lerr == nil {
			listing = l
		}
	}

	s.mu.Lock()
	s.conversation = conv
	s.listing = listing
	history := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		history = append(history, m.ToDomain())
	}
	s.thread.Replace(history)
	var watermark *time.Time
	if conv.LastReadAt != "" {
		if at, err := time.Parse(time.RFC3339Nano, conv.LastReadAt); err == nil {
			watermark = &at
		}
	}
	// Arm only when there is something to mark; an already-read thread must
	// not fire a mark-read on teardown.
	s.readArmed = chat.HasUnread(history, s.ViewerID, watermark)
	s.readFired = false
	s.mu.Unlock()

	go s.pump()
	if s.Transport != nil {
		s.Transport.Connect(s.ConversationID)
	}
	return nil
}

// Deliver is the channel handler: it hands the message to the session
// goroutine. The buffer is generous; if it ever fills the frame is dropped
// and the next catch-up fetch repairs the gap.
func (s *Session) Deliver(msg chat.Message) {
	select {
	case s.inbound <- msg:
	case <-s.done:
	default:
	}
}

// Close detaches the channel, stops the pump and fires the pending
// mark-read exactly once, best effort.
func (s *Session) Close(ctx context.Context) {
	s.once.Do(func() {
		close(s.done)
		if s.Transport != nil {
			s.Transport.Disconnect()
		}
		s.fireMarkRead(ctx)
	})
}

// MarkViewed is the view-teardown hook: it fires the pending mark-read if
// one is armed. Until a counterpart message rearms the tracker, further
// calls do nothing.
func (s *Session) MarkViewed(ctx context.Context) {
	s.fireMarkRead(ctx)
}

// Rows derives the current render list. Pure on the session's state.
func (s *Session) Rows() []chat.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	var watermark *time.Time
	if s.conversation != nil && s.conversation.LastReadAt != "" {
		if at, err := time.Parse(time.RFC3339Nano, s.conversation.LastReadAt); err == nil {
			watermark = &at
		}
	}
	return chat.DeriveRows(s.thread.Messages(), s.ViewerID, watermark)
}

func (s *Session) Listing() *dto.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listing
}

func (s *Session) Conversation() *dto.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation
}

// LastError returns and clears the user-facing error slot.
func (s *Session) LastError() *ActionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.lastError
	s.lastError = nil
	return err
}

// Send posts a message; the echo arrives over the channel and dedups there,
// but the optimistic append keeps the view responsive.
func (s *Session) Send(ctx context.Context, body string) error {
	msg, err := s.API.SendMessage(ctx, s.ConversationID, body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.thread.Append(msg.ToDomain())
	s.mu.Unlock()
	return nil
}

func (s *Session) pump() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.inbound:
			s.absorb(msg)
		}
	}
}

// absorb appends one inbound message. Counterpart traffic rearms the read
// tracker; system messages additionally trigger a snapshot refresh, since
// they signal a state change rather than carry one.
func (s *Session) absorb(msg chat.Message) {
	s.mu.Lock()
	added := s.thread.Append(msg)
	rearm := added && msg.SenderID != s.ViewerID
	if rearm {
		s.readArmed = true
		s.readFired = false
	}
	refresh := added && msg.IsSystem()
	s.mu.Unlock()

	if refresh {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.RefreshSnapshots(ctx)
	}
}

// RefreshSnapshots re-fetches both records; failures keep the old ones.
func (s *Session) RefreshSnapshots(ctx context.Context) {
	conv, err := s.API.GetConversation(ctx, s.ConversationID)
	if err != nil {
		s.logDebug("conversation refresh failed", err)
		return
	}
	var listing *dto.Listing
	if conv.ListingID != "" {
		if l, lerr := s.API.GetListing(ctx, conv.ListingID); lerr == nil {
			listing = l
		} else {
			s.logDebug("listing refresh failed", lerr)
		}
	}
	s.mu.Lock()
	s.conversation = conv
	if listing != nil {
		s.listing = listing
	}
	s.mu.Unlock()
}

// fireMarkRead sends at most one mark-read per viewing session. Failures
// are swallowed; the watermark just stays behind.
func (s *Session) fireMarkRead(ctx context.Context) {
	s.mu.Lock()
	if !s.readArmed || s.readFired {
		s.mu.Unlock()
		return
	}
	s.readFired = true
	s.readArmed = false
	s.mu.Unlock()

	if err := s.API.MarkRead(ctx, s.ConversationID); err != nil {
		s.logDebug("mark read failed", err)
		return
	}
	if s.Badge != nil {
		s.Badge.Refresh(ctx)
	}
}

func (s *Session) logDebug(msg string, err error) {
	if s.Logger != nil {
		s.Logger.Debug(msg, "error", err)
	}
}
