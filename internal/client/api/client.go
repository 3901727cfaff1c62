package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smajobb/internal/app/dto"
)

// APIError is an application-level rejection decoded from an error body.
// Anything else (dial failures, timeouts, malformed bodies) surfaces as a
// transport error.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// Client is a thin typed wrapper over the backend REST surface. All calls
// take a context and return decoded DTOs.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Register(ctx context.Context, email, name, password string) (*dto.AuthResponse, error) {
	var out dto.AuthResponse
	body := map[string]string{"email": email, "name": name, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	var out dto.AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetListing(ctx context.Context, listingID string) (*dto.Listing, error) {
	var out dto.Listing
	if err := c.do(ctx, http.MethodGet, "/api/v1/listings/"+url.PathEscape(listingID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type ListingUpdate struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	PriceAmount       int64  `json:"price_amount"`
	OffersSafePayment bool   `json:"offers_safe_payment"`
}

func (c *Client) UpdateListing(ctx context.Context, listingID string, update ListingUpdate) (*dto.Listing, error) {
	var out dto.Listing
	if err := c.do(ctx, http.MethodPut, "/api/v1/listings/"+url.PathEscape(listingID), update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteListing(ctx context.Context, listingID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/listings/"+url.PathEscape(listingID), nil, nil)
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (*dto.Conversation, error) {
	var out dto.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+url.PathEscape(conversationID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]dto.Conversation, error) {
	var out dto.ConversationList
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) CreateListingConversation(ctx context.Context, listingID string) (*dto.Conversation, error) {
	var out dto.Conversation
	path := "/api/v1/listings/" + url.PathEscape(listingID) + "/conversations"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]dto.ChatMessage, error) {
	var out dto.ChatMessageList
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID, body string) (*dto.ChatMessage, error) {
	var out dto.ChatMessage
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, http.MethodPost, path, struct{}{}, nil)
}

func (c *Client) AcceptListing(ctx context.Context, listingID string) (*dto.EscrowAction, error) {
	return c.escrowListingAction(ctx, listingID, "accept")
}

func (c *Client) CompleteListing(ctx context.Context, listingID string) (*dto.EscrowAction, error) {
	return c.escrowListingAction(ctx, listingID, "complete")
}

func (c *Client) MarkListingDone(ctx context.Context, listingID string) (*dto.EscrowAction, error) {
	return c.escrowListingAction(ctx, listingID, "done")
}

func (c *Client) OnboardingStatus(ctx context.Context, conversationID string) (*dto.OnboardingStatus, error) {
	var out dto.OnboardingStatus
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/payment/onboarding"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, conversationID string) (*dto.PaymentIntent, error) {
	var out dto.PaymentIntent
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/payment/intent"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmPayment(ctx context.Context, conversationID string) (*dto.EscrowAction, error) {
	return c.escrowConversationAction(ctx, conversationID, "payment/confirm")
}

func (c *Client) CancelPayment(ctx context.Context, conversationID string) (*dto.EscrowAction, error) {
	return c.escrowConversationAction(ctx, conversationID, "payment/cancel")
}

func (c *Client) Decline(ctx context.Context, conversationID string) (*dto.EscrowAction, error) {
	return c.escrowConversationAction(ctx, conversationID, "decline")
}

type ReviewSubmission struct {
	ListingID string `json:"listing_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

func (c *Client) SubmitReview(ctx context.Context, submission ReviewSubmission) (*dto.Review, error) {
	var out dto.Review
	if err := c.do(ctx, http.MethodPost, "/api/v1/reviews", submission, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListReviews(ctx context.Context, userID string) ([]dto.Review, error) {
	var out dto.ReviewList
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(userID)+"/reviews", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) escrowListingAction(ctx context.Context, listingID, action string) (*dto.EscrowAction, error) {
	var out dto.EscrowAction
	path := "/api/v1/listings/" + url.PathEscape(listingID) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) escrowConversationAction(ctx context.Context, conversationID, action string) (*dto.EscrowAction, error) {
	var out dto.EscrowAction
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}
