// Package apiclient exposes the typed backend endpoints the sync engine
// consumes, over the classified transport client. Responses arrive in
// the backend's {status, code, data} envelope; bare payloads are wrapped
// as OK/200 for callers.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"gramsync/pkg/models"
	"gramsync/pkg/transport"
)

// Envelope is the backend response wrapper.
type Envelope struct {
	Status string          `json:"status"`
	Code   int             `json:"code"`
	Data   json.RawMessage `json:"data"`
}

// API provides the endpoint calls used by the engine.
type API struct {
	c *transport.Client
}

func New(c *transport.Client) *API { return &API{c: c} }

// do sends the request and decodes the envelope into out (when non-nil).
// Statuses >= 400 surface as passthrough server errors carrying the raw
// status and body; the transport already handled timeout/network/401.
func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := a.c.Do(ctx, method, path, body, nil)
	if err != nil {
		return err
	}
	if resp.Status >= 400 {
		return transport.NewServerError(a.c.Locale(), resp.Status, resp.Body)
	}
	if out == nil {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(resp.Body, &env); err == nil && env.Data != nil {
		return json.Unmarshal(env.Data, out)
	}
	// Not enveloped; take the body as the payload itself.
	return json.Unmarshal(resp.Body, out)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a token. The caller passes the token
// to the session store; this layer does not mutate session state.
func (a *API) Login(ctx context.Context, email, password string) (string, error) {
	var out loginResponse
	if err := a.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("login response carried no token")
	}
	return out.Token, nil
}

// Conversations fetches the authoritative summary list. Unread counts
// and ordering always come from here, never local recomputation.
func (a *API) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	if err := a.do(ctx, http.MethodGet, "/messages/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ConversationMessages fetches the message history with one peer.
func (a *API) ConversationMessages(ctx context.Context, peerUserID string) ([]models.Message, error) {
	var out []models.Message
	path := "/messages/conversation/" + url.PathEscape(peerUserID)
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type sendMessageRequest struct {
	ToUserID string `json:"toUserId"`
	Content  string `json:"content,omitempty"`
}

// SendMessage posts a new message. The confirmed copy also arrives as a
// message_sent push event, so callers rely on the idempotent merge.
func (a *API) SendMessage(ctx context.Context, toUserID, content string) (models.Message, error) {
	var out models.Message
	err := a.do(ctx, http.MethodPost, "/messages", sendMessageRequest{ToUserID: toUserID, Content: content}, &out)
	return out, err
}

// MarkConversationRead asks the server to zero the unread count for one
// peer. The local summary entry only changes on the next refetch.
func (a *API) MarkConversationRead(ctx context.Context, peerUserID string) error {
	path := "/messages/conversation/" + url.PathEscape(peerUserID) + "/read-all"
	return a.do(ctx, http.MethodPut, path, nil, nil)
}

// ToggleReaction flips the caller's reaction on a post.
func (a *API) ToggleReaction(ctx context.Context, postID string) error {
	path := "/posts/" + url.PathEscape(postID) + "/reactions"
	return a.do(ctx, http.MethodPost, path, nil, nil)
}

// Feed fetches one page of the post feed.
func (a *API) Feed(ctx context.Context, page, size int) ([]models.Post, error) {
	var out []models.Post
	path := fmt.Sprintf("/posts/feed?page=%d&size=%d", page, size)
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Post fetches one post by id.
func (a *API) Post(ctx context.Context, postID string) (models.Post, error) {
	var out models.Post
	err := a.do(ctx, http.MethodGet, "/posts/"+url.PathEscape(postID), nil, &out)
	return out, err
}
