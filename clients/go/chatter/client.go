// Package chatter provides a client for the Backend-chatter realtime
// chat API and gateway.
package chatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a Backend-chatter API client.
type Client struct {
	BaseURL      string
	AccessToken  string
	RefreshToken string
	HTTPClient   *http.Client
}

// NewClient creates a new chatter client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// AuthResponse is the register/login response.
type AuthResponse struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatter: %d %s", e.Status, e.Message)
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Register creates an account and stores the returned tokens.
func (c *Client) Register(username, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.do(http.MethodPost, "/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.AccessToken = resp.AccessToken
	c.RefreshToken = resp.RefreshToken
	return &resp, nil
}

// Login authenticates and stores the returned tokens.
func (c *Client) Login(email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.do(http.MethodPost, "/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.AccessToken = resp.AccessToken
	c.RefreshToken = resp.RefreshToken
	return &resp, nil
}

// Message mirrors the server's message payload.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
	Type           string `json:"type"`
	Body           string `json:"body,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      string `json:"created_at"`
}

// SendText sends a text message to a friend.
func (c *Client) SendText(receiverID, body string) (*Message, error) {
	var msg Message
	err := c.do(http.MethodPost, "/messages", map[string]string{
		"receiver_id": receiverID,
		"type":        "text",
		"body":        body,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// History returns conversation history with a friend, newest first.
func (c *Client) History(friendID string, limit int) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	path := fmt.Sprintf("/messages/%s?limit=%d", url.PathEscape(friendID), limit)
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Friend is a friend entry with live presence.
type Friend struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Friends returns the caller's friends.
func (c *Client) Friends() ([]Friend, error) {
	var resp struct {
		Friends []Friend `json:"friends"`
	}
	if err := c.do(http.MethodGet, "/friends", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Friends, nil
}

// RequestFriend sends a friend request.
func (c *Client) RequestFriend(receiverID string) error {
	return c.do(http.MethodPost, "/friends/request", map[string]string{
		"receiver_id": receiverID,
	}, nil)
}

// AcceptFriend accepts a pending friend request.
func (c *Client) AcceptFriend(requestID string) error {
	return c.do(http.MethodPost, "/friends/accept", map[string]string{
		"request_id": requestID,
	}, nil)
}
