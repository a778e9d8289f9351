// Package comms provides a client for the ImmoNow team communications API.
//
// Besides plain API bindings the package carries the client-side
// synchronization layer: every list the UI renders (channels, messages of a
// channel, search results) is a cached view whose freshness is tracked by a
// ViewCache. Mutations mark the affected views stale on success and reads
// serve cached data only while the view is fresh.
package comms

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

// UserHeader carries the authenticated user ID, normally injected by the
// ImmoNow API gateway. The client sets it directly for gateway-less use.
const UserHeader = "X-Immonow-User"

// Client is an ImmoNow comms API client.
type Client struct {
	BaseURL    string
	UserID     string
	HTTPClient *http.Client
	Cache      *ViewCache
}

// NewClient creates a client acting as the given user.
func NewClient(baseURL, userID string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		UserID:     userID,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Cache:      NewViewCache(),
	}
}

// doRequest performs an HTTP request against the API.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(UserHeader, c.UserID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("comms error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// ChannelMember is one membership entry of a channel.
type ChannelMember struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Channel represents a team channel.
type Channel struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Topic        string          `json:"topic,omitempty"`
	TeamID       string          `json:"team_id,omitempty"`
	IsPrivate    bool            `json:"is_private"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ArchivedAt   *time.Time      `json:"archived_at,omitempty"`
	MessageCount int64           `json:"message_count"`
	LastActiveAt time.Time       `json:"last_active_at"`
	Members      []ChannelMember `json:"members,omitempty"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID        string    `json:"id"`
	FileURL   string    `json:"file_url"`
	FileName  string    `json:"file_name"`
	FileType  string    `json:"file_type,omitempty"`
	FileSize  int64     `json:"file_size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Reaction is one user's emoji reaction to a message.
type Reaction struct {
	ID        string    `json:"id"`
	Emoji     string    `json:"emoji"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ResourceLink ties a message to a CRM resource.
type ResourceLink struct {
	ID           string    `json:"id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Label        string    `json:"label,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message represents a channel message.
type Message struct {
	ID             string         `json:"id"`
	ChannelID      string         `json:"channel_id"`
	UserID         string         `json:"user_id"`
	Content        string         `json:"content"`
	ParentID       string         `json:"parent_id,omitempty"`
	HasAttachments bool           `json:"has_attachments"`
	IsDeleted      bool           `json:"is_deleted"`
	EditedAt       *time.Time     `json:"edited_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Attachments    []Attachment   `json:"attachments,omitempty"`
	Reactions      []Reaction     `json:"reactions,omitempty"`
	ResourceLinks  []ResourceLink `json:"resource_links,omitempty"`
}

// PinnedResource is one entry of a channel's pinned-resources view.
type PinnedResource struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Label        string `json:"label,omitempty"`
}

// ChannelPage is a page of channels.
type ChannelPage struct {
	Items []Channel `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
}

// MessagePage is a page of messages.
type MessagePage struct {
	Items []Message `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
}

// PinnedResourcePage is the pinned-resources view of a channel.
type PinnedResourcePage struct {
	Items []PinnedResource `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

// ListChannels lists channels the server knows about. The result is served
// from the view cache when it is fresh and was fetched with the same page
// arguments; otherwise a refetch replaces the cached view.
func (c *Client) ListChannels(page, size int) (*ChannelPage, error) {
	if cached, ok := c.Cache.Get(KeyChannels); ok {
		if p, ok := cached.(*ChannelPage); ok && p.Page == page && p.Size == size {
			return p, nil
		}
	}

	seq := c.Cache.Begin(KeyChannels)
	respBody, err := c.doRequest("GET", fmt.Sprintf("/channels?page=%d&size=%d", page, size), nil)
	if err != nil {
		c.Cache.Fail(KeyChannels, seq)
		return nil, err
	}

	var resp ChannelPage
	if err := json.Unmarshal(respBody, &resp); err != nil {
		c.Cache.Fail(KeyChannels, seq)
		return nil, err
	}
	c.Cache.Complete(KeyChannels, seq, &resp)
	return &resp, nil
}

// CreateChannelRequest is the request body for creating a channel.
type CreateChannelRequest struct {
	Name      string   `json:"name"`
	Topic     string   `json:"topic,omitempty"`
	IsPrivate bool     `json:"is_private"`
	TeamID    *string  `json:"team_id,omitempty"`
	MemberIDs []string `json:"member_ids,omitempty"`
}

// CreateChannel creates a channel with the caller as owner.
func (c *Client) CreateChannel(req CreateChannelRequest) (*Channel, error) {
	body, _ := json.Marshal(req)
	respBody, err := c.doRequest("POST", "/channels", body)
	if err != nil {
		return nil, err
	}

	var resp Channel
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	c.Cache.MarkStale(KeyChannels)
	return &resp, nil
}

// GetChannel fetches a single channel with its member list.
func (c *Client) GetChannel(channelID string) (*Channel, error) {
	respBody, err := c.doRequest("GET", "/channels/"+channelID, nil)
	if err != nil {
		return nil, err
	}

	var resp Channel
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateChannelRequest is the request body for updating a channel. Nil
// fields are left unchanged.
type UpdateChannelRequest struct {
	Name      *string `json:"name,omitempty"`
	Topic     *string `json:"topic,omitempty"`
	IsPrivate *bool   `json:"is_private,omitempty"`
}

// UpdateChannel updates a channel's name, topic or privacy.
func (c *Client) UpdateChannel(channelID string, req UpdateChannelRequest) (*Channel, error) {
	body, _ := json.Marshal(req)
	respBody, err := c.doRequest("PATCH", "/channels/"+channelID, body)
	if err != nil {
		return nil, err
	}

	var resp Channel
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	c.Cache.MarkStale(KeyChannels)
	return &resp, nil
}

// ArchiveChannel archives a channel. Archived channels keep their history.
func (c *Client) ArchiveChannel(channelID string) error {
	if _, err := c.doRequest("DELETE", "/channels/"+channelID, nil); err != nil {
		return err
	}
	c.Cache.MarkStale(KeyChannels)
	return nil
}

// AddMemberRequest is the request body for adding a channel member.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// AddMember adds a user to a channel.
func (c *Client) AddMember(channelID, userID, role string) (*ChannelMember, error) {
	body, _ := json.Marshal(AddMemberRequest{UserID: userID, Role: role})
	respBody, err := c.doRequest("POST", "/channels/"+channelID+"/members", body)
	if err != nil {
		return nil, err
	}

	var resp ChannelMember
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	c.Cache.MarkStale(KeyChannels)
	return &resp, nil
}

// UpdateMemberRole changes a member's role.
func (c *Client) UpdateMemberRole(channelID, userID, role string) (*ChannelMember, error) {
	body, _ := json.Marshal(struct {
		Role string `json:"role"`
	}{Role: role})
	respBody, err := c.doRequest("PATCH", "/channels/"+channelID+"/members/"+userID, body)
	if err != nil {
		return nil, err
	}

	var resp ChannelMember
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	c.Cache.MarkStale(KeyChannels)
	return &resp, nil
}

// RemoveMember removes a user from a channel. Removing the last owner is
// rejected by the server.
func (c *Client) RemoveMember(channelID, userID string) error {
	if _, err := c.doRequest("DELETE", "/channels/"+channelID+"/members/"+userID, nil); err != nil {
		return err
	}
	c.Cache.MarkStale(KeyChannels)
	return nil
}

// ListMessages lists a channel's messages, cached per channel view.
func (c *Client) ListMessages(channelID string, page, size int) (*MessagePage, error) {
	key := KeyMessages(channelID)
	if cached, ok := c.Cache.Get(key); ok {
		if p, ok := cached.(*MessagePage); ok && p.Page == page && p.Size == size {
			return p, nil
		}
	}

	seq := c.Cache.Begin(key)
	path := fmt.Sprintf("/channels/%s/messages?page=%d&size=%d", channelID, page, size)
	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		c.Cache.Fail(key, seq)
		return nil, err
	}

	var resp MessagePage
	if err := json.Unmarshal(respBody, &resp); err != nil {
		c.Cache.Fail(key, seq)
		return nil, err
	}
	c.Cache.Complete(key, seq, &resp)
	return &resp, nil
}

// GetMessage fetches a single message with its reactions, attachments and
// resource links.
func (c *Client) GetMessage(messageID string) (*Message, error) {
	respBody, err := c.doRequest("GET", "/messages/"+messageID, nil)
	if err != nil {
		return nil, err
	}

	var resp Message
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AttachmentRequest describes a file to attach when sending a message.
type AttachmentRequest struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// ResourceLinkRequest describes a CRM resource to link to a message.
type ResourceLinkRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Label        string `json:"label,omitempty"`
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	Content       string                `json:"content"`
	ParentID      string                `json:"parent_id,omitempty"`
	Attachments   []AttachmentRequest   `json:"attachments,omitempty"`
	ResourceLinks []ResourceLinkRequest `json:"resource_links,omitempty"`
}

// SendMessage posts a message to a channel. Set ParentID to reply in a
// thread; the parent must live in the same channel.
func (c *Client) SendMessage(channelID string, req SendMessageRequest) (*Message, error) {
	body, _ := json.Marshal(req)
	respBody, err := c.doRequest("POST", "/channels/"+channelID+"/messages", body)
	if err != nil {
		return nil, err
	}

	var resp Message
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	c.Cache.MarkStale(KeyMessages(channelID), KeyChannels, KeySearch)
	return &resp, nil
}

// EditMessage replaces a message's content. Only the author may edit.
func (c *Client) EditMessage(channelID, messageID, content string) (*Message, error) {
	body, _ := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: content})
	respBody, err := c.doRequest("PATCH", "/messages/"+messageID, body)
	if err != nil {
		return nil, err
	}

	var resp Message
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	c.Cache.MarkStale(KeyMessages(channelID), KeySearch)
	return &resp, nil
}

// DeleteMessage soft-deletes a message. The row stays in place so thread
// replies keep their parent.
func (c *Client) DeleteMessage(channelID, messageID string) error {
	if _, err := c.doRequest("DELETE", "/messages/"+messageID, nil); err != nil {
		return err
	}
	c.Cache.MarkStale(KeyMessages(channelID), KeySearch)
	return nil
}

// React adds the calling user's emoji reaction to a message.
func (c *Client) React(channelID, messageID, emoji string) (*Reaction, error) {
	body, _ := json.Marshal(struct {
		Emoji string `json:"emoji"`
	}{Emoji: emoji})
	respBody, err := c.doRequest("POST", "/messages/"+messageID+"/reactions", body)
	if err != nil {
		return nil, err
	}

	var resp Reaction
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	c.Cache.MarkStale(KeyMessages(channelID))
	return &resp, nil
}

// Unreact removes the calling user's emoji reaction from a message.
func (c *Client) Unreact(channelID, messageID, emoji string) error {
	path := "/messages/" + messageID + "/reactions?emoji=" + url.QueryEscape(emoji)
	if _, err := c.doRequest("DELETE", path, nil); err != nil {
		return err
	}
	c.Cache.MarkStale(KeyMessages(channelID))
	return nil
}

// ToggleReaction adds the reaction when the calling user has not reacted
// with this emoji and removes it when they have. The wire protocol keeps
// the two verbs separate; this is the single place where the toggle
// decision is made. It fetches the message's own state rather than the
// paged channel view, so the decision holds for messages on any page.
// It reports whether the reaction was added.
func (c *Client) ToggleReaction(channelID, messageID, emoji string) (bool, error) {
	msg, err := c.GetMessage(messageID)
	if err != nil {
		return false, err
	}

	has := false
	for _, r := range msg.Reactions {
		if r.UserID == c.UserID && r.Emoji == emoji {
			has = true
			break
		}
	}

	if has {
		if err := c.Unreact(channelID, messageID, emoji); err != nil {
			return false, err
		}
		return false, nil
	}
	if _, err := c.React(channelID, messageID, emoji); err != nil {
		return false, err
	}
	return true, nil
}

// AttachResource links a CRM resource to an existing message.
func (c *Client) AttachResource(channelID, messageID string, req ResourceLinkRequest) (*ResourceLink, error) {
	body, _ := json.Marshal(req)
	respBody, err := c.doRequest("POST", "/messages/"+messageID+"/resources", body)
	if err != nil {
		return nil, err
	}

	var resp ResourceLink
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	c.Cache.MarkStale(KeyMessages(channelID))
	return &resp, nil
}

// PinnedResources fetches the deduplicated resource view of a channel.
func (c *Client) PinnedResources(channelID string) (*PinnedResourcePage, error) {
	respBody, err := c.doRequest("GET", "/channels/"+channelID+"/resources", nil)
	if err != nil {
		return nil, err
	}

	var resp PinnedResourcePage
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search searches message content across channels. A blank query returns
// an empty page without hitting the server, mirroring the API's behavior.
// All searches contend on one view, so when queries are fired in rapid
// succession only the newest response is installed in the cache.
func (c *Client) Search(query string, page, size int) (*MessagePage, error) {
	if strings.TrimSpace(query) == "" {
		return &MessagePage{Items: []Message{}, Page: page, Size: size}, nil
	}

	seq := c.Cache.Begin(KeySearch)
	path := fmt.Sprintf("/communications/search?q=%s&page=%d&size=%d", url.QueryEscape(query), page, size)
	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		c.Cache.Fail(KeySearch, seq)
		return nil, err
	}

	var resp MessagePage
	if err := json.Unmarshal(respBody, &resp); err != nil {
		c.Cache.Fail(KeySearch, seq)
		return nil, err
	}
	c.Cache.Complete(KeySearch, seq, &resp)
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
