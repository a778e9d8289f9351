package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ilyrer/immonow-comms/internal/api/middleware"
	"github.com/ilyrer/immonow-comms/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "comms.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), db, nil, middleware.RateLimiterConfig{}))
	t.Cleanup(srv.Close)
	return srv
}

// doJSON performs a request as the given user and decodes the JSON body.
func doJSON(t *testing.T, method, rawURL, userID string, reqBody, out interface{}) *http.Response {
	t.Helper()

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, rawURL, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserHeader, userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatal(err)
		}
	}
	return resp
}

type channelResp struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Topic   string `json:"topic"`
	Members []struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	} `json:"members"`
}

type messageResp struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	ParentID  string `json:"parent_id"`
	IsDeleted bool   `json:"is_deleted"`
	Reactions []struct {
		Emoji  string `json:"emoji"`
		UserID string `json:"user_id"`
	} `json:"reactions"`
}

type pageResp struct {
	Items json.RawMessage `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

func createChannel(t *testing.T, srv *httptest.Server, userID, name string) channelResp {
	t.Helper()
	var ch channelResp
	resp := doJSON(t, "POST", srv.URL+"/channels", userID, map[string]interface{}{"name": name}, &ch)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create channel: expected 201, got %d", resp.StatusCode)
	}
	return ch
}

func sendMessage(t *testing.T, srv *httptest.Server, userID, channelID string, body map[string]interface{}) messageResp {
	t.Helper()
	var msg messageResp
	resp := doJSON(t, "POST", srv.URL+"/channels/"+channelID+"/messages", userID, body, &msg)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send message: expected 201, got %d", resp.StatusCode)
	}
	return msg
}

func TestIdentityRequired(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, "GET", srv.URL+"/channels", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", resp.StatusCode)
	}

	resp = doJSON(t, "GET", srv.URL+"/channels", "not-a-uuid", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed identity, got %d", resp.StatusCode)
	}
}

func TestChannelLifecycle(t *testing.T) {
	srv := newTestServer(t)
	user := uuid.New().String()

	ch := createChannel(t, srv, user, "deals-q3")
	if len(ch.Members) != 1 || ch.Members[0].Role != "owner" {
		t.Fatalf("creator should become owner, got %+v", ch.Members)
	}

	var page pageResp
	resp := doJSON(t, "GET", srv.URL+"/channels", user, nil, &page)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if page.Total != 1 || page.Page != 1 || page.Size != 50 {
		t.Fatalf("unexpected envelope: %+v", page)
	}

	var updated channelResp
	topic := "Q3 pipeline"
	resp = doJSON(t, "PATCH", srv.URL+"/channels/"+ch.ID, user, map[string]interface{}{"topic": topic}, &updated)
	if resp.StatusCode != http.StatusOK || updated.Topic != topic {
		t.Fatalf("patch failed: status %d, topic %q", resp.StatusCode, updated.Topic)
	}

	resp = doJSON(t, "DELETE", srv.URL+"/channels/"+ch.ID, user, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("archive: expected 204, got %d", resp.StatusCode)
	}
	resp = doJSON(t, "GET", srv.URL+"/channels", user, nil, &page)
	if resp.StatusCode != http.StatusOK || page.Total != 0 {
		t.Fatal("archived channel should disappear from the list")
	}
}

func TestBlankChannelNameGetsDefault(t *testing.T) {
	srv := newTestServer(t)
	user := uuid.New().String()

	ch := createChannel(t, srv, user, "   ")
	if !strings.HasPrefix(ch.Name, "channel-") {
		t.Fatalf("blank name should default to channel-<ts>, got %q", ch.Name)
	}
}

func TestChannelNotFound(t *testing.T) {
	srv := newTestServer(t)
	user := uuid.New().String()

	resp := doJSON(t, "GET", srv.URL+"/channels/"+uuid.New().String(), user, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMembershipConflicts(t *testing.T) {
	srv := newTestServer(t)
	owner := uuid.New().String()
	member := uuid.New().String()

	ch := createChannel(t, srv, owner, "membership")

	resp := doJSON(t, "POST", srv.URL+"/channels/"+ch.ID+"/members", owner, map[string]interface{}{"user_id": member}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add member: expected 201, got %d", resp.StatusCode)
	}
	resp = doJSON(t, "POST", srv.URL+"/channels/"+ch.ID+"/members", owner, map[string]interface{}{"user_id": member}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate member: expected 409, got %d", resp.StatusCode)
	}

	// The only owner can neither leave nor be demoted.
	resp = doJSON(t, "DELETE", srv.URL+"/channels/"+ch.ID+"/members/"+owner, owner, nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("last owner removal: expected 409, got %d", resp.StatusCode)
	}
	resp = doJSON(t, "PATCH", srv.URL+"/channels/"+ch.ID+"/members/"+owner, owner, map[string]interface{}{"role": "member"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("last owner demotion: expected 409, got %d", resp.StatusCode)
	}

	resp = doJSON(t, "POST", srv.URL+"/channels/"+ch.ID+"/members", owner, map[string]interface{}{"user_id": uuid.New().String(), "role": "admin"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown role: expected 400, got %d", resp.StatusCode)
	}
}

func TestMessageFlow(t *testing.T) {
	srv := newTestServer(t)
	owner := uuid.New().String()
	ch := createChannel(t, srv, owner, "messages")

	root := sendMessage(t, srv, owner, ch.ID, map[string]interface{}{"content": "root post"})
	sendMessage(t, srv, owner, ch.ID, map[string]interface{}{"content": "threaded reply", "parent_id": root.ID})

	resp := doJSON(t, "POST", srv.URL+"/channels/"+ch.ID+"/messages", owner, map[string]interface{}{"content": "   "}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("blank content: expected 422, got %d", resp.StatusCode)
	}

	var page pageResp
	resp = doJSON(t, "GET", srv.URL+"/channels/"+ch.ID+"/messages", owner, nil, &page)
	if resp.StatusCode != http.StatusOK || page.Total != 2 {
		t.Fatalf("expected both messages listed, status %d total %d", resp.StatusCode, page.Total)
	}

	var fetched messageResp
	resp = doJSON(t, "GET", srv.URL+"/messages/"+root.ID, owner, nil, &fetched)
	if resp.StatusCode != http.StatusOK || fetched.ID != root.ID {
		t.Fatalf("single fetch failed: status %d id %q", resp.StatusCode, fetched.ID)
	}
	resp = doJSON(t, "GET", srv.URL+"/messages/"+uuid.New().String(), owner, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown message: expected 404, got %d", resp.StatusCode)
	}

	var edited messageResp
	resp = doJSON(t, "PATCH", srv.URL+"/messages/"+root.ID, owner, map[string]interface{}{"content": "edited"}, &edited)
	if resp.StatusCode != http.StatusOK || edited.Content != "edited" {
		t.Fatalf("edit failed: status %d content %q", resp.StatusCode, edited.Content)
	}

	// Edits by anyone else are forbidden.
	resp = doJSON(t, "PATCH", srv.URL+"/messages/"+root.ID, uuid.New().String(), map[string]interface{}{"content": "hijack"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign edit: expected 403, got %d", resp.StatusCode)
	}

	resp = doJSON(t, "DELETE", srv.URL+"/messages/"+root.ID, owner, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp = doJSON(t, "PATCH", srv.URL+"/messages/"+root.ID, owner, map[string]interface{}{"content": "revive"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("edit after delete: expected 409, got %d", resp.StatusCode)
	}

	// The deleted row still occupies the list with blanked content.
	var msgs []messageResp
	doJSON(t, "GET", srv.URL+"/channels/"+ch.ID+"/messages", owner, nil, &page)
	if err := json.Unmarshal(page.Items, &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || !msgs[0].IsDeleted || msgs[0].Content != "" {
		t.Fatalf("soft delete should blank content in place, got %+v", msgs)
	}
}

func TestReactionVerbs(t *testing.T) {
	srv := newTestServer(t)
	owner := uuid.New().String()
	ch := createChannel(t, srv, owner, "reacting")
	msg := sendMessage(t, srv, owner, ch.ID, map[string]interface{}{"content": "react here"})

	resp := doJSON(t, "POST", srv.URL+"/messages/"+msg.ID+"/reactions", owner, map[string]interface{}{"emoji": "👍"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("react: expected 201, got %d", resp.StatusCode)
	}
	// Reacting twice converges, not errors.
	resp = doJSON(t, "POST", srv.URL+"/messages/"+msg.ID+"/reactions", owner, map[string]interface{}{"emoji": "👍"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("double react: expected 201, got %d", resp.StatusCode)
	}

	var page pageResp
	var msgs []messageResp
	doJSON(t, "GET", srv.URL+"/channels/"+ch.ID+"/messages", owner, nil, &page)
	if err := json.Unmarshal(page.Items, &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs[0].Reactions) != 1 {
		t.Fatalf("expected a single reaction, got %d", len(msgs[0].Reactions))
	}

	resp = doJSON(t, "DELETE", srv.URL+"/messages/"+msg.ID+"/reactions?emoji="+url.QueryEscape("👍"), owner, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("un-react: expected 204, got %d", resp.StatusCode)
	}
}

func TestResourceLinksAndPinnedView(t *testing.T) {
	srv := newTestServer(t)
	owner := uuid.New().String()
	ch := createChannel(t, srv, owner, "resources")

	sendMessage(t, srv, owner, ch.ID, map[string]interface{}{
		"content": "take a look",
		"resource_links": []map[string]interface{}{
			{"resource_type": "property", "resource_id": "prop-1", "label": "Altbau"},
		},
	})
	msg := sendMessage(t, srv, owner, ch.ID, map[string]interface{}{"content": "same one again"})

	resp := doJSON(t, "POST", srv.URL+"/messages/"+msg.ID+"/resources", owner, map[string]interface{}{
		"resource_type": "property", "resource_id": "prop-1", "label": "renamed",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("attach: expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, "POST", srv.URL+"/messages/"+msg.ID+"/resources", owner, map[string]interface{}{
		"resource_type": "listing", "resource_id": "x",
	}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad type: expected 422, got %d", resp.StatusCode)
	}

	var page pageResp
	resp = doJSON(t, "GET", srv.URL+"/channels/"+ch.ID+"/resources", owner, nil, &page)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pinned view: expected 200, got %d", resp.StatusCode)
	}
	var pinned []struct {
		ResourceID string `json:"resource_id"`
		Label      string `json:"label"`
	}
	if err := json.Unmarshal(page.Items, &pinned); err != nil {
		t.Fatal(err)
	}
	if len(pinned) != 1 {
		t.Fatalf("repeat links should dedup to one entry, got %d", len(pinned))
	}
	if pinned[0].Label != "Altbau" {
		t.Fatalf("first label should stick, got %q", pinned[0].Label)
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(t)
	owner := uuid.New().String()
	ch := createChannel(t, srv, owner, "searching")

	sendMessage(t, srv, owner, ch.ID, map[string]interface{}{"content": "Viewing at Hafenstrasse"})
	sendMessage(t, srv, owner, ch.ID, map[string]interface{}{"content": "unrelated"})

	var page pageResp
	resp := doJSON(t, "GET", srv.URL+"/communications/search?q=hafen", owner, nil, &page)
	if resp.StatusCode != http.StatusOK || page.Total != 1 {
		t.Fatalf("expected 1 match, status %d total %d", resp.StatusCode, page.Total)
	}

	// Blank queries short-circuit to an empty page.
	resp = doJSON(t, "GET", srv.URL+"/communications/search?q=%20%20", owner, nil, &page)
	if resp.StatusCode != http.StatusOK || page.Total != 0 {
		t.Fatalf("blank query should return an empty page, status %d total %d", resp.StatusCode, page.Total)
	}
	var items []messageResp
	if err := json.Unmarshal(page.Items, &items); err != nil {
		t.Fatal(err)
	}
	if items == nil || len(items) != 0 {
		t.Fatal("blank query items should be an empty array, not null")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var health struct {
		Status string `json:"status"`
	}
	resp := doJSON(t, "GET", srv.URL+"/health", "", nil, &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if health.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", health.Status)
	}
}
