package comms

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const testUser = "3f2a9b1c-0000-4000-8000-000000000001"

func TestToggleReactionChoosesVerb(t *testing.T) {
	var reactedVerbs []string
	var listHits int32

	mux := http.NewServeMux()
	mux.HandleFunc("/channels/ch-1/messages", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listHits, 1)
		json.NewEncoder(w).Encode(MessagePage{Items: []Message{}})
	})
	mux.HandleFunc("/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Message{
			ID:        "m1",
			ChannelID: "ch-1",
			Content:   "root",
			Reactions: []Reaction{
				{ID: "r1", Emoji: "👍", UserID: testUser},
				{ID: "r2", Emoji: "👍", UserID: "someone-else"},
			},
		})
	})
	mux.HandleFunc("/messages/m1/reactions", func(w http.ResponseWriter, r *http.Request) {
		reactedVerbs = append(reactedVerbs, r.Method)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Reaction{ID: "r3", Emoji: "🔥", UserID: testUser})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewClient(srv.URL, testUser)

	// The user already reacted with 👍, so toggling removes it.
	added, err := c.ToggleReaction("ch-1", "m1", "👍")
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Fatal("existing reaction should toggle off")
	}

	// No 🔥 reaction from this user yet, so toggling adds one. The other
	// user's identical emoji must not count as ours.
	added, err = c.ToggleReaction("ch-1", "m1", "🔥")
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Fatal("missing reaction should toggle on")
	}

	want := []string{http.MethodDelete, http.MethodPost}
	if len(reactedVerbs) != 2 || reactedVerbs[0] != want[0] || reactedVerbs[1] != want[1] {
		t.Fatalf("expected verbs %v, got %v", want, reactedVerbs)
	}
	// The decision reads the message itself, never the paged channel view,
	// so messages beyond the first page toggle correctly too.
	if n := atomic.LoadInt32(&listHits); n != 0 {
		t.Fatalf("toggle should not consult the channel list, got %d fetches", n)
	}
}

func TestListChannelsServedFromCache(t *testing.T) {
	var listHits int32

	mux := http.NewServeMux()
	mux.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Channel{ID: "ch-new", Name: "fresh"})
			return
		}
		atomic.AddInt32(&listHits, 1)
		json.NewEncoder(w).Encode(ChannelPage{Items: []Channel{{ID: "ch-1", Name: "one"}}, Total: 1, Page: 1, Size: 50})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewClient(srv.URL, testUser)

	if _, err := c.ListChannels(1, 50); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListChannels(1, 50); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&listHits); n != 1 {
		t.Fatalf("second read should come from cache, got %d server hits", n)
	}

	// A successful mutation stales the view; the next read refetches.
	if _, err := c.CreateChannel(CreateChannelRequest{Name: "fresh"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListChannels(1, 50); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&listHits); n != 2 {
		t.Fatalf("mutation should force a refetch, got %d server hits", n)
	}
}

func TestFailedMutationStalesNothing(t *testing.T) {
	var listHits int32

	mux := http.NewServeMux()
	mux.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "member already exists"})
			return
		}
		atomic.AddInt32(&listHits, 1)
		json.NewEncoder(w).Encode(ChannelPage{Items: []Channel{}, Total: 0, Page: 1, Size: 50})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewClient(srv.URL, testUser)

	if _, err := c.ListChannels(1, 50); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreateChannel(CreateChannelRequest{Name: "x"}); err == nil {
		t.Fatal("expected the create to fail")
	}
	if _, err := c.ListChannels(1, 50); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&listHits); n != 1 {
		t.Fatalf("failed mutation must not stale the view, got %d server hits", n)
	}
}

func TestSearchBlankQuerySkipsServer(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/communications/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(MessagePage{Items: []Message{}})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewClient(srv.URL, testUser)

	page, err := c.Search("   ", 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 {
		t.Fatal("blank query should return an empty page")
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("blank query must not hit the server")
	}
}

func TestUserHeaderSent(t *testing.T) {
	var got string
	mux := http.NewServeMux()
	mux.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(UserHeader)
		json.NewEncoder(w).Encode(ChannelPage{})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewClient(srv.URL, testUser)

	if _, err := c.ListChannels(1, 50); err != nil {
		t.Fatal(err)
	}
	if got != testUser {
		t.Fatalf("expected identity header %q, got %q", testUser, got)
	}
}

func TestErrorResponseSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewClient(srv.URL, testUser)

	_, err := c.GetChannel("missing")
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "comms error 404: not found" {
		t.Fatalf("unexpected error text: %v", err)
	}
}
