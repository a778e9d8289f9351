package models

import "sort"

// Thread is a root message together with its ordered replies.
type Thread struct {
	Root    *ChannelMessage  `json:"root,omitempty"` // nil when the root was never fetched
	RootID  string           `json:"root_id"`
	Replies []ChannelMessage `json:"replies"`
}

// byCreation orders messages by CreatedAt ascending, breaking ties on ID so
// the order is total and stable across reads.
func byCreation(msgs []ChannelMessage) func(i, j int) bool {
	return func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	}
}

// SortMessages sorts msgs in place by CreatedAt ascending with ID tiebreak.
func SortMessages(msgs []ChannelMessage) {
	sort.SliceStable(msgs, byCreation(msgs))
}

// GroupThreads partitions a channel's messages into ordered root messages and
// replies grouped under their parent id. Grouping is derived, never stored.
// A reply whose parent is missing from msgs (or soft-deleted) still gets a
// thread entry under that parent id, so no message is ever orphaned.
func GroupThreads(msgs []ChannelMessage) []Thread {
	sorted := make([]ChannelMessage, len(msgs))
	copy(sorted, msgs)
	SortMessages(sorted)

	var order []string
	threads := make(map[string]*Thread)

	for i := range sorted {
		m := sorted[i]
		if m.ParentID == "" {
			t, ok := threads[m.ID]
			if !ok {
				t = &Thread{RootID: m.ID}
				threads[m.ID] = t
				order = append(order, m.ID)
			}
			root := m
			t.Root = &root
		} else {
			t, ok := threads[m.ParentID]
			if !ok {
				t = &Thread{RootID: m.ParentID}
				threads[m.ParentID] = t
				order = append(order, m.ParentID)
			}
			t.Replies = append(t.Replies, m)
		}
	}

	out := make([]Thread, 0, len(order))
	for _, id := range order {
		out = append(out, *threads[id])
	}
	return out
}

// PinnedResource is one entry of a channel's pinned-resources view.
type PinnedResource struct {
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	Label        string       `json:"label,omitempty"`
}

// PinnedResources builds the deduplicated resource view for a channel from
// its messages: first occurrence wins per (type, id), scanning non-deleted
// messages in creation order, so the retained label is the oldest one.
func PinnedResources(msgs []ChannelMessage) []PinnedResource {
	sorted := make([]ChannelMessage, len(msgs))
	copy(sorted, msgs)
	SortMessages(sorted)

	type key struct {
		t  ResourceType
		id string
	}
	seen := make(map[key]bool)
	out := []PinnedResource{}

	for _, m := range sorted {
		if m.IsDeleted {
			continue
		}
		for _, l := range m.ResourceLinks {
			k := key{l.ResourceType, l.ResourceID}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, PinnedResource{
				ResourceType: l.ResourceType,
				ResourceID:   l.ResourceID,
				Label:        l.Label,
			})
		}
	}
	return out
}
