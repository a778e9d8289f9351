package models

import (
	"testing"
	"time"
)

func msg(id, parentID string, at time.Time) ChannelMessage {
	return ChannelMessage{ID: id, ParentID: parentID, Content: "m-" + id, CreatedAt: at}
}

func TestSortMessagesOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []ChannelMessage{
		msg("03", "", base.Add(2*time.Minute)),
		msg("01", "", base),
		msg("02", "", base.Add(time.Minute)),
	}

	SortMessages(msgs)

	want := []string{"01", "02", "03"}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, msgs[i].ID)
		}
	}
}

func TestSortMessagesTiebreakOnID(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []ChannelMessage{
		msg("0B", "", at),
		msg("0A", "", at),
	}

	SortMessages(msgs)

	if msgs[0].ID != "0A" || msgs[1].ID != "0B" {
		t.Fatalf("equal timestamps should order by ID, got %s, %s", msgs[0].ID, msgs[1].ID)
	}
}

func TestGroupThreadsPartition(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []ChannelMessage{
		msg("01", "", base),
		msg("03", "01", base.Add(2*time.Minute)),
		msg("02", "", base.Add(time.Minute)),
		msg("04", "01", base.Add(3*time.Minute)),
	}

	threads := GroupThreads(msgs)

	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	if threads[0].RootID != "01" || threads[1].RootID != "02" {
		t.Fatalf("expected roots 01, 02, got %s, %s", threads[0].RootID, threads[1].RootID)
	}
	if len(threads[0].Replies) != 2 {
		t.Fatalf("expected 2 replies under 01, got %d", len(threads[0].Replies))
	}
	if threads[0].Replies[0].ID != "03" || threads[0].Replies[1].ID != "04" {
		t.Fatal("replies should stay in creation order")
	}

	// Every message lands in exactly one thread.
	total := 0
	for _, th := range threads {
		if th.Root != nil {
			total++
		}
		total += len(th.Replies)
	}
	if total != len(msgs) {
		t.Fatalf("expected %d messages across threads, got %d", len(msgs), total)
	}
}

func TestGroupThreadsMissingParent(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []ChannelMessage{
		msg("05", "99", base),
	}

	threads := GroupThreads(msgs)

	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	if threads[0].RootID != "99" {
		t.Fatalf("expected thread keyed by missing parent 99, got %s", threads[0].RootID)
	}
	if threads[0].Root != nil {
		t.Fatal("root should be nil when the parent was not fetched")
	}
	if len(threads[0].Replies) != 1 || threads[0].Replies[0].ID != "05" {
		t.Fatal("reply should not be orphaned")
	}
}

func TestPinnedResourcesDedup(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	m1 := msg("01", "", base)
	m1.ResourceLinks = []ResourceLink{
		{ResourceType: ResourceProperty, ResourceID: "p-1", Label: "Seaside flat"},
	}
	m2 := msg("02", "", base.Add(time.Minute))
	m2.ResourceLinks = []ResourceLink{
		{ResourceType: ResourceProperty, ResourceID: "p-1", Label: "renamed"},
		{ResourceType: ResourceContact, ResourceID: "c-1", Label: "Buyer"},
	}

	// Out of order on purpose; dedup must follow creation order.
	pinned := PinnedResources([]ChannelMessage{m2, m1})

	if len(pinned) != 2 {
		t.Fatalf("expected 2 pinned resources, got %d", len(pinned))
	}
	if pinned[0].ResourceID != "p-1" || pinned[0].Label != "Seaside flat" {
		t.Fatalf("first occurrence should win, got label %q", pinned[0].Label)
	}
	if pinned[1].ResourceType != ResourceContact || pinned[1].ResourceID != "c-1" {
		t.Fatal("expected the contact link second")
	}
}

func TestPinnedResourcesSkipsDeleted(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	m := msg("01", "", base)
	m.IsDeleted = true
	m.ResourceLinks = []ResourceLink{
		{ResourceType: ResourceTask, ResourceID: "t-1"},
	}

	pinned := PinnedResources([]ChannelMessage{m})
	if len(pinned) != 0 {
		t.Fatalf("deleted messages should not contribute resources, got %d", len(pinned))
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []Role{RoleOwner, RoleMember, RoleGuest} {
		if !ValidRole(role) {
			t.Fatalf("expected %s to be valid", role)
		}
	}
	if ValidRole("admin") {
		t.Fatal("unknown role should be invalid")
	}
}

func TestValidResourceType(t *testing.T) {
	for _, rt := range []ResourceType{ResourceContact, ResourceProperty, ResourceTask} {
		if !ValidResourceType(rt) {
			t.Fatalf("expected %s to be valid", rt)
		}
	}
	if ValidResourceType("listing") {
		t.Fatal("unknown resource type should be invalid")
	}
}
