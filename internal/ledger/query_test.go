package ledger

import (
	"context"
	"testing"
	"time"
)

func seedQueries(t *testing.T) (*MemoryStore, *QueryService) {
	t.Helper()
	store := NewMemoryStore()
	w := newTestWriter(store)
	ctx := context.Background()

	inputs := []ActionInput{
		{ActorID: "admin-1", ActionType: "CREATE", EntityType: "patient", EntityID: "p-1"},
		{ActorID: "admin-1", ActionType: "UPDATE", EntityType: "patient", EntityID: "p-1"},
		{ActorID: "doctor-2", ActionType: "REVIEW", EntityType: "diagnosis", EntityID: "dx-7"},
		{ActorID: "admin-1", ActionType: "APPROVE", EntityType: "doctorprofile", EntityID: "d-3"},
		{ActorID: "doctor-2", ActionType: "UPDATE", EntityType: "patient", EntityID: "p-2"},
	}
	for i, in := range inputs {
		if _, err := w.LogAction(ctx, in); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	return store, NewQueryService(store, 24*time.Hour)
}

func TestEntries_FilterByActionType(t *testing.T) {
	_, q := seedQueries(t)

	entries, total, err := q.Entries(context.Background(), Filter{ActionType: "update"}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("total: got %d, want 2", total)
	}
	for _, e := range entries {
		if e.ActionType != "UPDATE" {
			t.Errorf("unexpected action type %q", e.ActionType)
		}
	}
}

func TestEntries_OrderedNewestFirst(t *testing.T) {
	_, q := seedQueries(t)

	entries, _, err := q.Entries(context.Background(), Filter{}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].BlockNumber > entries[i-1].BlockNumber {
			t.Fatalf("entries not newest-first: block %d before %d",
				entries[i-1].BlockNumber, entries[i].BlockNumber)
		}
	}
}

func TestEntries_Pagination(t *testing.T) {
	_, q := seedQueries(t)

	page1, total, err := q.Entries(context.Background(), Filter{}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	page2, _, err := q.Entries(context.Background(), Filter{}, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("total: got %d, want 5", total)
	}
	if len(page1) != 2 || len(page2) != 2 {
		t.Errorf("page sizes: got %d and %d, want 2 and 2", len(page1), len(page2))
	}
	if page1[0].BlockNumber == page2[0].BlockNumber {
		t.Error("pages overlap")
	}
}

func TestEntries_DateRange(t *testing.T) {
	_, q := seedQueries(t)

	future := time.Now().UTC().Add(time.Hour)
	_, total, err := q.Entries(context.Background(), Filter{Start: &future}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("expected no entries after %v, got %d", future, total)
	}

	past := time.Now().UTC().Add(-time.Hour)
	_, total, err = q.Entries(context.Background(), Filter{Start: &past}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("expected all 5 entries since %v, got %d", past, total)
	}
}

func TestEntityHistory(t *testing.T) {
	_, q := seedQueries(t)

	// Entity type is normalised, so the mixed-case request still matches.
	entries, total, err := q.EntityHistory(context.Background(), "Patient", "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("total: got %d, want 2", total)
	}
	for _, e := range entries {
		if e.EntityID != "p-1" {
			t.Errorf("unexpected entity %q in history", e.EntityID)
		}
	}
}

func TestActorActivity(t *testing.T) {
	_, q := seedQueries(t)

	_, total, err := q.ActorActivity(context.Background(), "doctor-2", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("total: got %d, want 2", total)
	}
}

func TestStats(t *testing.T) {
	_, q := seedQueries(t)

	stats, err := q.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalEntries != 5 {
		t.Errorf("total entries: got %d, want 5", stats.TotalEntries)
	}
	if stats.RecentEntries != 5 {
		t.Errorf("recent entries: got %d, want 5", stats.RecentEntries)
	}
	if stats.UniqueActors != 2 {
		t.Errorf("unique actors: got %d, want 2", stats.UniqueActors)
	}
	if stats.ByActionType["UPDATE"] != 2 {
		t.Errorf("UPDATE count: got %d, want 2", stats.ByActionType["UPDATE"])
	}
	if stats.ByEntityType["patient"] != 3 {
		t.Errorf("patient count: got %d, want 3", stats.ByEntityType["patient"])
	}
}
