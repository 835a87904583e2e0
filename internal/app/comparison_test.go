package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"clarus_vitae/internal/adapters/memory"
	"clarus_vitae/internal/app"
	"clarus_vitae/internal/domain"
)

func newComparison(t *testing.T) (*app.ComparisonService, *memory.SessionStore) {
	t.Helper()
	backend := memory.NewSessionStore()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := app.NewComparisonService(backend, app.NewLocalBus(), "https://clarusvitae.com/compare").
		WithClock(func() time.Time { return fixed })
	return svc, backend
}

func ids(l domain.ComparisonList) []string {
	out := make([]string, 0, len(l.Items))
	for _, it := range l.Items {
		out = append(out, it.PropertyID)
	}
	return out
}

func TestComparison_ReadEmpty(t *testing.T) {
	svc, _ := newComparison(t)
	got := svc.Store("s1", "tab1").Read(context.Background())
	if got.Items == nil || len(got.Items) != 0 {
		t.Fatalf("expected empty non-nil items, got %+v", got)
	}
	if got.MaxItems() != 4 {
		t.Fatalf("max items: %d", got.MaxItems())
	}
}

func TestComparison_AddSetsFields(t *testing.T) {
	svc, _ := newComparison(t)
	got := svc.Store("s1", "tab1").Add(context.Background(), "p1", "prop-a", "Prop A")
	if len(got.Items) != 1 {
		t.Fatalf("items: %+v", got.Items)
	}
	want := domain.ComparisonItem{PropertyID: "p1", PropertySlug: "prop-a", PropertyName: "Prop A", AddedAt: "2026-03-01T12:00:00Z"}
	if got.Items[0] != want {
		t.Fatalf("want %+v, got %+v", want, got.Items[0])
	}
}

func TestComparison_AddIsIdempotent(t *testing.T) {
	svc, _ := newComparison(t)
	st := svc.Store("s1", "tab1")
	ctx := context.Background()

	st.Add(ctx, "p1", "prop-a", "Prop A")
	got := st.Add(ctx, "p1", "prop-a", "Prop A")
	if len(got.Items) != 1 {
		t.Fatalf("duplicate added: %+v", got.Items)
	}
	if again := st.Read(ctx); len(again.Items) != 1 {
		t.Fatalf("persisted duplicate: %+v", again.Items)
	}
}

func TestComparison_CapacityRefusesFifth(t *testing.T) {
	svc, _ := newComparison(t)
	st := svc.Store("s1", "tab1")
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		st.Add(ctx, fmt.Sprintf("p%d", i), fmt.Sprintf("prop-%d", i), "P")
	}
	got := st.Add(ctx, "p5", "prop-5", "P")
	if len(got.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(got.Items))
	}
	if got.Contains("p5") || st.Contains("p5") {
		t.Fatalf("fifth item should be refused")
	}
	if !got.IsFull() {
		t.Fatalf("expected full list")
	}
}

func TestComparison_RemoveKeepsOrder(t *testing.T) {
	svc, _ := newComparison(t)
	st := svc.Store("s1", "tab1")
	ctx := context.Background()

	st.Add(ctx, "A", "a", "A")
	st.Add(ctx, "B", "b", "B")
	st.Add(ctx, "C", "c", "C")
	got := st.Remove(ctx, "B")
	if strings.Join(ids(got), ",") != "A,C" {
		t.Fatalf("want A,C got %v", ids(got))
	}
	// removing an absent id is a no-op
	got = st.Remove(ctx, "Z")
	if strings.Join(ids(got), ",") != "A,C" {
		t.Fatalf("want A,C got %v", ids(got))
	}
}

func TestComparison_Clear(t *testing.T) {
	svc, _ := newComparison(t)
	st := svc.Store("s1", "tab1")
	ctx := context.Background()

	st.Add(ctx, "A", "a", "A")
	if got := st.Clear(ctx); len(got.Items) != 0 {
		t.Fatalf("clear left %v", ids(got))
	}
	if st.Contains("A") {
		t.Fatalf("contains after clear")
	}
}

func TestComparison_SessionsAreIsolated(t *testing.T) {
	svc, _ := newComparison(t)
	ctx := context.Background()
	svc.Store("s1", "tab1").Add(ctx, "A", "a", "A")
	if got := svc.Store("s2", "tab1").Read(ctx); len(got.Items) != 0 {
		t.Fatalf("session leak: %v", ids(got))
	}
	// another tab of the same session sees the write
	if got := svc.Store("s1", "tab2").Read(ctx); strings.Join(ids(got), ",") != "A" {
		t.Fatalf("tab2 should see A, got %v", ids(got))
	}
}

func TestComparison_MalformedStateReadsEmpty(t *testing.T) {
	svc, backend := newComparison(t)
	ctx := context.Background()
	backend.Put("s1", domain.ComparisonStorageKey, "{not json", "other")

	st := svc.Store("s1", "tab1")
	if got := st.Read(ctx); len(got.Items) != 0 {
		t.Fatalf("expected empty, got %+v", got)
	}
	// and the store recovers on the next write
	if got := st.Add(ctx, "A", "a", "A"); len(got.Items) != 1 {
		t.Fatalf("expected recovery, got %+v", got)
	}
}

func TestComparison_StoredDuplicatesAreDropped(t *testing.T) {
	svc, backend := newComparison(t)
	backend.Put("s1", domain.ComparisonStorageKey,
		`{"items":[{"propertyId":"A"},{"propertyId":"A"},{"propertyId":""},{"propertyId":"B"},{"propertyId":"C"},{"propertyId":"D"},{"propertyId":"E"}]}`, "other")

	got := svc.Store("s1", "tab1").Read(context.Background())
	if strings.Join(ids(got), ",") != "A,B,C,D" {
		t.Fatalf("want A,B,C,D got %v", ids(got))
	}
}

func TestComparison_PersistFailureKeepsPriorState(t *testing.T) {
	svc, backend := newComparison(t)
	st := svc.Store("s1", "tab1")
	ctx := context.Background()

	st.Add(ctx, "A", "a", "A")
	backend.FailWrites(errors.New("quota exceeded"))

	if got := st.Add(ctx, "B", "b", "B"); strings.Join(ids(got), ",") != "A" {
		t.Fatalf("want prior state A, got %v", ids(got))
	}
	if got := st.Clear(ctx); strings.Join(ids(got), ",") != "A" {
		t.Fatalf("want prior state A, got %v", ids(got))
	}
	if !st.Contains("A") || st.Contains("B") {
		t.Fatalf("in-memory state diverged")
	}

	backend.FailWrites(nil)
	if got := st.Add(ctx, "B", "b", "B"); strings.Join(ids(got), ",") != "A,B" {
		t.Fatalf("want A,B got %v", ids(got))
	}
}

func TestComparison_ReadFailureDoesNotOverwrite(t *testing.T) {
	svc, backend := newComparison(t)
	ctx := context.Background()
	st := svc.Store("s1", "tab1")
	st.Add(ctx, "A", "a", "A")
	st.Add(ctx, "B", "b", "B")

	other := svc.Store("s1", "tab2")
	backend.FailReads(errors.New("connection reset"))

	if got := other.Add(ctx, "C", "c", "C"); len(got.Items) != 0 {
		t.Fatalf("want prior (empty) state, got %v", ids(got))
	}
	if got := st.Remove(ctx, "A"); strings.Join(ids(got), ",") != "A,B" {
		t.Fatalf("want prior state A,B, got %v", ids(got))
	}
	if got := st.Clear(ctx); strings.Join(ids(got), ",") != "A,B" {
		t.Fatalf("want prior state A,B, got %v", ids(got))
	}
	// plain reads still degrade to empty
	if got := st.Read(ctx); len(got.Items) != 0 {
		t.Fatalf("read: %v", ids(got))
	}

	backend.FailReads(nil)
	if got := other.Read(ctx); strings.Join(ids(got), ",") != "A,B" {
		t.Fatalf("stored list overwritten: %v", ids(got))
	}
}

func TestComparison_EventsHook(t *testing.T) {
	svc, _ := newComparison(t)
	var events []string
	svc.WithEvents(func(e string) { events = append(events, e) })
	st := svc.Store("s1", "tab1")
	ctx := context.Background()

	st.Add(ctx, "A", "a", "A")
	st.Add(ctx, "A", "a", "A")
	st.Remove(ctx, "A")
	st.Clear(ctx)
	if got := strings.Join(events, ","); got != "add,duplicate,remove,clear" {
		t.Fatalf("events: %s", got)
	}
}

func TestComparison_ShareURL(t *testing.T) {
	svc, _ := newComparison(t)
	st := svc.Store("s1", "tab1")
	ctx := context.Background()

	st.Add(ctx, "p1", "prop-a", "Prop A")
	st.Add(ctx, "p2", "prop-b", "Prop B")
	u := st.ShareURL()
	if !strings.Contains(u, "properties=prop-a,prop-b") {
		t.Fatalf("unexpected url %s", u)
	}
}

func TestComparison_SameContextSubscribersAreSignalled(t *testing.T) {
	svc, _ := newComparison(t)
	writer := svc.Store("s1", "tab1")
	reader := svc.Store("s1", "tab1") // second component in the same tab

	sig, unsub := reader.Subscribe()
	defer unsub()

	writer.Add(context.Background(), "A", "a", "A")
	select {
	case <-sig:
	case <-time.After(time.Second):
		t.Fatalf("no same-context signal")
	}
	if !reader.Read(context.Background()).Contains("A") {
		t.Fatalf("reader did not see A")
	}
}

func waitFor(t *testing.T, w *app.ComparisonWatcher, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if strings.Join(ids(w.Current()), ",") == want {
			return
		}
		select {
		case <-w.Updates():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("watcher never reached %q, has %v", want, ids(w.Current()))
		}
	}
}

func TestComparisonWatcher_CrossAndSameContext(t *testing.T) {
	svc, _ := newComparison(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := svc.Watch(ctx, "s1", "tab1")

	// write from another tab: delivered by the storage notification
	svc.Store("s1", "tab2").Add(ctx, "A", "a", "A")
	waitFor(t, w, "A")

	// write from the watcher's own tab: delivered by the local bus
	svc.Store("s1", "tab1").Add(ctx, "B", "b", "B")
	waitFor(t, w, "A,B")

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatalf("watcher did not stop")
	}
}

func TestComparisonWatcher_SessionEndReadsEmpty(t *testing.T) {
	svc, backend := newComparison(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Store("s1", "tab2").Add(ctx, "A", "a", "A")
	w := svc.Watch(ctx, "s1", "tab1")
	waitFor(t, w, "A")

	backend.Drop("s1", domain.ComparisonStorageKey)
	waitFor(t, w, "")
}

// Two contexts doing read-modify-write from the same starting state: the later
// write wins and the other add is lost. This is accepted behaviour, not a bug.
func TestComparison_ConcurrentContextsLastWriteWins(t *testing.T) {
	svc, backend := newComparison(t)
	ctx := context.Background()

	// tab2 writes B over a snapshot it took before tab1 added A
	svc.Store("s1", "tab1").Add(ctx, "A", "a", "A")
	backend.Put("s1", domain.ComparisonStorageKey, `{"items":[{"propertyId":"B","propertySlug":"b"}]}`, "tab2")

	got := svc.Store("s1", "tab1").Read(ctx)
	if strings.Join(ids(got), ",") != "B" {
		t.Fatalf("expected last write to win, got %v", ids(got))
	}
}

func TestShareableURL_RoundTrip(t *testing.T) {
	items := []domain.ComparisonItem{
		{PropertyID: "1", PropertySlug: "six-senses-douro"},
		{PropertyID: "2", PropertySlug: "lanserhof-tegernsee"},
		{PropertyID: "3", PropertySlug: "chenot_palace"},
	}
	u := app.BuildShareableURL("https://clarusvitae.com/compare", items)
	got := app.ParseComparisonURL(u)
	want := []string{"six-senses-douro", "lanserhof-tegernsee", "chenot_palace"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("round trip: want %v got %v (url %s)", want, got, u)
	}
	if u != "https://clarusvitae.com/compare?properties=six-senses-douro,lanserhof-tegernsee,chenot_palace" {
		t.Fatalf("unexpected url %s", u)
	}
}

func TestParseComparisonParam_DropsEmpty(t *testing.T) {
	cases := map[string]string{
		"":         "",
		",":        "",
		",a,,b,":   "a|b",
		"a, b":     "a| b",
		"only-one": "only-one",
	}
	for in, want := range cases {
		if got := strings.Join(app.ParseComparisonParam(in), "|"); got != want {
			t.Fatalf("%q: want %q got %q", in, want, got)
		}
	}
}

func TestBuildShareableURL_SkipsSlugsThatCannotRoundTrip(t *testing.T) {
	items := []domain.ComparisonItem{
		{PropertySlug: "kamalaya"},
		{PropertySlug: "spa,resort"},
		{PropertySlug: ""},
		{PropertySlug: "villa stéphanie"},
	}
	u := app.BuildShareableURL("https://clarusvitae.com/compare", items)
	got := strings.Join(app.ParseComparisonURL(u), "|")
	if got != "kamalaya|villa stéphanie" {
		t.Fatalf("parsed %q from %s", got, u)
	}
}

func TestBuildShareableURL_ExistingQuery(t *testing.T) {
	u := app.BuildShareableURL("https://x.test/compare?ref=mail", []domain.ComparisonItem{{PropertySlug: "a"}})
	if u != "https://x.test/compare?ref=mail&properties=a" {
		t.Fatalf("unexpected url %s", u)
	}
}
