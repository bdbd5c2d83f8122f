package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/poisvin/tusk/internal/config"
	"github.com/poisvin/tusk/internal/db"
	"github.com/poisvin/tusk/internal/domain"
	"github.com/poisvin/tusk/internal/engine"
	"github.com/poisvin/tusk/internal/migrate"
	"github.com/poisvin/tusk/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

// newTestEnv pins "today" to Tuesday 2026-03-10.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func strPtr(s string) *string { return &s }

func (env testEnv) children(t *testing.T, rootID string) []domain.Task {
	t.Helper()
	kids, err := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{ParentID: rootID})
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	return kids
}

func (env testEnv) childOn(t *testing.T, rootID, date string) domain.Task {
	t.Helper()
	for _, c := range env.children(t, rootID) {
		if c.ScheduledDate == date {
			return c
		}
	}
	t.Fatalf("no child on %s", date)
	return domain.Task{}
}

func TestCreateDailyRootGeneratesMonthAhead(t *testing.T) {
	env := newTestEnv(t)
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Morning review",
		ScheduledDate: "2026-03-10",
		Recurrence:    "daily",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	kids := env.children(t, root.ID)
	// March 11 through April 10.
	if len(kids) != 31 {
		t.Fatalf("expected 31 occurrences, got %d", len(kids))
	}
	for _, c := range kids {
		if c.RecurrenceParentID == nil || *c.RecurrenceParentID != root.ID {
			t.Fatalf("child %s has wrong parent", c.ID)
		}
		if c.Status != domain.StatusBacklog {
			t.Fatalf("child %s status %s", c.ID, c.Status)
		}
		if c.CarriedOver || c.OriginalDate != nil {
			t.Fatalf("child %s has carry-over state", c.ID)
		}
		if c.ScheduledDate <= root.ScheduledDate {
			t.Fatalf("child %s not after anchor", c.ScheduledDate)
		}
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Standup",
		ScheduledDate: "2026-03-10",
		Recurrence:    "weekdays",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	before := len(env.children(t, root.ID))
	created, err := env.Engine.Generate(env.Ctx, root.ID, "tester")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no new occurrences, got %d", created)
	}
	if after := len(env.children(t, root.ID)); after != before {
		t.Fatalf("child count changed %d -> %d", before, after)
	}
}

func TestCreateOneTimeHasNoChildren(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Pay rent",
		ScheduledDate: "2026-03-10",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if kids := env.children(t, task.ID); len(kids) != 0 {
		t.Fatalf("expected no occurrences, got %d", len(kids))
	}
}

func TestCreateNormalizesWeekdayAnchor(t *testing.T) {
	env := newTestEnv(t)
	// 2026-03-07 is a Saturday; a weekdays rule moves to Monday.
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Inbox zero",
		ScheduledDate: "2026-03-07",
		Recurrence:    "weekdays",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if root.ScheduledDate != "2026-03-09" {
		t.Fatalf("anchor not normalized: %s", root.ScheduledDate)
	}
}

func TestCreateNormalizesWeeklyDaySetAnchor(t *testing.T) {
	env := newTestEnv(t)
	// Tuesday anchor with a mon/fri rule lands on Friday.
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Gym",
		ScheduledDate: "2026-03-10",
		Recurrence:    "weekly",
		WeeklyDays:    []string{"monday", "friday"},
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if root.ScheduledDate != "2026-03-13" {
		t.Fatalf("anchor not normalized: %s", root.ScheduledDate)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ScheduledDate: "2026-03-10"}); err == nil {
		t.Fatal("expected missing title error")
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x"}); err == nil {
		t.Fatal("expected missing date error")
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", ScheduledDate: "not-a-date"}); err == nil {
		t.Fatal("expected bad date error")
	}
}

func TestCreateCopiesTagsToOccurrences(t *testing.T) {
	env := newTestEnv(t)
	tag, err := env.Engine.CreateTag(env.Ctx, "health", "#00ff00", "tester")
	if err != nil {
		t.Fatal(err)
	}
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Run",
		ScheduledDate: "2026-03-10",
		Recurrence:    "weekends",
		TagIDs:        []string{tag.ID},
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	kids := env.children(t, root.ID)
	if len(kids) == 0 {
		t.Fatal("expected occurrences")
	}
	for _, c := range kids {
		got, err := env.Engine.Repo.TagIDsForTask(env.Ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0] != tag.ID {
			t.Fatalf("child %s tags %v", c.ID, got)
		}
	}
}

func TestRootEditSyncsFutureChildren(t *testing.T) {
	env := newTestEnv(t)
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Journal",
		ScheduledDate: "2026-03-10",
		Recurrence:    "daily",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	done := env.childOn(t, root.ID, "2026-03-15")
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: done.ID, Status: strPtr("done"), ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:        root.ID,
		Title:     strPtr("Evening journal"),
		StartTime: strPtr("21:00"),
		ActorID:   "tester",
	}); err != nil {
		t.Fatal(err)
	}
	for _, c := range env.children(t, root.ID) {
		if c.Title != "Evening journal" {
			t.Fatalf("child on %s not synced", c.ScheduledDate)
		}
		if c.StartTime == nil || *c.StartTime != "21:00" {
			t.Fatalf("child on %s start time not synced", c.ScheduledDate)
		}
	}
	// Completion state is independent of shared-field sync.
	if got, _ := env.Engine.Repo.GetTask(env.Ctx, done.ID); got.Status != domain.StatusDone {
		t.Fatalf("sync touched status: %s", got.Status)
	}
}

func TestChildEditSyncsRootAndFutureSiblings(t *testing.T) {
	env := newTestEnv(t)
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Water plants",
		ScheduledDate: "2026-03-10",
		Recurrence:    "daily",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	edited := env.childOn(t, root.ID, "2026-03-20")
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:          edited.ID,
		Description: strPtr("use the small can"),
		ActorID:     "tester",
	}); err != nil {
		t.Fatal(err)
	}

	gotRoot, err := env.Engine.Repo.GetTask(env.Ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotRoot.Description != "use the small can" {
		t.Fatal("root not synced from child edit")
	}
	for _, c := range env.children(t, root.ID) {
		synced := c.Description == "use the small can"
		if c.ScheduledDate > "2026-03-20" && !synced {
			t.Fatalf("future sibling %s not synced", c.ScheduledDate)
		}
		if c.ScheduledDate < "2026-03-20" && synced {
			t.Fatalf("past sibling %s was synced", c.ScheduledDate)
		}
	}
}

func TestStatusChangeSuppressesSync(t *testing.T) {
	env := newTestEnv(t)
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Stretch",
		ScheduledDate: "2026-03-10",
		Recurrence:    "daily",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	// Title and status in one edit: the status change keeps the series
	// untouched.
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:      root.ID,
		Title:   strPtr("Stretch (long)"),
		Status:  strPtr("in_progress"),
		ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	for _, c := range env.children(t, root.ID) {
		if c.Title != "Stretch" {
			t.Fatalf("child %s synced despite status change", c.ScheduledDate)
		}
		if c.Status != domain.StatusBacklog {
			t.Fatalf("child %s status mutated", c.ScheduledDate)
		}
	}
}

func TestRuleChangeRegeneratesSeries(t *testing.T) {
	env := newTestEnv(t)
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Tidy desk",
		ScheduledDate: "2026-03-10",
		Recurrence:    "daily",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	dailyCount := len(env.children(t, root.ID))

	// Complete one future occurrence; regeneration must not delete it.
	keep := env.childOn(t, root.ID, "2026-03-12")
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: keep.ID, Status: strPtr("done"), ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:         root.ID,
		Recurrence: strPtr("weekends"),
		ActorID:    "tester",
	}); err != nil {
		t.Fatal(err)
	}

	kids := env.children(t, root.ID)
	if len(kids) >= dailyCount {
		t.Fatalf("expected fewer occurrences after daily->weekends, got %d of %d", len(kids), dailyCount)
	}
	var sawDone bool
	for _, c := range kids {
		if c.ID == keep.ID {
			sawDone = true
			continue
		}
		d, err := domain.ParseDate(c.ScheduledDate)
		if err != nil {
			t.Fatal(err)
		}
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			t.Fatalf("non-weekend occurrence %s after regeneration", c.ScheduledDate)
		}
	}
	if !sawDone {
		t.Fatal("completed occurrence was deleted by regeneration")
	}
}

func TestChildRuleEditDoesNotRegenerate(t *testing.T) {
	env := newTestEnv(t)
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Read",
		ScheduledDate: "2026-03-10",
		Recurrence:    "weekly",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	before := len(env.children(t, root.ID))
	child := env.children(t, root.ID)[0]
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:         child.ID,
		Recurrence: strPtr("daily"),
		ActorID:    "tester",
	}); err != nil {
		t.Fatal(err)
	}
	if after := len(env.children(t, root.ID)); after != before {
		t.Fatalf("child rule edit changed series size %d -> %d", before, after)
	}
}

func TestDeleteRootCascades(t *testing.T) {
	env := newTestEnv(t)
	root, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "Backup laptop",
		ScheduledDate: "2026-03-10",
		Recurrence:    "weekly",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(env.children(t, root.ID)) == 0 {
		t.Fatal("expected occurrences")
	}
	if err := env.Engine.DeleteTask(env.Ctx, root.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if kids := env.children(t, root.ID); len(kids) != 0 {
		t.Fatalf("children survived root delete: %d", len(kids))
	}
}

func TestEventTimestampsFollowInjectedClock(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:         "File expense report",
		ScheduledDate: "2026-03-10",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 5, "task.created", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("events %d, want 1", len(evts))
	}
	if evts[0].TS != "2026-03-10T12:00:00Z" {
		t.Fatalf("event ts %q, want the pinned clock", evts[0].TS)
	}
}
