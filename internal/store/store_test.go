package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remindly/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var kst = time.FixedZone("KST", 9*3600)

func kstAt(y int, m time.Month, d, h, mi int) time.Time {
	return time.Date(y, m, d, h, mi, 0, 0, kst)
}

func mustCreate(t *testing.T, s *Store, spec model.TaskSpec) *model.Task {
	t.Helper()
	task, err := s.CreateTask(context.Background(), spec)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

func testReminder(task *model.Task, typ model.ReminderType, at time.Time) model.Reminder {
	occ := model.NewOccurrence(*task, task.ScheduledAt)
	return model.Reminder{
		TaskID:      task.ID,
		InstanceKey: occ.InstanceKey,
		OccursAt:    occ.Start,
		Type:        typ,
		ScheduledAt: at,
	}
}

// --- Task tests ---

func TestCreateAndGetTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := mustCreate(t, s, model.TaskSpec{
		Title:       "Gym",
		ScheduledAt: kstAt(2025, 9, 13, 7, 0),
		Recurrence:  model.Weekly{Day: time.Saturday},
		Special:     true,
	})
	if created.ID == "" || !created.Active {
		t.Fatalf("created = %+v", created)
	}

	got, err := s.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "Gym" || !got.Special || !got.Active {
		t.Fatalf("got %+v", got)
	}
	if !got.ScheduledAt.Equal(kstAt(2025, 9, 13, 7, 0)) {
		t.Fatalf("scheduled_at = %v", got.ScheduledAt)
	}
	if got.Recurrence != (model.Weekly{Day: time.Saturday}) {
		t.Fatalf("recurrence = %#v", got.Recurrence)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListActiveTasks_OrderAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	late := mustCreate(t, s, model.TaskSpec{Title: "late", ScheduledAt: kstAt(2025, 9, 20, 9, 0)})
	early := mustCreate(t, s, model.TaskSpec{Title: "early", ScheduledAt: kstAt(2025, 9, 11, 9, 0)})
	weekly := mustCreate(t, s, model.TaskSpec{
		Title: "weekly", ScheduledAt: kstAt(2025, 9, 13, 7, 0), Recurrence: model.Weekly{Day: time.Saturday},
	})

	all, err := s.ListActiveTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != early.ID || all[1].ID != weekly.ID || all[2].ID != late.ID {
		t.Fatalf("order = %v", titles(all))
	}

	yes, no := true, false
	rec, _ := s.ListActiveTasks(ctx, TaskFilter{Recurring: &yes})
	if len(rec) != 1 || rec[0].ID != weekly.ID {
		t.Fatalf("recurring = %v", titles(rec))
	}
	once, _ := s.ListActiveTasks(ctx, TaskFilter{Recurring: &no})
	if len(once) != 2 {
		t.Fatalf("one-shot = %v", titles(once))
	}

	window, _ := s.ListActiveTasks(ctx, TaskFilter{From: kstAt(2025, 9, 12, 0, 0), To: kstAt(2025, 9, 20, 9, 0)})
	if len(window) != 1 || window[0].ID != weekly.ID {
		t.Fatalf("window = %v", titles(window))
	}
}

func TestDeactivateTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreate(t, s, model.TaskSpec{Title: "x", ScheduledAt: kstAt(2025, 9, 20, 9, 0)})

	if err := s.DeactivateTask(ctx, task.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	if list, _ := s.ListActiveTasks(ctx, TaskFilter{}); len(list) != 0 {
		t.Fatalf("deactivated task still listed: %v", titles(list))
	}
	got, err := s.GetTask(ctx, task.ID)
	if err != nil || got.Active {
		t.Fatalf("GetTask after deactivate = %+v, %v", got, err)
	}
	if err := s.DeactivateTask(ctx, task.ID, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second deactivate err = %v", err)
	}
}

func TestRescheduleTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreate(t, s, model.TaskSpec{
		Title:       "x",
		ScheduledAt: kstAt(2025, 9, 20, 9, 0),
		Recurrence:  model.Weekly{Day: time.Saturday},
	})
	if err := s.RescheduleTask(ctx, task.ID, kstAt(2025, 9, 21, 10, 30), model.Weekly{Day: time.Sunday}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetTask(ctx, task.ID)
	if !got.ScheduledAt.Equal(kstAt(2025, 9, 21, 10, 30)) {
		t.Fatalf("scheduled_at = %v", got.ScheduledAt)
	}
	if got.Recurrence != (model.Weekly{Day: time.Sunday}) {
		t.Fatalf("recurrence = %v", got.Recurrence)
	}
	if err := s.RescheduleTask(ctx, "missing", time.Now(), nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeactivateExpiredTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, model.TaskSpec{Title: "old", ScheduledAt: kstAt(2025, 8, 1, 9, 0)})
	mustCreate(t, s, model.TaskSpec{Title: "old weekly", ScheduledAt: kstAt(2025, 8, 1, 9, 0), Recurrence: model.Weekly{Day: time.Friday}})
	mustCreate(t, s, model.TaskSpec{Title: "future", ScheduledAt: kstAt(2025, 10, 1, 9, 0)})

	n, err := s.DeactivateExpiredTasks(ctx, kstAt(2025, 9, 1, 0, 0), time.Now())
	if err != nil || n != 1 {
		t.Fatalf("n = %d, err = %v", n, err)
	}
	left, _ := s.ListActiveTasks(ctx, TaskFilter{})
	if len(left) != 2 {
		t.Fatalf("left = %v", titles(left))
	}
}

// --- Occurrence tests ---

func TestRecordOccurrence_Dedupes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreate(t, s, model.TaskSpec{
		Title: "Gym", ScheduledAt: kstAt(2025, 9, 13, 7, 0), Recurrence: model.Weekly{Day: time.Saturday},
	})
	occ := model.NewOccurrence(*task, kstAt(2025, 9, 20, 7, 0))

	created, err := s.RecordOccurrence(ctx, occ)
	if err != nil || !created {
		t.Fatalf("first record = %v, %v", created, err)
	}
	created, err = s.RecordOccurrence(ctx, occ)
	if err != nil || created {
		t.Fatalf("second record = %v, %v", created, err)
	}

	// Same instant expressed in another zone is the same occurrence.
	utc := model.NewOccurrence(*task, kstAt(2025, 9, 20, 7, 0).UTC())
	if created, _ := s.RecordOccurrence(ctx, utc); created {
		t.Fatal("same instant in UTC recorded twice")
	}

	occs, err := s.ListOccurrences(ctx, task.ID)
	if err != nil || len(occs) != 1 {
		t.Fatalf("occurrences = %v, %v", occs, err)
	}
	if occs[0].Title != "Gym" || occs[0].InstanceKey != occ.InstanceKey {
		t.Fatalf("occurrence = %+v", occs[0])
	}
}

func TestDeleteOccurrencesAfter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreate(t, s, model.TaskSpec{
		Title: "Gym", ScheduledAt: kstAt(2025, 9, 13, 7, 0), Recurrence: model.Weekly{Day: time.Saturday},
	})
	for _, d := range []int{13, 20, 27} {
		s.RecordOccurrence(ctx, model.NewOccurrence(*task, kstAt(2025, 9, d, 7, 0)))
	}
	if err := s.DeleteOccurrencesAfter(ctx, task.ID, kstAt(2025, 9, 14, 0, 0)); err != nil {
		t.Fatal(err)
	}
	occs, _ := s.ListOccurrences(ctx, task.ID)
	if len(occs) != 1 || !occs[0].Start.Equal(kstAt(2025, 9, 13, 7, 0)) {
		t.Fatalf("occurrences = %+v", occs)
	}
}

func TestPurgeOccurrencesBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	gym := mustCreate(t, s, model.TaskSpec{
		Title: "Gym", ScheduledAt: kstAt(2025, 9, 13, 7, 0), Recurrence: model.Weekly{Day: time.Saturday},
	})
	dentist := mustCreate(t, s, model.TaskSpec{Title: "Dentist", ScheduledAt: kstAt(2025, 9, 15, 9, 0)})
	for _, d := range []int{13, 20, 27} {
		s.RecordOccurrence(ctx, model.NewOccurrence(*gym, kstAt(2025, 9, d, 7, 0)))
	}
	s.RecordOccurrence(ctx, model.NewOccurrence(*dentist, kstAt(2025, 9, 15, 9, 0)))

	n, err := s.PurgeOccurrencesBefore(ctx, kstAt(2025, 9, 20, 7, 0))
	if err != nil || n != 2 {
		t.Fatalf("purged %d, err %v; want 2", n, err)
	}
	occs, _ := s.ListOccurrences(ctx, gym.ID)
	if len(occs) != 2 || !occs[0].Start.Equal(kstAt(2025, 9, 20, 7, 0)) {
		t.Fatalf("gym occurrences = %+v", occs)
	}
	if occs, _ := s.ListOccurrences(ctx, dentist.ID); len(occs) != 0 {
		t.Fatalf("dentist occurrences = %+v", occs)
	}
}

// --- Reminder tests ---

func TestCreateReminderIfAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreate(t, s, model.TaskSpec{Title: "Gym", ScheduledAt: kstAt(2025, 9, 13, 7, 0), Special: true})
	r := testReminder(task, model.ReminderHourly, kstAt(2025, 9, 13, 6, 0))

	first, created, err := s.CreateReminderIfAbsent(ctx, r)
	if err != nil || !created {
		t.Fatalf("first = %v, %v", created, err)
	}
	if first.ID == 0 || first.SentAt != nil || first.Type != model.ReminderHourly {
		t.Fatalf("stored = %+v", first)
	}

	again, created, err := s.CreateReminderIfAbsent(ctx, r)
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("duplicate = %+v, %v, %v", again, created, err)
	}

	other := testReminder(task, model.ReminderSpecialDayOf, kstAt(2025, 9, 13, 5, 30))
	if _, created, _ := s.CreateReminderIfAbsent(ctx, other); !created {
		t.Fatal("different type for same occurrence should be created")
	}

	all, _ := s.ListReminders(ctx, task.ID)
	if len(all) != 2 || all[0].Type != model.ReminderSpecialDayOf {
		t.Fatalf("reminders = %+v", all)
	}
}

func TestListUnsentRemindersDueBy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreate(t, s, model.TaskSpec{Title: "Gym", ScheduledAt: kstAt(2025, 9, 13, 7, 0), Special: true})

	before, _, _ := s.CreateReminderIfAbsent(ctx, testReminder(task, model.ReminderSpecialDayBefore, kstAt(2025, 9, 12, 7, 0)))
	s.CreateReminderIfAbsent(ctx, testReminder(task, model.ReminderSpecialDayOf, kstAt(2025, 9, 13, 5, 30)))
	s.CreateReminderIfAbsent(ctx, testReminder(task, model.ReminderHourly, kstAt(2025, 9, 13, 6, 0)))

	due, err := s.ListUnsentRemindersDueBy(ctx, kstAt(2025, 9, 13, 5, 30))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 || due[0].Type != model.ReminderSpecialDayBefore || due[1].Type != model.ReminderSpecialDayOf {
		t.Fatalf("due = %+v", due)
	}

	if ok, _ := s.ClaimReminderSent(ctx, before.ID, kstAt(2025, 9, 12, 7, 0)); !ok {
		t.Fatal("claim failed")
	}
	due, _ = s.ListUnsentRemindersDueBy(ctx, kstAt(2025, 9, 13, 5, 30))
	if len(due) != 1 || due[0].Type != model.ReminderSpecialDayOf {
		t.Fatalf("sent reminder still listed: %+v", due)
	}
}

func TestClaimReminderSent_OnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreate(t, s, model.TaskSpec{Title: "Gym", ScheduledAt: kstAt(2025, 9, 13, 7, 0)})
	r, _, _ := s.CreateReminderIfAbsent(ctx, testReminder(task, model.ReminderHourly, kstAt(2025, 9, 13, 6, 0)))

	sentAt := kstAt(2025, 9, 13, 6, 0)
	ok, err := s.ClaimReminderSent(ctx, r.ID, sentAt)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	ok, err = s.ClaimReminderSent(ctx, r.ID, sentAt.Add(time.Minute))
	if err != nil || ok {
		t.Fatalf("second claim = %v, %v", ok, err)
	}

	all, _ := s.ListReminders(ctx, task.ID)
	if all[0].SentAt == nil || !all[0].SentAt.Equal(sentAt) {
		t.Fatalf("sent_at = %v, want first claim time", all[0].SentAt)
	}
}

func TestClaimReminderSent_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreate(t, s, model.TaskSpec{Title: "Gym", ScheduledAt: kstAt(2025, 9, 13, 7, 0)})
	r, _, _ := s.CreateReminderIfAbsent(ctx, testReminder(task, model.ReminderHourly, kstAt(2025, 9, 13, 6, 0)))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimReminderSent(ctx, r.ID, time.Now())
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestDeleteUnsentAndPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := mustCreate(t, s, model.TaskSpec{Title: "Gym", ScheduledAt: kstAt(2025, 9, 13, 7, 0), Special: true})

	sent, _, _ := s.CreateReminderIfAbsent(ctx, testReminder(task, model.ReminderSpecialDayBefore, kstAt(2025, 9, 12, 7, 0)))
	s.CreateReminderIfAbsent(ctx, testReminder(task, model.ReminderHourly, kstAt(2025, 9, 13, 6, 0)))
	s.ClaimReminderSent(ctx, sent.ID, kstAt(2025, 9, 12, 7, 0))

	n, err := s.DeleteUnsentReminders(ctx, task.ID)
	if err != nil || n != 1 {
		t.Fatalf("deleted %d, err %v", n, err)
	}
	left, _ := s.ListReminders(ctx, task.ID)
	if len(left) != 1 || left[0].ID != sent.ID {
		t.Fatalf("left = %+v", left)
	}

	if n, _ := s.PurgeSentReminders(ctx, kstAt(2025, 9, 12, 0, 0)); n != 0 {
		t.Fatalf("purged %d before cutoff passed", n)
	}
	if n, _ := s.PurgeSentReminders(ctx, kstAt(2025, 10, 12, 0, 0)); n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
}

func titles(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func TestListActiveTasks_SkipsMalformedRecurrence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	good := mustCreate(t, s, model.TaskSpec{Title: "good", ScheduledAt: kstAt(2025, 9, 20, 9, 0)})
	bad := mustCreate(t, s, model.TaskSpec{
		Title: "bad", ScheduledAt: kstAt(2025, 9, 13, 7, 0), Recurrence: model.Weekly{Day: time.Saturday},
	})
	if _, err := s.db.Exec(`UPDATE tasks SET recurrence = 'fortnightly:xyz' WHERE id = ?`, bad.ID); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListActiveTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("one bad row must not fail the listing: %v", err)
	}
	if len(list) != 1 || list[0].ID != good.ID {
		t.Fatalf("list = %v", titles(list))
	}
	if _, err := s.GetTask(ctx, bad.ID); !errors.Is(err, model.ErrBadRecurrence) {
		t.Fatalf("GetTask err = %v", err)
	}
}
