package remind

import (
	"testing"
	"time"

	"remindly/internal/model"
)

var kst = time.FixedZone("KST", 9*3600)

func kstAt(y int, m time.Month, d, h, mi int) time.Time {
	return time.Date(y, m, d, h, mi, 0, 0, kst)
}

func occurrence(start time.Time, special bool) model.Occurrence {
	return model.NewOccurrence(model.Task{ID: "t1", Title: "Gym", Special: special}, start)
}

type want struct {
	typ model.ReminderType
	at  time.Time
}

func assertReminders(t *testing.T, got []model.Reminder, wants ...want) {
	t.Helper()
	if len(got) != len(wants) {
		t.Fatalf("got %d reminders %+v, want %d", len(got), got, len(wants))
	}
	for i, w := range wants {
		if got[i].Type != w.typ || !got[i].ScheduledAt.Equal(w.at) {
			t.Fatalf("reminder %d = %s@%v, want %s@%v", i, got[i].Type, got[i].ScheduledAt, w.typ, w.at)
		}
	}
}

func TestCompute_SpecialTwoDaysOut(t *testing.T) {
	p := DefaultPolicy(kst)
	occ := occurrence(kstAt(2025, 9, 13, 7, 0), true)
	got := p.Compute(occ, kstAt(2025, 9, 11, 8, 0))

	assertReminders(t, got,
		want{model.ReminderSpecialDayBefore, kstAt(2025, 9, 12, 7, 0)},
		want{model.ReminderSpecialDayOf, kstAt(2025, 9, 13, 5, 30)},
		want{model.ReminderHourly, kstAt(2025, 9, 13, 6, 0)},
	)
	for _, r := range got {
		if r.InstanceKey != occ.InstanceKey || r.TaskID != "t1" || !r.OccursAt.Equal(occ.Start) {
			t.Fatalf("reminder not tied to occurrence: %+v", r)
		}
		if r.SentAt != nil {
			t.Fatal("fresh reminders must be unsent")
		}
	}
}

func TestCompute_DailyOnlyOnTheDay(t *testing.T) {
	p := DefaultPolicy(kst)
	occ := occurrence(kstAt(2025, 9, 13, 18, 0), false)

	assertReminders(t, p.Compute(occ, kstAt(2025, 9, 12, 23, 0)),
		want{model.ReminderHourly, kstAt(2025, 9, 13, 17, 0)},
	)
	assertReminders(t, p.Compute(occ, kstAt(2025, 9, 13, 0, 5)),
		want{model.ReminderDaily, kstAt(2025, 9, 13, 5, 30)},
		want{model.ReminderHourly, kstAt(2025, 9, 13, 17, 0)},
	)
	// 05:30 already passed.
	assertReminders(t, p.Compute(occ, kstAt(2025, 9, 13, 9, 0)),
		want{model.ReminderHourly, kstAt(2025, 9, 13, 17, 0)},
	)
}

func TestCompute_NeverInThePast(t *testing.T) {
	p := DefaultPolicy(kst)
	occ := occurrence(kstAt(2025, 9, 13, 7, 0), true)
	now := kstAt(2025, 9, 13, 6, 30)
	if got := p.Compute(occ, now); len(got) != 0 {
		t.Fatalf("expected nothing, got %+v", got)
	}

	// Boundary: a candidate equal to now is not owed.
	got := p.Compute(occ, kstAt(2025, 9, 13, 6, 0))
	if len(got) != 0 {
		t.Fatalf("reminder at exactly now should be dropped: %+v", got)
	}

	for _, now := range []time.Time{
		kstAt(2025, 9, 1, 0, 0),
		kstAt(2025, 9, 12, 6, 59),
		kstAt(2025, 9, 13, 0, 0),
		kstAt(2025, 9, 13, 5, 30),
	} {
		for _, r := range p.Compute(occ, now) {
			if !r.ScheduledAt.After(now) {
				t.Fatalf("now=%v: reminder %s at %v is not in the future", now, r.Type, r.ScheduledAt)
			}
		}
	}
}

func TestCompute_EarlyMorningTaskSkipsLateDigest(t *testing.T) {
	p := DefaultPolicy(kst)
	occ := occurrence(kstAt(2025, 9, 13, 5, 0), true)
	assertReminders(t, p.Compute(occ, kstAt(2025, 9, 13, 0, 0)),
		want{model.ReminderHourly, kstAt(2025, 9, 13, 4, 0)},
	)
}

func TestCompute_CustomPolicy(t *testing.T) {
	p := Policy{
		Location:       kst,
		DailyAt:        model.TimeOfDay{Hour: 8},
		SpecialDayOfAt: model.TimeOfDay{Hour: 6, Minute: 15},
		HourlyLead:     30 * time.Minute,
	}
	occ := occurrence(kstAt(2025, 9, 13, 12, 0), true)
	assertReminders(t, p.Compute(occ, kstAt(2025, 9, 13, 1, 0)),
		want{model.ReminderSpecialDayOf, kstAt(2025, 9, 13, 6, 15)},
		want{model.ReminderDaily, kstAt(2025, 9, 13, 8, 0)},
		want{model.ReminderHourly, kstAt(2025, 9, 13, 11, 30)},
	)
}

func TestCompute_TodayIsJudgedInAccountZone(t *testing.T) {
	p := DefaultPolicy(kst)
	occ := occurrence(kstAt(2025, 9, 13, 20, 0), false)
	// 2025-09-12 21:00 UTC is 2025-09-13 06:00 KST: same day, after 05:30.
	got := p.Compute(occ, time.Date(2025, 9, 12, 21, 0, 0, 0, time.UTC))
	assertReminders(t, got, want{model.ReminderHourly, kstAt(2025, 9, 13, 19, 0)})

	// 2025-09-12 19:00 UTC is 04:00 KST on the 13th: daily still owed.
	got = p.Compute(occ, time.Date(2025, 9, 12, 19, 0, 0, 0, time.UTC))
	assertReminders(t, got,
		want{model.ReminderDaily, kstAt(2025, 9, 13, 5, 30)},
		want{model.ReminderHourly, kstAt(2025, 9, 13, 19, 0)},
	)
}
