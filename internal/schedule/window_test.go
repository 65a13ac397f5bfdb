package schedule

import (
	"testing"
	"time"
)

var volgograd = time.FixedZone("MSK", 3*60*60)

// 2025-06-07 is a Saturday.
func at(day, hour, min int) time.Time {
	return time.Date(2025, time.June, day, hour, min, 0, 0, volgograd)
}

func TestFollowUpAt_Examples(t *testing.T) {
	w := DefaultWindow(volgograd)

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"saturday noon", at(7, 12, 0), at(9, 10, 0)},
		{"sunday evening", at(8, 21, 0), at(9, 10, 0)},
		{"friday after hours", at(6, 19, 0), at(9, 10, 0)},
		{"friday at closing", at(6, 18, 0), at(9, 10, 0)},
		{"tuesday clamp", at(10, 17, 30), at(10, 18, 0)},
		{"tuesday morning", at(10, 10, 0), at(10, 11, 0)},
		{"tuesday before opening", at(10, 7, 15), at(10, 10, 0)},
		{"monday after hours", at(9, 23, 59), at(10, 10, 0)},
		{"exactly one hour left", at(10, 17, 0), at(10, 18, 0)},
	}
	for _, tc := range cases {
		got := w.FollowUpAt(tc.now)
		if !got.Equal(tc.want) {
			t.Fatalf("%s: FollowUpAt(%s) = %s, want %s", tc.name, tc.now, got, tc.want)
		}
	}
}

// Walks two full weeks minute by minute and checks the invariants every
// result must satisfy.
func TestFollowUpAt_Exhaustive(t *testing.T) {
	w := DefaultWindow(volgograd)
	start := at(2, 0, 0) // Monday
	end := start.AddDate(0, 0, 14)

	for now := start; now.Before(end); now = now.Add(time.Minute) {
		got := w.FollowUpAt(now)

		if !w.Contains(got) {
			t.Fatalf("FollowUpAt(%s) = %s is outside the business window", now, got)
		}
		if got.Before(now) {
			t.Fatalf("FollowUpAt(%s) = %s is in the past", now, got)
		}
		clamped := sameDay(got, now) && got.Equal(midnight(now).Add(w.Close))
		if got.Before(now.Add(w.Lead)) && !clamped {
			t.Fatalf("FollowUpAt(%s) = %s is closer than %s and not the closing clamp", now, got, w.Lead)
		}
		if got.Sub(now) > 4*24*time.Hour {
			t.Fatalf("FollowUpAt(%s) = %s is unreasonably far", now, got)
		}
		if !w.FollowUpAt(now).Equal(got) {
			t.Fatalf("FollowUpAt is not deterministic at %s", now)
		}
	}
}

func TestFollowUpAt_ConvertsToWindowLocation(t *testing.T) {
	w := DefaultWindow(volgograd)
	// 07:00 UTC on a Tuesday is 10:00 MSK.
	now := time.Date(2025, time.June, 10, 7, 0, 0, 0, time.UTC)
	if got := w.FollowUpAt(now); !got.Equal(at(10, 11, 0)) {
		t.Fatalf("got %s", got)
	}
}

func TestNewWindow(t *testing.T) {
	w, err := NewWindow("09:00", "18:00", "10:00", time.Hour, volgograd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Open != 9*time.Hour || w.Close != 18*time.Hour || w.Slot != 10*time.Hour {
		t.Fatalf("unexpected window: %+v", w)
	}
	if _, err := NewWindow("18:00", "09:00", "10:00", time.Hour, nil); err == nil {
		t.Fatalf("expected error for inverted window")
	}
	if _, err := NewWindow("9", "18:00", "10:00", time.Hour, nil); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := NewWindow("09:00", "18:00", "20:00", time.Hour, nil); err == nil {
		t.Fatalf("expected error for slot outside window")
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
