package calendar

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestIsWorkingDay(t *testing.T) {
	c := New(nil, []time.Time{date("2024-01-15")})

	tests := []struct {
		name string
		day  string
		want bool
	}{
		{"monday", "2024-01-01", true},
		{"saturday", "2024-01-06", false},
		{"sunday", "2024-01-07", false},
		{"holiday", "2024-01-15", false},
		{"ordinary weekday", "2024-01-16", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.IsWorkingDay(date(tc.day)); got != tc.want {
				t.Fatalf("IsWorkingDay(%s) = %v, want %v", tc.day, got, tc.want)
			}
		})
	}
}

func TestAddWorkingDaysZeroDoesNotSnap(t *testing.T) {
	c := New(nil, nil)
	// 2024-01-06 is a Saturday — a non-working day.
	d := c.AddWorkingDays(date("2024-01-06"), 0)
	if !d.Equal(date("2024-01-06")) {
		t.Fatalf("AddWorkingDays(d, 0) = %v, want unchanged %v", d, date("2024-01-06"))
	}
}

func TestAddWorkingDaysAdditive(t *testing.T) {
	c := New(nil, []time.Time{date("2024-01-15")})
	start := date("2024-01-01")

	for a := 0; a <= 5; a++ {
		for b := 0; b <= 5; b++ {
			left := c.AddWorkingDays(c.AddWorkingDays(start, a), b)
			right := c.AddWorkingDays(start, a+b)
			if !left.Equal(right) {
				t.Fatalf("AddWorkingDays not additive for a=%d b=%d: %v != %v", a, b, left, right)
			}
		}
	}
}

func TestLinearChainWeekendSnap(t *testing.T) {
	// Scenario 1 from spec.md §8: today = 2024-01-01 (Mon), M estimate = 10
	// working days, Medium confidence buffer = 2 working days.
	c := New(nil, nil)
	aStart := c.NextWorkingDay(date("2024-01-01"))
	if !aStart.Equal(date("2024-01-01")) {
		t.Fatalf("A.start = %v, want 2024-01-01", aStart)
	}
	aTarget := c.AddWorkingDays(aStart, 12)
	if !aTarget.Equal(date("2024-01-17")) {
		t.Fatalf("A.target = %v, want 2024-01-17", aTarget)
	}
	bStart := c.NextWorkingDay(aTarget.AddDate(0, 0, 1))
	if !bStart.Equal(date("2024-01-18")) {
		t.Fatalf("B.start = %v, want 2024-01-18", bStart)
	}
	bTarget := c.AddWorkingDays(bStart, 12)
	if !bTarget.Equal(date("2024-02-05")) {
		t.Fatalf("B.target = %v, want 2024-02-05", bTarget)
	}
}

func TestHolidaySkipScenario(t *testing.T) {
	// Scenario 2 from spec.md §8.
	c := New(nil, []time.Time{date("2024-01-15")})
	aStart := date("2024-01-01")
	aTarget := c.AddWorkingDays(aStart, 12)
	if !aTarget.Equal(date("2024-01-18")) {
		t.Fatalf("A.target = %v, want 2024-01-18", aTarget)
	}
	bStart := c.NextWorkingDay(aTarget.AddDate(0, 0, 1))
	if !bStart.Equal(date("2024-01-19")) {
		t.Fatalf("B.start = %v, want 2024-01-19", bStart)
	}
	bTarget := c.AddWorkingDays(bStart, 12)
	if !bTarget.Equal(date("2024-02-06")) {
		t.Fatalf("B.target = %v, want 2024-02-06", bTarget)
	}
}

func TestWorkingDaysBetweenSymmetric(t *testing.T) {
	c := New(nil, nil)
	a, b := date("2024-01-01"), date("2024-01-10")
	if c.WorkingDaysBetween(a, b) != c.WorkingDaysBetween(b, a) {
		t.Fatal("WorkingDaysBetween should be symmetric in its arguments")
	}
}
