package features

import (
	"math"
	"testing"
	"time"

	"github.com/i474232898/weather-forecaster/internal/weather"
)

func series(temps ...float64) []weather.Observation {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]weather.Observation, len(temps))
	for i, t := range temps {
		obs[i] = weather.Observation{
			Date:         start.AddDate(0, 0, i),
			TemperatureC: t,
			HumidityPct:  60,
			PressureHpa:  1013,
			WindSpeedMS:  3,
			Condition:    weather.ConditionCloudy,
		}
	}
	return obs
}

func TestEngineerConstantTemperature(t *testing.T) {
	temps := make([]float64, 10)
	for i := range temps {
		temps[i] = 15
	}

	vecs, _, _ := Engineer(series(temps...), weather.DefaultLabels())
	for i, v := range vecs {
		if i >= 2 && v[RollingMeanTemp3] != 15 {
			t.Fatalf("row %d: rolling mean = %v, want 15", i, v[RollingMeanTemp3])
		}
		if i >= 6 && v[RollingStdTemp7] != 0 {
			t.Fatalf("row %d: rolling std = %v, want 0", i, v[RollingStdTemp7])
		}
	}
}

func TestEngineerRollingStatistics(t *testing.T) {
	vecs, _, _ := Engineer(series(1, 2, 3, 4, 5, 6, 7, 8), weather.DefaultLabels())

	if vecs[0][RollingMeanTemp3] != 1 || vecs[1][RollingMeanTemp3] != 2 {
		t.Fatalf("leading rows should use their own temperature, got %v and %v",
			vecs[0][RollingMeanTemp3], vecs[1][RollingMeanTemp3])
	}
	if vecs[4][RollingMeanTemp3] != 4 {
		t.Fatalf("row 4 mean = %v, want 4", vecs[4][RollingMeanTemp3])
	}
	if vecs[5][RollingStdTemp7] != 0 {
		t.Fatalf("row 5 std should be 0, got %v", vecs[5][RollingStdTemp7])
	}
	// Population std of 1..7 is 2.
	if got := vecs[6][RollingStdTemp7]; math.Abs(got-2) > 1e-12 {
		t.Fatalf("row 6 std = %v, want 2", got)
	}
}

func TestEngineerNoLookAhead(t *testing.T) {
	base := series(3, 8, 1, 9, 4, 6, 2, 7, 5, 0)
	changed := series(3, 8, 1, 9, 4, 6, 2, 7, 5, 0)

	for i := 0; i < len(base)-1; i++ {
		changed[i+1].TemperatureC += 100
		a, _, _ := Engineer(base, weather.DefaultLabels())
		b, _, _ := Engineer(changed, weather.DefaultLabels())
		if a[i][RollingMeanTemp3] != b[i][RollingMeanTemp3] || a[i][RollingStdTemp7] != b[i][RollingStdTemp7] {
			t.Fatalf("changing row %d altered rolling features of row %d", i+1, i)
		}
		changed[i+1].TemperatureC -= 100
	}
}

func TestEngineerSortsByDate(t *testing.T) {
	obs := series(10, 20, 30)
	obs[0], obs[2] = obs[2], obs[0]

	_, _, targets := Engineer(obs, weather.DefaultLabels())
	if targets[0] != 10 || targets[1] != 20 || targets[2] != 30 {
		t.Fatalf("expected date-ordered targets, got %v", targets)
	}
	if obs[0].TemperatureC != 30 {
		t.Fatal("Engineer must not reorder its input")
	}
}

func TestEngineerIdempotent(t *testing.T) {
	obs := series(3, 8, 1, 9, 4, 6, 2, 7)
	a, la, ta := Engineer(obs, weather.DefaultLabels())
	b, lb, tb := Engineer(obs, weather.DefaultLabels())

	for i := range a {
		for j := range a[i] {
			if math.Float64bits(a[i][j]) != math.Float64bits(b[i][j]) {
				t.Fatalf("row %d col %d differs between runs", i, j)
			}
		}
		if la[i] != lb[i] || ta[i] != tb[i] {
			t.Fatalf("row %d labels/targets differ between runs", i)
		}
	}
}

func TestEngineerCalendarAndLabels(t *testing.T) {
	obs := []weather.Observation{
		// Saturday
		{Date: time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), Condition: weather.ConditionSnow},
		// Monday
		{Date: time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), Condition: weather.ConditionUnknown},
	}
	vecs, labels, _ := Engineer(obs, weather.DefaultLabels())

	if vecs[0][Weekend] != 1 || vecs[1][Weekend] != 0 {
		t.Fatalf("unexpected weekend flags %v, %v", vecs[0][Weekend], vecs[1][Weekend])
	}
	if vecs[0][Weekday] != 6.0/7 {
		t.Fatalf("saturday weekday = %v", vecs[0][Weekday])
	}
	if vecs[0][Month] != 2.0/12 || vecs[0][DayOfYear] != 34.0/366 {
		t.Fatalf("unexpected calendar features %v", vecs[0])
	}
	if labels[0] != 4 || labels[1] != 0 {
		t.Fatalf("unexpected labels %v", labels)
	}
}

func TestWindows(t *testing.T) {
	for _, n := range []int{0, 1, 3, 4, 5, 12} {
		temps := make([]float64, n)
		for i := range temps {
			temps[i] = float64(i)
		}
		vecs, _, targets := Engineer(series(temps...), weather.DefaultLabels())
		xs, ys := Windows(vecs, targets, WindowSize)

		want := n - WindowSize
		if want < 0 {
			want = 0
		}
		if len(xs) != want || len(ys) != want {
			t.Fatalf("n=%d: got %d windows, want %d", n, len(xs), want)
		}
		for k := range xs {
			if len(xs[k]) != WindowSize {
				t.Fatalf("n=%d: window %d has length %d", n, k, len(xs[k]))
			}
			if ys[k] != vecs[k+WindowSize][Temperature] {
				t.Fatalf("n=%d: target %d misaligned", n, k)
			}
			if xs[k][0] != vecs[k] {
				t.Fatalf("n=%d: window %d does not start at row %d", n, k, k)
			}
		}
	}
}

func TestFromConditions(t *testing.T) {
	v := FromConditions(weather.Conditions{
		Date:         time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC),
		TemperatureC: 27,
		HumidityPct:  40,
	})
	if v[RollingMeanTemp3] != 27 || v[RollingStdTemp7] != 0 {
		t.Fatalf("unexpected rolling features %v", v)
	}
	if v[Weekend] != 1 {
		t.Fatal("2024-07-14 is a Sunday")
	}

	w := Repeat(v, WindowSize)
	if len(w) != WindowSize || w[0] != v || w[2] != v {
		t.Fatalf("unexpected synthetic window %v", w)
	}
}
