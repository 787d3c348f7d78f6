package refund

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/showbook-chat/internal/model"
)

var standardSlabs = []model.RefundSlab{
	{HoursBeforeShow: 24, RefundPercent: 50},
	{HoursBeforeShow: 0, RefundPercent: 0},
	{HoursBeforeShow: 48, RefundPercent: 100},
}

func TestResolvePercent(t *testing.T) {
	cases := []struct {
		name  string
		hours float64
		want  int
	}{
		{"well ahead", 50, 100},
		{"exactly on the 48h threshold", 48, 100},
		{"between slabs", 30, 50},
		{"exactly on the 24h threshold", 24, 50},
		{"late", 5, 0},
		{"at start", 0, 0},
		{"after start", -1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolvePercent(standardSlabs, tc.hours, true))
		})
	}
}

func TestResolvePercentDisallowed(t *testing.T) {
	assert.Equal(t, 0, ResolvePercent(standardSlabs, 500, false))
}

func TestResolvePercentEmptyPolicy(t *testing.T) {
	assert.Equal(t, 0, ResolvePercent(nil, 100, true))
}

func TestResolvePercentDoesNotReorderInput(t *testing.T) {
	in := []model.RefundSlab{{HoursBeforeShow: 1, RefundPercent: 10}, {HoursBeforeShow: 10, RefundPercent: 90}}
	ResolvePercent(in, 5, true)
	assert.Equal(t, float64(1), in[0].HoursBeforeShow)
}

func TestAmount(t *testing.T) {
	assert.Equal(t, int64(75), Amount(150, 50))
	assert.Equal(t, int64(450), Amount(450, 100))
	assert.Equal(t, int64(0), Amount(450, 0))
	assert.Equal(t, int64(2), Amount(3, 50), "1.5 rounds half up")
	assert.Equal(t, int64(100), Amount(100, 150), "percent is clamped")
}

func TestHoursBeforeUsesUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, ist)
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	assert.InDelta(t, 2.0, HoursBefore(start, now), 1e-9)
}
