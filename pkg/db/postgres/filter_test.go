package postgres

import (
	"fleetbook/pkg/filter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fieldID       filter.Field = "thing.id"
	fieldCategory filter.Field = "thing.category"
	fieldDriver   filter.Field = "thing.driver"
	fieldStart    filter.Field = "thing.start"
	fieldEnd      filter.Field = "thing.end"
)

var testColumns = map[filter.Field]string{
	fieldID:       "id",
	fieldCategory: "category",
	fieldDriver:   "assigned_driver_id",
	fieldStart:    "start_time",
	fieldEnd:      "end_time",
}

func TestWhere(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name     string
		f        filter.Filter
		offset   int
		wantSQL  string
		wantArgs []any
	}{
		{"empty", filter.Filter{}, 0, "TRUE", nil},
		{
			"vehicle candidates",
			filter.And(
				filter.In(fieldCategory, []string{"A", "B"}),
				filter.Eq(fieldDriver, int64(7)),
				filter.NotIn(fieldID, []int64{1, 2}),
			),
			0,
			"category IN ($1, $2) AND assigned_driver_id = $3 AND (id IS NULL OR id NOT IN ($4, $5))",
			[]any{"A", "B", int64(7), int64(1), int64(2)},
		},
		{
			"overlap with offset",
			filter.And(filter.Lt(fieldStart, end), filter.Gt(fieldEnd, start)),
			2,
			"start_time < $3 AND end_time > $4",
			[]any{end, start},
		},
		{
			"empty in matches nothing",
			filter.And(filter.In(fieldCategory, []string{})),
			0,
			"FALSE",
			nil,
		},
		{
			"empty not in dropped",
			filter.And(filter.NotIn(fieldID, []int64{})),
			0,
			"TRUE",
			nil,
		},
		{
			"ne is null safe",
			filter.And(filter.Ne(fieldDriver, int64(3))),
			0,
			"assigned_driver_id IS DISTINCT FROM $1",
			[]any{int64(3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := Where(tt.f, testColumns, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestWhere_UnknownField(t *testing.T) {
	_, _, err := Where(filter.And(filter.Eq(filter.Field("nope"), int64(1))), testColumns, 0)
	assert.ErrorContains(t, err, "unknown filter field")
}
