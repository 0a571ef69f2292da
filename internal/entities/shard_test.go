package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShardDescriptorWritable(t *testing.T) {
	cases := []struct {
		name string
		d    ShardDescriptor
		want bool
	}{
		{"hot writable", ShardDescriptor{Tier: TierHot}, true},
		{"read only", ShardDescriptor{Tier: TierHot, IsReadOnly: true}, false},
		{"archive", ShardDescriptor{Tier: TierArchive}, false},
		{"cold is writable", ShardDescriptor{Tier: TierCold}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.d.Writable())
		})
	}
}

func TestDateRangeContains(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := DateRange{Start: start, End: end}

	assert.True(t, r.Contains(start))
	assert.True(t, r.Contains(start.Add(24*time.Hour)))
	assert.False(t, r.Contains(end))
	assert.False(t, r.Contains(start.Add(-time.Second)))

	open := DateRange{Start: start}
	assert.True(t, open.Contains(end.AddDate(10, 0, 0)))
}

func TestDateRangeOverlaps(t *testing.T) {
	jan := DateRange{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	febOpen := DateRange{Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	assert.False(t, jan.Overlaps(febOpen))

	overlapping := DateRange{Start: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	assert.True(t, jan.Overlaps(overlapping))
}
