package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamps(t *testing.T) {
	overview := `The video covers three topics:
00:00 - Introduction
02:15 - Pricing discussion
* 05:30 - Q&A session
Some trailing prose without a stamp.`

	stamps := ParseTimestamps(overview)
	require.Len(t, stamps, 3)
	assert.Equal(t, 0.0, stamps[0].Seconds)
	assert.Equal(t, "Introduction", stamps[0].Topic)
	assert.Equal(t, 135.0, stamps[1].Seconds)
	assert.Equal(t, "Pricing discussion", stamps[1].Topic)
	assert.Equal(t, 330.0, stamps[2].Seconds)
	assert.Equal(t, "Q&A session", stamps[2].Topic)
}

func TestParseTimestampsHoursAndDedup(t *testing.T) {
	stamps := ParseTimestamps("1:02:15 - Late topic\n02:15 - Early topic\n02:15 - Duplicate second")
	require.Len(t, stamps, 2)
	// Sorted ascending, duplicate seconds dropped.
	assert.Equal(t, 135.0, stamps[0].Seconds)
	assert.Equal(t, 3735.0, stamps[1].Seconds)
	assert.Equal(t, "Late topic", stamps[1].Topic)
}

func TestParseTimestampsNone(t *testing.T) {
	assert.Empty(t, ParseTimestamps("just a plain overview with no boundaries"))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00", FormatTimestamp(0))
	assert.Equal(t, "02:15", FormatTimestamp(135))
	assert.Equal(t, "1:02:15", FormatTimestamp(3735))
}
