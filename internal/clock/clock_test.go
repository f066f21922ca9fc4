package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:05", 545, false},
		{"9:05", 545, false},
		{"23:59", 1439, false},
		{" 12:30 ", 750, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"12:5", 0, true},
		{"1230", 0, true},
		{"", 0, true},
		{"ab:cd", 0, true},
		{"+9:05", 0, true},
		{"09:+5", 0, true},
		{"-1:00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinutes_Lenient(t *testing.T) {
	assert.Equal(t, 600, Minutes("10:00"))
	assert.Equal(t, 0, Minutes("garbage"))
}

func TestFormat_Wraps(t *testing.T) {
	assert.Equal(t, "00:30", Format(1470))
	assert.Equal(t, "23:30", Format(-30))
	assert.Equal(t, "08:05", Format(485))
}

func TestAdd(t *testing.T) {
	got, err := Add("10:00", 90)
	require.NoError(t, err)
	assert.Equal(t, "11:30", got)

	got, err = Add("23:30", 60)
	require.NoError(t, err)
	assert.Equal(t, "00:30", got)

	_, err = Add("nope", 10)
	assert.Error(t, err)
}

func TestDuration_WrapsPastMidnight(t *testing.T) {
	d, err := Duration("23:30", "00:30")
	require.NoError(t, err)
	assert.Equal(t, 60, d)

	d, err = Duration("10:00", "11:30")
	require.NoError(t, err)
	assert.Equal(t, 90, d)

	d, err = Duration("10:00", "10:00")
	require.NoError(t, err)
	assert.Equal(t, 0, d)
}

func TestHeight(t *testing.T) {
	// A wrap-around event is as tall as any other hour-long event.
	assert.InDelta(t, 60.0, Height("23:30", "00:30", 60), 0.001)
	assert.InDelta(t, 90.0, Height("10:00", "11:30", 60), 0.001)
	assert.InDelta(t, 15.0, Height("10:00", "10:00", 60), 0.001)
	assert.InDelta(t, 15.0, Height("bad", "10:00", 60), 0.001)
}
