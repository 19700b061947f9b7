package walltime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "2024-01-01 10:00:00", false},
		{"valid midnight", "2024-12-31 00:00:00", false},
		{"valid end of day", "2024-06-15 23:59:59", false},
		{"date only", "2024-01-01", true},
		{"rfc3339", "2024-01-01T10:00:00Z", true},
		{"12 hour clock", "2024-01-01 10:00:00 PM", true},
		{"empty", "", true},
		{"garbage", "not-a-time", true},
		{"sub-second", "2024-01-01 10:00:00.123", true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Parse(test.input)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.input, Format(got))
		})
	}
}

func TestFormat(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-01 10:00:00", Format(ts))
	assert.Equal(t, "", Format(time.Time{}))
}

func TestNow_SecondResolution(t *testing.T) {
	now := Now()
	assert.Zero(t, now.Nanosecond())
}
