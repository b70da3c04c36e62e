package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeValid(t *testing.T) {
	assert.True(t, TypeDocument.Valid())
	assert.True(t, TypeAudio.Valid())
	assert.True(t, TypeVideo.Valid())
	assert.True(t, TypeWeb.Valid())
	assert.True(t, TypeText.Valid())
	assert.False(t, Type("spreadsheet").Valid())
	assert.False(t, Type("").Valid())
}

func TestPositionString(t *testing.T) {
	tests := []struct {
		name string
		pos  Position
		want string
	}{
		{"single page", PageSpan{First: 4, Last: 4}, "p. 4"},
		{"page range", PageSpan{First: 2, Last: 3}, "pp. 2-3"},
		{
			"time span",
			TimeSpan{Start: 90 * time.Second, End: 130 * time.Second},
			"00:01:30-00:02:10",
		},
		{
			"time span over an hour",
			TimeSpan{Start: time.Hour + 5*time.Second, End: time.Hour + time.Minute},
			"01:00:05-01:01:00",
		},
		{"byte span", ByteSpan{Start: 0, End: 1000}, "bytes 0-1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pos.String())
		})
	}
}

func TestEncodeDecodePosition(t *testing.T) {
	positions := []Position{
		PageSpan{First: 1, Last: 3},
		TimeSpan{Start: 30 * time.Second, End: 95 * time.Second},
		ByteSpan{Start: 100, End: 2100},
	}
	for _, pos := range positions {
		meta := EncodePosition(pos)
		require.NotNil(t, meta)

		decoded, ok := DecodePosition(meta)
		require.True(t, ok)
		assert.Equal(t, pos, decoded)
	}
}

func TestDecodePositionMalformed(t *testing.T) {
	_, ok := DecodePosition(map[string]string{})
	assert.False(t, ok)

	_, ok = DecodePosition(map[string]string{
		posKindKey:  "page",
		posStartKey: "not-a-number",
		posEndKey:   "2",
	})
	assert.False(t, ok)

	_, ok = DecodePosition(map[string]string{
		posKindKey:  "galaxy",
		posStartKey: "1",
		posEndKey:   "2",
	})
	assert.False(t, ok)
}
