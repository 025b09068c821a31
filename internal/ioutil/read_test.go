package ioutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAtMost(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		body, err := ReadAtMost(strings.NewReader(`{"id":42}`), 1024)
		require.NoError(t, err)
		assert.Equal(t, `{"id":42}`, string(body))
	})

	t.Run("exactly at limit", func(t *testing.T) {
		body, err := ReadAtMost(strings.NewReader("hello"), 5)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("over limit", func(t *testing.T) {
		_, err := ReadAtMost(strings.NewReader("hello world"), 5)
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("read error", func(t *testing.T) {
		_, err := ReadAtMost(&failingReader{err: errors.New("connection reset")}, 5)
		assert.EqualError(t, err, "connection reset")
	})
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{"short", "bad_verification_code", 256, "bad_verification_code"},
		{"cut", "hello world", 5, "hello..."},
		{"exact", "hello", 5, "hello"},
		{"empty", "", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Snippet(strings.NewReader(tt.input), tt.limit))
		})
	}

	t.Run("read error is described", func(t *testing.T) {
		assert.Equal(t, "<unreadable: connection reset>", Snippet(&failingReader{err: errors.New("connection reset")}, 10))
	})
}

type failingReader struct {
	err error
}

func (r *failingReader) Read(_ []byte) (int, error) {
	return 0, r.err
}
