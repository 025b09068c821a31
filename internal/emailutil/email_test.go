package emailutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "lowercase", input: "user@example.com", want: "user@example.com", wantOK: true},
		{name: "mixed case", input: "User@Example.Com", want: "user@example.com", wantOK: true},
		{name: "surrounding whitespace", input: "  user@example.com \n", want: "user@example.com", wantOK: true},
		{name: "plus addressing", input: "user+tag@example.com", want: "user+tag@example.com", wantOK: true},
		{name: "empty", input: "", wantOK: false},
		{name: "no at sign", input: "user.example.com", wantOK: false},
		{name: "empty local part", input: "@example.com", wantOK: false},
		{name: "empty domain", input: "user@", wantOK: false},
		{name: "two at signs", input: "user@host@example.com", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
