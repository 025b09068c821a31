package ioutil

import (
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned by ReadAtMost when the input exceeds the limit.
var ErrTooLarge = errors.New("body exceeds size limit")

// ReadAtMost reads all of r, failing with ErrTooLarge instead of silently
// truncating when r holds more than limit bytes.
func ReadAtMost(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return body, nil
}

// Snippet returns up to limit bytes of r for error messages and logs.
// Longer input is cut and marked with "..."; a failed read is described
// rather than dropped.
func Snippet(r io.Reader, limit int) string {
	body, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
