package query

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"

	"findash/internal/core"
)

// EncodeCursor returns the opaque token for offset under signature.
func EncodeCursor(offset int, signature string) string {
	raw := strconv.Itoa(offset) + ":" + signature
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor returns the offset a cursor points at. An empty cursor is
// the first page. A cursor issued for another filter or sort is rejected
// rather than silently paging a different result set.
func DecodeCursor(cursor, signature string) (int, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, invalidCursor()
	}
	offsetPart, sig, ok := strings.Cut(string(raw), ":")
	if !ok || sig != signature {
		return 0, invalidCursor()
	}
	offset, err := strconv.Atoi(offsetPart)
	if err != nil || offset < 0 {
		return 0, invalidCursor()
	}
	return offset, nil
}

func invalidCursor() error {
	return core.Validation(core.CodeInvalidCursor, "cursor does not match this listing")
}

// signature hashes everything that shapes the result order. Limit is left
// out so a client may change page size mid-way.
func signature(req ListRequest, key, dir string) string {
	parts := []string{
		string(req.Type),
		core.NormalizeLookup(req.Category, false),
		core.NormalizeLookup(req.Currency, true),
		strings.TrimSpace(req.Who),
		strings.TrimSpace(req.Description),
		strings.TrimSpace(req.Period),
		strings.TrimSpace(req.From),
		strings.TrimSpace(req.To),
		key,
		dir,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:6])
}

// CursorStack remembers the cursors of pages already visited so a client
// can walk back. The empty cursor stands for the first page.
type CursorStack struct {
	cursors []string
}

// Forward records current as visited and returns next for the caller to
// fetch.
func (s *CursorStack) Forward(current, next string) string {
	s.cursors = append(s.cursors, current)
	return next
}

// Back returns the cursor of the previous page. ok is false on the first
// page.
func (s *CursorStack) Back() (cursor string, ok bool) {
	if len(s.cursors) == 0 {
		return "", false
	}
	last := len(s.cursors) - 1
	cursor = s.cursors[last]
	s.cursors = s.cursors[:last]
	return cursor, true
}

// Depth is the number of pages behind the current one.
func (s *CursorStack) Depth() int { return len(s.cursors) }

// Reset forgets the history, e.g. after the filters change.
func (s *CursorStack) Reset() { s.cursors = s.cursors[:0] }
