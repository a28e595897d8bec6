package resourceview

import "strings"

// EscapeToken escapes a single JSON Pointer reference token per RFC 6901:
// "~" becomes "~0" and "/" becomes "~1". Container names and label keys may
// legally contain either character.
func EscapeToken(token string) string {
	if !strings.ContainsAny(token, "~/") {
		return token
	}
	r := strings.NewReplacer("~", "~0", "/", "~1")
	return r.Replace(token)
}

// JoinPointer builds a JSON Pointer by appending already-unescaped tokens to
// a pointer prefix (e.g. "/spec/template/spec"). Each token is escaped
// individually before joining.
func JoinPointer(prefix string, tokens ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(EscapeToken(t))
	}
	return b.String()
}

// PointerDepth returns the number of tokens in a JSON Pointer, used by the
// patch composer to order operations by ascending path depth.
func PointerDepth(pointer string) int {
	trimmed := strings.Trim(pointer, "/")
	if trimmed == "" {
		return 0
	}
	return strings.Count(trimmed, "/") + 1
}

// UnescapeToken reverses EscapeToken.
func UnescapeToken(token string) string {
	if !strings.Contains(token, "~") {
		return token
	}
	r := strings.NewReplacer("~1", "/", "~0", "~")
	return r.Replace(token)
}

// SplitPointer splits a JSON Pointer into its unescaped reference tokens.
// The root pointer "" yields an empty slice.
func SplitPointer(pointer string) []string {
	trimmed := strings.TrimPrefix(pointer, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		parts[i] = UnescapeToken(p)
	}
	return parts
}
