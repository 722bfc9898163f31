package api

import "strings"

// contentDisposition builds an attachment header carrying name in the
// RFC 5987 UTF-8 extended form, so non-ASCII folder names survive. The
// extended form is used for every name, ASCII included; mime.FormatMediaType
// would fall back to a plain filename parameter.
func contentDisposition(name string) string {
	return "attachment; filename*=UTF-8''" + escapeAttrValue(name)
}

// escapeAttrValue percent-encodes every byte outside RFC 5987 attr-char.
func escapeAttrValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
