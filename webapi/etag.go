package webapi

import "strings"

const weakPrefix = "W/"

// QuoteETag wraps tag in double quotes exactly once.
// Already quoted tags, including weak ones (W/"..."), are returned unchanged.
// An empty tag stays empty.
func QuoteETag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" || tag == "*" {
		return tag
	}
	if strings.HasPrefix(tag, weakPrefix) {
		return weakPrefix + QuoteETag(tag[len(weakPrefix):])
	}
	if len(tag) >= 2 && strings.HasPrefix(tag, `"`) && strings.HasSuffix(tag, `"`) {
		return tag
	}
	return `"` + strings.Trim(tag, `"`) + `"`
}

// UnquoteETag strips the surrounding quotes and any weak prefix.
func UnquoteETag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, weakPrefix)
	if len(tag) >= 2 && strings.HasPrefix(tag, `"`) && strings.HasSuffix(tag, `"`) {
		return tag[1 : len(tag)-1]
	}
	return tag
}
