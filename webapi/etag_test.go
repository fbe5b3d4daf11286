package webapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteETag(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want string
	}{
		{name: "given empty tag, then stays empty", tag: "", want: ""},
		{name: "given bare tag, then quotes it", tag: "abc", want: `"abc"`},
		{name: "given quoted tag, then returns unchanged", tag: `"abc"`, want: `"abc"`},
		{name: "given weak bare tag, then quotes after prefix", tag: "W/abc", want: `W/"abc"`},
		{name: "given weak quoted tag, then returns unchanged", tag: `W/"abc"`, want: `W/"abc"`},
		{name: "given wildcard, then returns unchanged", tag: "*", want: "*"},
		{name: "given half quoted tag, then quotes once", tag: `"abc`, want: `"abc"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuoteETag(tt.tag)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, QuoteETag(got), "quoting must be idempotent")
		})
	}
}

func TestUnquoteETag(t *testing.T) {
	assert.Equal(t, "abc", UnquoteETag(`"abc"`))
	assert.Equal(t, "abc", UnquoteETag(`W/"abc"`))
	assert.Equal(t, "abc", UnquoteETag("abc"))
}
