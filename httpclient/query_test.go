package httpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantEncode string
		wantLen    int
	}{
		{
			name:       "given empty string, then returns empty query",
			raw:        "",
			wantEncode: "",
			wantLen:    0,
		},
		{
			name:       "given leading question mark, then strips it",
			raw:        "?a=1&b=2",
			wantEncode: "a=1&b=2",
			wantLen:    2,
		},
		{
			name:       "given duplicate keys, then keeps both in order",
			raw:        "tag=b&tag=a",
			wantEncode: "tag=b&tag=a",
			wantLen:    2,
		},
		{
			name:       "given escaped value, then decodes and re-encodes it",
			raw:        "q=hello%20world",
			wantEncode: "q=hello+world",
			wantLen:    1,
		},
		{
			name:       "given empty segments, then skips them",
			raw:        "a=1&&b=2&",
			wantEncode: "a=1&b=2",
			wantLen:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQuery(tt.raw)

			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, q.Len())
			assert.Equal(t, tt.wantEncode, q.Encode())
		})
	}
}

func TestParseQuery_InvalidEscape(t *testing.T) {
	_, err := ParseQuery("a=%zz")

	assert.Error(t, err)
}

func TestQueryString_Encode(t *testing.T) {
	tests := []struct {
		name  string
		build func(q *QueryString)
		want  string
	}{
		{
			name: "given dollar keys and commas, then keeps them readable",
			build: func(q *QueryString) {
				q.Add("$fields", "id,total")
			},
			want: "$fields=id,total",
		},
		{
			name: "given colons in a value, then keeps them literal",
			build: func(q *QueryString) {
				q.Add("since", "2024-05-01T10:00:00Z")
			},
			want: "since=2024-05-01T10:00:00Z",
		},
		{
			name: "given raw fragment with prefix, then appends it without double prefix",
			build: func(q *QueryString) {
				q.Add("a", "1")
				q.AddRaw("?&b=2&c=3")
			},
			want: "a=1&b=2&c=3",
		},
		{
			name: "given empty raw fragment, then ignores it",
			build: func(q *QueryString) {
				q.Add("a", "1")
				q.AddRaw("?")
			},
			want: "a=1",
		},
		{
			name: "given reserved characters, then escapes them",
			build: func(q *QueryString) {
				q.Add("name", "a&b=c")
			},
			want: "name=a%26b%3Dc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q QueryString
			tt.build(&q)

			assert.Equal(t, tt.want, q.Encode())
		})
	}
}

func TestQueryString_GetValues(t *testing.T) {
	q, err := ParseQuery("tag=a&x=1&tag=b")
	require.NoError(t, err)

	assert.Equal(t, "a", q.Get("tag"))
	assert.Equal(t, []string{"a", "b"}, q.Values("tag"))
	assert.Empty(t, q.Get("missing"))
}
