package webapi

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(o RequestOptions) string {
	var parts []string
	o.AppendQuery(func(k, v string) {
		parts = append(parts, k+"="+v)
	})
	return strings.Join(parts, "&")
}

func TestRequestOptions_AppendQuery(t *testing.T) {
	tests := []struct {
		name string
		opts RequestOptions
		want string
	}{
		{
			name: "given empty options, then renders nothing",
			opts: RequestOptions{},
			want: "",
		},
		{
			name: "given include fields, then renders $fields joined by comma",
			opts: RequestOptions{}.Include("id", "total"),
			want: "$fields=id,total",
		},
		{
			name: "given every option, then renders in fixed order",
			opts: RequestOptions{}.
				WithInactive().
				WithText().
				WithCount().
				WithPaging(NewSkipTake(10, 5)).
				Exclude("secret").
				Include("id"),
			want: "$fields=id&$exclude=secret&$skip=10&$take=5&$count=true&$text=true&$inactive=true",
		},
		{
			name: "given page paging, then renders $page and $size",
			opts: RequestOptions{}.WithPaging(NewPageSize(3, 20)),
			want: "$page=3&$size=20",
		},
		{
			name: "given skip take literal, then renders $skip and $take",
			opts: RequestOptions{Paging: &PagingArgs{Skip: 20, Take: 10}},
			want: "$skip=20&$take=10",
		},
		{
			name: "given page size literal, then renders $page and $size",
			opts: RequestOptions{Paging: &PagingArgs{Page: 2, Size: 10}},
			want: "$page=2&$size=10",
		},
		{
			name: "given etag and raw query, then neither is rendered",
			opts: RequestOptions{}.WithETag("v1").WithQuery("a=b"),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(tt.opts))
		})
	}
}

func TestParseRequestOptions_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts RequestOptions
	}{
		{name: "given empty options", opts: RequestOptions{}},
		{name: "given fields", opts: RequestOptions{}.Include("a", "b").Exclude("c")},
		{name: "given skip take", opts: RequestOptions{}.WithPaging(NewSkipTake(0, 25)).WithCount()},
		{name: "given page size", opts: RequestOptions{}.WithPaging(NewPageSize(4, 10)).WithText()},
		{name: "given flags", opts: RequestOptions{}.WithInactive().WithText().WithCount()},
	}

	for _, tt := range tests {
		t.Run(tt.name+", then parse recovers the options", func(t *testing.T) {
			got, err := ParseRequestOptions(tt.opts.Values())
			require.NoError(t, err)
			assert.Equal(t, tt.opts, got)
		})
	}
}

func TestParseRequestOptions_Aliases(t *testing.T) {
	tests := []struct {
		name  string
		query string
		check func(t *testing.T, o RequestOptions)
	}{
		{
			name:  "given fields alias, then reads include fields",
			query: "fields=a,b&$include=c",
			check: func(t *testing.T, o RequestOptions) {
				assert.Equal(t, []string{"a", "b", "c"}, o.IncludeFields)
			},
		},
		{
			name:  "given limit and offset, then reads skip take",
			query: "limit=5&offset=10",
			check: func(t *testing.T, o RequestOptions) {
				require.NotNil(t, o.Paging)
				assert.True(t, o.Paging.IsSkipTake())
				assert.Equal(t, int64(10), o.Paging.Skip)
				assert.Equal(t, int64(5), o.Paging.Take)
			},
		},
		{
			name:  "given page and pageSize, then reads page paging",
			query: "page=2&pageSize=15",
			check: func(t *testing.T, o RequestOptions) {
				require.NotNil(t, o.Paging)
				assert.False(t, o.Paging.IsSkipTake())
				assert.Equal(t, int64(15), o.Paging.Skip)
				assert.Equal(t, int64(15), o.Paging.Take)
			},
		},
		{
			name:  "given valueless count flag, then treats it as true",
			query: "$count",
			check: func(t *testing.T, o RequestOptions) {
				assert.True(t, o.GetCount)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := ParseRequestOptions(values)
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestParseRequestOptions_Invalid(t *testing.T) {
	values := url.Values{"$take": {"many"}, "$count": {"maybe"}}

	_, err := ParseRequestOptions(values)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequestOptions)
	assert.Contains(t, err.Error(), "$take")
	assert.Contains(t, err.Error(), "$count")
}
