package webapi

import (
	"net/http"
	"strconv"
)

// PagingArgs selects a page either by skip/take or by page number/size.
// A value with Page and Size both zero is skip/take.
type PagingArgs struct {
	Skip int64
	Take int64

	Page int64
	Size int64
}

// NewSkipTake creates skip/take paging.
func NewSkipTake(skip, take int64) PagingArgs {
	return PagingArgs{Skip: skip, Take: take}
}

// NewPageSize creates page/size paging. Page numbers start at 1.
func NewPageSize(page, size int64) PagingArgs {
	if page < 1 {
		page = 1
	}
	return PagingArgs{
		Page: page,
		Size: size,
		Skip: (page - 1) * size,
		Take: size,
	}
}

// IsSkipTake reports whether the paging was expressed as skip/take.
func (p PagingArgs) IsSkipTake() bool {
	return p.Page == 0 && p.Size == 0
}

// PagingResult is the paging metadata returned alongside a collection.
type PagingResult struct {
	PagingArgs

	TotalCount *int64
	TotalPages *int64
}

// PagingSetter is implemented by collection values that can carry paging
// metadata read from response headers.
type PagingSetter interface {
	SetPaging(p *PagingResult)
}

// PagingFromHeader reads paging metadata from h. It returns nil when no
// paging header is present.
func PagingFromHeader(h http.Header, names HeaderNames) *PagingResult {
	names = names.Normalize()

	num := func(key string) (int64, bool) {
		v := h.Get(key)
		if v == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}

	var (
		res   PagingResult
		found bool
	)

	page, hasPage := num(names.PagingPageNumber)
	size, hasSize := num(names.PagingPageSize)
	skip, hasSkip := num(names.PagingSkip)
	take, hasTake := num(names.PagingTake)

	switch {
	case hasPage || hasSize:
		res.PagingArgs = NewPageSize(page, size)
		found = true
	case hasSkip || hasTake:
		res.PagingArgs = NewSkipTake(skip, take)
		found = true
	}

	if n, ok := num(names.PagingTotalCount); ok {
		res.TotalCount = &n
		found = true
	}
	if n, ok := num(names.PagingTotalPages); ok {
		res.TotalPages = &n
		found = true
	}

	if !found {
		return nil
	}
	if res.TotalPages == nil && res.TotalCount != nil && res.Take > 0 {
		pages := (*res.TotalCount + res.Take - 1) / res.Take
		res.TotalPages = &pages
	}
	return &res
}

// WriteHeader writes p into h using names.
func (p *PagingResult) WriteHeader(h http.Header, names HeaderNames) {
	if p == nil {
		return
	}
	names = names.Normalize()

	if p.IsSkipTake() {
		h.Set(names.PagingSkip, strconv.FormatInt(p.Skip, 10))
		h.Set(names.PagingTake, strconv.FormatInt(p.Take, 10))
	} else {
		h.Set(names.PagingPageNumber, strconv.FormatInt(p.Page, 10))
		h.Set(names.PagingPageSize, strconv.FormatInt(p.Size, 10))
	}
	if p.TotalCount != nil {
		h.Set(names.PagingTotalCount, strconv.FormatInt(*p.TotalCount, 10))
	}
	if p.TotalPages != nil {
		h.Set(names.PagingTotalPages, strconv.FormatInt(*p.TotalPages, 10))
	}
}
