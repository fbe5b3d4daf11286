package webapi

// HeaderNames holds the header names used to exchange correlation, error and
// paging metadata. The zero value is not usable; start from DefaultHeaderNames.
type HeaderNames struct {
	CorrelationID string
	ErrorType     string
	ErrorCode     string
	Messages      string

	PagingPageNumber string
	PagingPageSize   string
	PagingSkip       string
	PagingTake       string
	PagingTotalCount string
	PagingTotalPages string
}

// DefaultHeaderNames returns the conventional header names.
func DefaultHeaderNames() HeaderNames {
	return HeaderNames{
		CorrelationID:    "x-correlation-id",
		ErrorType:        "x-error-type",
		ErrorCode:        "x-error-code",
		Messages:         "x-messages",
		PagingPageNumber: "x-paging-page-number",
		PagingPageSize:   "x-paging-page-size",
		PagingSkip:       "x-paging-skip",
		PagingTake:       "x-paging-take",
		PagingTotalCount: "x-paging-total-count",
		PagingTotalPages: "x-paging-total-pages",
	}
}

// Normalize returns h with every empty name replaced by its default.
func (h HeaderNames) Normalize() HeaderNames {
	d := DefaultHeaderNames()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&h.CorrelationID, d.CorrelationID)
	fill(&h.ErrorType, d.ErrorType)
	fill(&h.ErrorCode, d.ErrorCode)
	fill(&h.Messages, d.Messages)
	fill(&h.PagingPageNumber, d.PagingPageNumber)
	fill(&h.PagingPageSize, d.PagingPageSize)
	fill(&h.PagingSkip, d.PagingSkip)
	fill(&h.PagingTake, d.PagingTake)
	fill(&h.PagingTotalCount, d.PagingTotalCount)
	fill(&h.PagingTotalPages, d.PagingTotalPages)
	return h
}
