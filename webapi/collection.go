package webapi

import "github.com/goccy/go-json"

// CollectionResult is a collection of items with optional paging metadata.
// It marshals as a bare JSON array; the paging travels in headers.
type CollectionResult[T any] struct {
	Items  []T
	Paging *PagingResult
}

// SetPaging implements PagingSetter.
func (c *CollectionResult[T]) SetPaging(p *PagingResult) {
	c.Paging = p
}

// MarshalJSON renders the items as an array. A nil collection renders [].
func (c CollectionResult[T]) MarshalJSON() ([]byte, error) {
	if c.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Items)
}

// UnmarshalJSON reads the items from an array.
func (c *CollectionResult[T]) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &c.Items)
}
