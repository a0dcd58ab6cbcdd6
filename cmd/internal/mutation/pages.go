package mutation

import (
	"encoding/json"
	"fmt"

	"arcsync/cmd/internal/querycache"
	apiv1 "arcsync/shared/contracts/api/v1"
)

// PrependToFirstPage returns d with item placed at index 0 of the first
// page. d itself is not modified. Data without a first page is returned as is.
func PrependToFirstPage[T any](d querycache.Data, item T) (querycache.Data, error) {
	return editFirstPage(d, func(items []T) []T {
		out := make([]T, 0, len(items)+1)
		out = append(out, item)
		return append(out, items...)
	})
}

// UpdateFirstPageItems returns d with fn applied to every item of the
// first page. Items for which fn reports false are left untouched.
func UpdateFirstPageItems[T any](d querycache.Data, fn func(T) (T, bool)) (querycache.Data, error) {
	return editFirstPage(d, func(items []T) []T {
		out := make([]T, len(items))
		for i, it := range items {
			if next, ok := fn(it); ok {
				out[i] = next
				continue
			}
			out[i] = it
		}
		return out
	})
}

func editFirstPage[T any](d querycache.Data, edit func([]T) []T) (querycache.Data, error) {
	first, ok := d.FirstPage()
	if !ok {
		return d, nil
	}
	var page apiv1.Page[T]
	if err := json.Unmarshal(first.Payload, &page); err != nil {
		return querycache.Data{}, fmt.Errorf("mutation: decode first page: %w", err)
	}
	page.Items = edit(page.Items)
	raw, err := json.Marshal(page)
	if err != nil {
		return querycache.Data{}, fmt.Errorf("mutation: encode first page: %w", err)
	}

	out := querycache.Data{UpdatedAt: d.UpdatedAt, Pages: make([]querycache.Page, len(d.Pages))}
	copy(out.Pages, d.Pages)
	first.Payload = raw
	out.Pages[0] = first
	return out, nil
}

// FirstPageItems decodes the items of d's first page.
func FirstPageItems[T any](d querycache.Data) ([]T, error) {
	first, ok := d.FirstPage()
	if !ok {
		return nil, nil
	}
	var page apiv1.Page[T]
	if err := json.Unmarshal(first.Payload, &page); err != nil {
		return nil, fmt.Errorf("mutation: decode first page: %w", err)
	}
	return page.Items, nil
}
