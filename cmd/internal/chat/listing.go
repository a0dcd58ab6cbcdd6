package chat

import (
	"encoding/json"
	"fmt"

	"arcsync/cmd/internal/querycache"
	apiv1 "arcsync/shared/contracts/api/v1"
)

// Listing is the flattened view of every page held for a query.
type Listing[T any] struct {
	Items []T
	// HasMore is set when the last held page names a next cursor.
	HasMore bool
	// Stale is set when the first page came from the stored snapshot.
	Stale bool
}

func listingOf[T any](d querycache.Data) (Listing[T], error) {
	var out Listing[T]
	for i, p := range d.Pages {
		var page apiv1.Page[T]
		if err := json.Unmarshal(p.Payload, &page); err != nil {
			return Listing[T]{}, fmt.Errorf("chat: decode page %d: %w", i, err)
		}
		out.Items = append(out.Items, page.Items...)
		out.HasMore = page.NextCursor != ""
		if p.FromSnapshot {
			out.Stale = true
		}
	}
	return out, nil
}
