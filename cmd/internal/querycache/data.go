package querycache

import (
	"encoding/json"
	"time"
)

// Page is one fetched window of a query.
type Page struct {
	// Cursor is the request cursor; empty for the first page.
	Cursor  string
	Payload json.RawMessage
	// FromSnapshot is set when the page was served from the stored
	// snapshot after a network failure.
	FromSnapshot bool
	SyncedAt     time.Time
}

// First reports whether p is the first page of its query.
func (p Page) First() bool { return p.Cursor == "" }

// Clone deep-copies the payload.
func (p Page) Clone() Page {
	p.Payload = append(json.RawMessage(nil), p.Payload...)
	return p
}

// Data is the in-memory state of one query.
type Data struct {
	Pages     []Page
	UpdatedAt time.Time
}

// Clone deep-copies d.
func (d Data) Clone() Data {
	out := Data{UpdatedAt: d.UpdatedAt}
	if d.Pages != nil {
		out.Pages = make([]Page, len(d.Pages))
		for i, p := range d.Pages {
			out.Pages[i] = p.Clone()
		}
	}
	return out
}

// FirstPage returns the first page, if any.
func (d Data) FirstPage() (Page, bool) {
	if len(d.Pages) == 0 || !d.Pages[0].First() {
		return Page{}, false
	}
	return d.Pages[0], true
}

// withPage returns a copy of d with p placed: a first page resets the
// list, a later page replaces the page with the same cursor or is appended.
func (d Data) withPage(p Page) Data {
	if p.First() {
		return Data{Pages: []Page{p}, UpdatedAt: p.SyncedAt}
	}
	out := Data{UpdatedAt: p.SyncedAt, Pages: make([]Page, 0, len(d.Pages)+1)}
	replaced := false
	for _, existing := range d.Pages {
		if existing.Cursor == p.Cursor {
			out.Pages = append(out.Pages, p)
			replaced = true
			continue
		}
		out.Pages = append(out.Pages, existing)
	}
	if !replaced {
		out.Pages = append(out.Pages, p)
	}
	return out
}

// nextCursor reads {"next_cursor": "..."} from a page payload.
func nextCursor(payload json.RawMessage) string {
	var v struct {
		NextCursor string `json:"next_cursor"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return ""
	}
	return v.NextCursor
}
