package domain

import (
	"net/url"
	"strconv"
)

// LoadingStatus state of a repository load.
type LoadingStatus int

const (
	Loaded LoadingStatus = iota
	Loading
)

// String returns the string representation.
func (s LoadingStatus) String() string {
	if s == Loading {
		return "loading"
	}
	return "loaded"
}

// PageOrder ordering of a paged collection.
type PageOrder string

const (
	PageOrderAsc  PageOrder = "asc"
	PageOrderDesc PageOrder = "desc"
)

// Links pagination links of a page. Empty Next means there are no more pages.
type Links struct {
	Self string
	Next string
}

// PageRequest cursor based page request.
type PageRequest struct {
	Cursor string
	Limit  int
	Order  PageOrder
}

// WithNext returns a copy of the request pointing at the cursor of the next link.
// Next links carry the cursor in the page[cursor] (or cursor) query parameter;
// anything else is used as the cursor itself.
func (r PageRequest) WithNext(next string) PageRequest {
	out := r
	out.Cursor = next

	u, err := url.Parse(next)
	if err != nil {
		return out
	}
	q := u.Query()
	for _, key := range []string{"page[cursor]", "cursor"} {
		if c := q.Get(key); c != "" {
			out.Cursor = c
			if l, err := strconv.Atoi(q.Get("page[limit]")); err == nil && l > 0 {
				out.Limit = l
			}
			return out
		}
	}

	return out
}

// Page one page of a server-side paged collection.
type Page[T any] struct {
	Items []T
	Links Links
}
