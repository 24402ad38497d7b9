package resolver

import (
	"storebot/pkg/payload"
)

// lastPageContainers are probed in order; the first positive integer wins.
var lastPageContainers = [][]string{
	{"meta"},
	{},
	{"data"},
	{"pagination"},
	{"meta", "pagination"},
	{"data", "meta"},
	{"data", "pagination"},
}

var lastPageKeys = []string{"last_page", "lastPage", "total_pages", "totalPages"}

// LastPage reads the listing's page count from whichever metadata shape the
// backend used. Missing, zero or malformed values fall back to 1.
func LastPage(v payload.Value) int {
	for _, container := range lastPageContainers {
		node, ok := v.Path(container...)
		if !ok || !node.IsObject() {
			continue
		}
		for _, key := range lastPageKeys {
			raw, ok := node.Get(key)
			if !ok {
				continue
			}
			if n, ok := raw.AsInt(); ok && n >= 1 {
				if n > maxLastPage {
					return maxLastPage
				}
				return int(n)
			}
		}
	}
	return 1
}

// maxLastPage keeps a garbage page count from overflowing int math; the
// traversal cap is always far smaller.
const maxLastPage = 1 << 20
