package catalog

// Page is one window over a result list
type Page struct {
	Items []App
	// Index is zero based
	Index int
	Total int
	Start int // Offset of Items[0] in the full list
}

// HasNext reports whether a later page exists
func (p Page) HasNext() bool {
	return p.Index+1 < p.Total
}

// HasPrev reports whether an earlier page exists
func (p Page) HasPrev() bool {
	return p.Index > 0
}

// Paginate returns page index of apps split into pages of size. The index is
// clamped to the valid range; an empty list yields one empty page.
func Paginate(apps []App, size, index int) Page {
	if size <= 0 {
		size = len(apps)
		if size == 0 {
			size = 1
		}
	}
	total := (len(apps) + size - 1) / size
	if total == 0 {
		total = 1
	}
	if index < 0 {
		index = 0
	}
	if index >= total {
		index = total - 1
	}

	start := index * size
	end := min(start+size, len(apps))
	return Page{
		Items: apps[start:end],
		Index: index,
		Total: total,
		Start: start,
	}
}
