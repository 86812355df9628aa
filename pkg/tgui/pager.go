package tgui

import "fmt"

// Page is one page of a list view. Index is 0-based and clamped to the last
// page.
type Page[T any] struct {
	Items   []T
	Index   int
	Pages   int
	From    int // offset of Items[0] in the full list
	Total   int
	HasPrev bool
	HasNext bool
}

// Paginate returns page index of items. size <= 0 means 10.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	pages := max(1, (total+size-1)/size)
	index = min(max(index, 0), pages-1)
	start := index * size
	end := min(start+size, total)
	return Page[T]{
		Items:   items[start:end],
		Index:   index,
		Pages:   pages,
		From:    start,
		Total:   total,
		HasPrev: index > 0,
		HasNext: end < total,
	}
}

// Label returns a compact, human-friendly pagination label.
func (p Page[T]) Label() string {
	if p.Total == 0 {
		return "Page 1/1"
	}
	return fmt.Sprintf("Page %d/%d • %d–%d of %d", p.Index+1, p.Pages, p.From+1, p.From+len(p.Items), p.Total)
}
