package query

const DefaultPageSize = 10

// Page is one slice of a larger result set. Pages are 1-indexed.
type Page[T any] struct {
	Items       []T  `json:"items"`
	TotalCount  int  `json:"total_count"`
	TotalPages  int  `json:"total_pages"`
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Paginate cuts items into pages of pageSize and returns the requested one.
// A page past the end comes back empty with the totals still filled in.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	total := len(items)
	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}

	// Compare page numbers before multiplying so huge inputs cannot overflow.
	start, end := total, total
	if page <= totalPages {
		start = (page - 1) * pageSize
		end = start + min(pageSize, total-start)
	}

	return Page[T]{
		Items:       append(make([]T, 0, end-start), items[start:end]...),
		TotalCount:  total,
		TotalPages:  totalPages,
		Page:        page,
		PageSize:    pageSize,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}

// Window returns the first n items, the "load more" view. n < 1 yields
// DefaultPageSize items.
func Window[T any](items []T, n int) []T {
	if n < 1 {
		n = DefaultPageSize
	}
	if n > len(items) {
		n = len(items)
	}
	return append(make([]T, 0, n), items[:n]...)
}
