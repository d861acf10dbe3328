package tier

const (
	defaultLimit = 15
	maxLimit     = 100
)

// Page is one slice of a tier listing plus its opaque descriptor.
type Page struct {
	Data []*Tier
	Meta any
}

// Meta is the descriptor Browse attaches to pages it builds.
type Meta struct {
	Pagination Pagination `json:"pagination"`
}

// Pagination describes the position of a page in the full listing.
type Pagination struct {
	Page  int  `json:"page"`
	Limit int  `json:"limit"`
	Pages int  `json:"pages"`
	Total int  `json:"total"`
	Next  *int `json:"next"`
	Prev  *int `json:"prev"`
}

// normalizePage clamps page and limit into their accepted ranges.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// NewPagination computes page counts and neighbours for total rows.
// Out-of-range page and limit values are clamped first.
func NewPagination(page, limit, total int) Pagination {
	page, limit = normalizePage(page, limit)
	pages := (total + limit - 1) / limit
	if pages < 1 {
		pages = 1
	}
	p := Pagination{Page: page, Limit: limit, Pages: pages, Total: total}
	if page < pages {
		next := page + 1
		p.Next = &next
	}
	if page > 1 {
		prev := page - 1
		p.Prev = &prev
	}
	return p
}
