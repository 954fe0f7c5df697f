package shared

import "math"

const (
	defaultPerPage = 20
	maxPerPage     = 200
)

// PageRequest carries the page selection of a listing.
type PageRequest struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Normalize clamps the request to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.PerPage <= 0 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	return p
}

// Limit returns the SQL LIMIT.
func (p PageRequest) Limit() int { return p.Normalize().PerPage }

// Offset returns the SQL OFFSET.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(req PageRequest, total int) Pagination {
	n := req.Normalize()
	totalPages := int(math.Ceil(float64(total) / float64(n.PerPage)))
	return Pagination{Page: n.Page, PerPage: n.PerPage, Total: total, TotalPages: totalPages}
}
