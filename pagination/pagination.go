// Package pagination computes page metadata for listing endpoints.
package pagination

import (
	"math"
	"strconv"
	"strings"

	"github.com/LovationAdmin/finance-api/apperr"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Params struct {
	Page     int
	PageSize int
}

// Skip is the number of rows before the first row of the page. Pages too far
// out to address saturate at math.MaxInt, which every store reads as empty.
func (p Params) Skip() int {
	if p.PageSize > 0 && p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// Meta is the page envelope returned next to the data slice.
type Meta struct {
	Page            int  `json:"page"`
	PageSize        int  `json:"pageSize"`
	TotalCount      int  `json:"totalCount"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Page is a listing response: one page of rows plus its metadata.
type Page[T any] struct {
	Data []T `json:"data"`
	Meta
}

// Parse reads page and pageSize query values. Absent values take defaults;
// present values must be positive integers.
func Parse(page, pageSize string) (Params, error) {
	p := Params{Page: DefaultPage, PageSize: DefaultPageSize}

	if strings.TrimSpace(page) != "" {
		n, err := positiveInt(page)
		if err != nil {
			return Params{}, apperr.Validation("page", "invalid page")
		}
		p.Page = n
	}

	if strings.TrimSpace(pageSize) != "" {
		n, err := positiveInt(pageSize)
		if err != nil {
			return Params{}, apperr.Validation("pageSize", "invalid page")
		}
		p.PageSize = min(n, MaxPageSize)
	}

	return p, nil
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

// Paginate builds the metadata for one page. An empty listing has one page.
func Paginate(p Params, totalCount int) Meta {
	totalPages := 1
	if totalCount > 0 {
		totalPages = (totalCount + p.PageSize - 1) / p.PageSize
	}

	return Meta{
		Page:            p.Page,
		PageSize:        p.PageSize,
		TotalCount:      totalCount,
		TotalPages:      totalPages,
		HasNextPage:     p.Page < totalPages,
		HasPreviousPage: p.Page > 1,
	}
}

// New wraps rows and their metadata. A nil slice is returned as an empty array.
func New[T any](rows []T, p Params, totalCount int) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	return Page[T]{Data: rows, Meta: Paginate(p, totalCount)}
}
