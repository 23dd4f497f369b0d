package response

import "isp-portal/pkg/utils"

// PaginatedResponse is the envelope data for every admin list endpoint.
type PaginatedResponse[T any] struct {
	Data       []T            `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

type PaginationMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

func NewPaginatedResponse[T any](data []T, page, perPage int, total int64) *PaginatedResponse[T] {
	if data == nil {
		data = []T{}
	}

	return &PaginatedResponse[T]{
		Data: data,
		Pagination: PaginationMeta{
			Total:      total,
			Page:       page,
			PerPage:    perPage,
			TotalPages: utils.CalculateTotalPages(total, perPage),
		},
	}
}
