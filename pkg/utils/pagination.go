package utils

import "net/http"

func CalculateTotalPages(total int64, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

func CalculateOffset(page, perPage int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * perPage
}

// PageParams reads page and per_page from the query string, capping per_page at 100.
func PageParams(r *http.Request) (page, perPage int) {
	query := r.URL.Query()
	page = ParseInt(query.Get("page"), 1)
	perPage = ParseInt(query.Get("per_page"), 10)
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
