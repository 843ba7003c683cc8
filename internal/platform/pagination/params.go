package pagination

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps pageSize.
	DefaultMaxPageSize = 100
)

// ParseRequest reads pageSize and pageToken from the query string.
func ParseRequest(r *http.Request) (domain.Pagination, error) {
	query := r.URL.Query()
	page := domain.Pagination{
		PageSize:  DefaultPageSize,
		PageToken: strings.TrimSpace(query.Get("pageToken")),
	}
	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return domain.Pagination{}, fmt.Errorf("pagination: invalid pageSize %q", raw)
		}
		page.PageSize = size
	}
	page.PageSize = NormalizePageSize(page.PageSize)
	if _, err := DecodeToken(page.PageToken); err != nil {
		return domain.Pagination{}, err
	}
	return page, nil
}

// NormalizePageSize clamps size into [1, DefaultMaxPageSize].
func NormalizePageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > DefaultMaxPageSize:
		return DefaultMaxPageSize
	default:
		return size
	}
}
