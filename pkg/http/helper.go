package http

import (
	"fleetbook/pkg/config"
	"net/http"
	"strconv"

	apperrors "fleetbook/pkg/errors"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidRequest("invalid limit parameter", map[string]any{"limit": s})
		}
		limit = v
	}

	var offset int64
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidRequest("invalid offset parameter", map[string]any{"offset": s})
		}
		offset = v
	}

	return config.NormalizePaginationLimit(limit), config.NormalizeOffset(offset), nil
}

// ParseID parses a positive integer identifier such as an employee id.
func ParseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidRequest(name+" must be a positive integer", map[string]any{name: raw})
	}
	return id, nil
}
