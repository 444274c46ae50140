package utils

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page request read from ?page=&limit=.
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ParsePage reads page and limit from the query. Missing or invalid values
// fall back to page 1 and DefaultPageSize; limit is capped at MaxPageSize.
func ParsePage(c *fiber.Ctx) Page {
	p := Page{
		Page:  QueryInt(c, "page", 1),
		Limit: QueryInt(c, "limit", DefaultPageSize),
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// QueryInt returns the non-negative integer query parameter key, or def
// when it is missing or malformed.
func QueryInt(c *fiber.Ctx, key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(c.Query(key))); err == nil && v >= 0 {
		return v
	}
	return def
}
