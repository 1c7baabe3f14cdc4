// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

// Package pagination implements page-based navigation for Taskora's list
// endpoints.
//
// # Overview
//
// Every collection the API serves (roles, members, active sessions) accepts
// the same "page" and "limit" query parameters and reports the same metadata
// block in the response envelope, so clients can page through a role catalogue
// the same way they page through a member directory.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	// DefaultLimit is the page size used when the client does not ask for one.
	DefaultLimit = 20
	// MaxLimit caps the page size; listing an entire tenant's membership in
	// one request is not supported.
	MaxLimit = 100
	// DefaultPage is the first page (pages are 1-indexed).
	DefaultPage = 1
)

// Params holds the page and limit parsed from a request's query string.
type Params struct {
	Page  int
	Limit int
}

// Offset returns the SQL OFFSET matching the requested page.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Meta is the pagination block included alongside list payloads.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewMeta builds the metadata for one page of a listing, deriving TotalPages
// from the total row count and the page size.
func NewMeta(page, limit, total int) Meta {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return Meta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// FromRequest parses "page" and "limit" from the request query string, e.g.
// GET /api/v1/users?page=2&limit=50.
//
// # Clamping
//
// Missing, malformed, or out-of-range values fall back to [DefaultPage] and
// [DefaultLimit]; limits above [MaxLimit] are rejected the same way rather
// than silently truncated.
func FromRequest(r *http.Request) Params {
	page := queryInt(r, "page", DefaultPage)
	limit := queryInt(r, "limit", DefaultLimit)

	if page < 1 {
		page = DefaultPage
	}

	if limit < 1 || limit > MaxLimit {
		limit = DefaultLimit
	}

	return Params{Page: page, Limit: limit}
}

// queryInt reads one integer query parameter, falling back on absence or junk.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return n
}
