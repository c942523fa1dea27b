package users

import (
	"github.com/adminory/adminory/internal/auth"
	"github.com/adminory/adminory/internal/shared"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// ListFilter narrows the principal listing.
type ListFilter struct {
	Page   int
	Limit  int
	Search string
}

func (f ListFilter) normalized() ListFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f
}

// Page is one page of principals.
type Page struct {
	Items      []auth.User       `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}
