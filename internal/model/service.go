package model

import (
	"net/url"
	"time"
)

// Service categories. The set is fixed; the backend rejects anything else.
const (
	CategoryIT         = "IT"
	CategoryFood       = "Food"
	CategoryTransport  = "Transport"
	CategoryHealthcare = "Healthcare"
	CategoryEducation  = "Education"
	CategoryFinance    = "Finance"

	// CategoryAll is the filter value meaning "no category filter".
	CategoryAll = "all"
)

// Categories lists the valid service categories in display order.
var Categories = []string{
	CategoryIT,
	CategoryFood,
	CategoryTransport,
	CategoryHealthcare,
	CategoryEducation,
	CategoryFinance,
}

// IsCategory reports whether c is one of Categories.
func IsCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Service is a listed service. Rating and ReviewCount are computed by the
// server and are never sent back.
type Service struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Website     string    `json:"website,omitempty"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"imageUrl"`
	UserEmail   string    `json:"userEmail"`
	AddedDate   time.Time `json:"addedDate"`
	Rating      float64   `json:"rating,omitempty"`
	ReviewCount int       `json:"reviewCount,omitempty"`
}

// ServiceFilter is the ephemeral search box + category selector state.
type ServiceFilter struct {
	Search   string
	Category string
}

// Query encodes the filter as the backend expects it: empty search and the
// "all" category are omitted rather than sent.
func (f ServiceFilter) Query() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Category != "" && f.Category != CategoryAll {
		q.Set("category", f.Category)
	}
	return q
}
