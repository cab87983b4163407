package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sakif/service-review/internal/apperror"
)

// Validation constants.
const (
	MinRating         = 1
	MaxRating         = 5
	MaxTitleLength    = 120
	MaxReviewLength   = 2000
	MaxDescriptionLen = 5000
)

// ServiceForm is the "Add Service" form. Owner and AddedDate are not part of
// the form; the editor fills them in from the session.
type ServiceForm struct {
	Title       string
	Company     string
	Website     string
	Description string
	Category    string
	Price       float64
	ImageURL    string
}

// Validate checks every field and returns all failures joined, so a caller
// can report them together. errors.Is(err, apperror.ErrValidation) holds for
// the result.
func (f ServiceForm) Validate() error {
	var errs []error
	errs = append(errs, requireText("title", f.Title, MaxTitleLength))
	errs = append(errs, requireText("company", f.Company, MaxTitleLength))
	errs = append(errs, requireText("description", f.Description, MaxDescriptionLen))
	errs = append(errs, checkCategory(f.Category))
	errs = append(errs, checkPrice(f.Price))
	errs = append(errs, checkURL("imageUrl", f.ImageURL, true))
	errs = append(errs, checkURL("website", f.Website, false))
	return errors.Join(errs...)
}

// Service builds the payload for POST /api/services.
func (f ServiceForm) Service() Service {
	return Service{
		Title:       strings.TrimSpace(f.Title),
		Company:     strings.TrimSpace(f.Company),
		Website:     strings.TrimSpace(f.Website),
		Description: strings.TrimSpace(f.Description),
		Category:    f.Category,
		Price:       f.Price,
		ImageURL:    strings.TrimSpace(f.ImageURL),
	}
}

// ServicePatch carries only the fields the user changed. Nil fields are left
// out of the PATCH body so the server keeps its values.
type ServicePatch struct {
	Title       *string  `json:"title,omitempty"`
	Company     *string  `json:"company,omitempty"`
	Website     *string  `json:"website,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	ImageURL    *string  `json:"imageUrl,omitempty"`
}

// IsEmpty reports whether no field is set.
func (p ServicePatch) IsEmpty() bool {
	return p.Title == nil && p.Company == nil && p.Website == nil &&
		p.Description == nil && p.Category == nil && p.Price == nil && p.ImageURL == nil
}

func (p ServicePatch) Validate() error {
	if p.IsEmpty() {
		return apperror.ValidationFailed("", "nothing to update")
	}
	var errs []error
	if p.Title != nil {
		errs = append(errs, requireText("title", *p.Title, MaxTitleLength))
	}
	if p.Company != nil {
		errs = append(errs, requireText("company", *p.Company, MaxTitleLength))
	}
	if p.Description != nil {
		errs = append(errs, requireText("description", *p.Description, MaxDescriptionLen))
	}
	if p.Category != nil {
		errs = append(errs, checkCategory(*p.Category))
	}
	if p.Price != nil {
		errs = append(errs, checkPrice(*p.Price))
	}
	if p.ImageURL != nil {
		errs = append(errs, checkURL("imageUrl", *p.ImageURL, true))
	}
	if p.Website != nil {
		errs = append(errs, checkURL("website", *p.Website, false))
	}
	return errors.Join(errs...)
}

// ReviewForm is the "Add Your Review" form.
type ReviewForm struct {
	Rating int
	Text   string
}

func (f ReviewForm) Validate() error {
	return errors.Join(
		checkRating(f.Rating),
		requireText("reviewText", f.Text, MaxReviewLength),
	)
}

// ReviewPatch is the "Update Review" form.
type ReviewPatch struct {
	Rating     *int    `json:"rating,omitempty"`
	ReviewText *string `json:"reviewText,omitempty"`
}

func (p ReviewPatch) Validate() error {
	if p.Rating == nil && p.ReviewText == nil {
		return apperror.ValidationFailed("", "nothing to update")
	}
	var errs []error
	if p.Rating != nil {
		errs = append(errs, checkRating(*p.Rating))
	}
	if p.ReviewText != nil {
		errs = append(errs, requireText("reviewText", *p.ReviewText, MaxReviewLength))
	}
	return errors.Join(errs...)
}

func requireText(field, value string, max int) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return apperror.ValidationFailed(field, fmt.Sprintf("%s is required", field))
	}
	if len(value) > max {
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be %d characters or less", field, max))
	}
	return nil
}

func checkCategory(c string) error {
	if !IsCategory(c) {
		return apperror.ValidationFailed("category",
			fmt.Sprintf("category must be one of %s", strings.Join(Categories, ", ")))
	}
	return nil
}

func checkPrice(p float64) error {
	if p < 0 {
		return apperror.ValidationFailed("price", "price must not be negative")
	}
	return nil
}

func checkRating(r int) error {
	if r == 0 {
		return apperror.ValidationFailed("rating", "please select a rating")
	}
	if r < MinRating || r > MaxRating {
		return apperror.ValidationFailed("rating",
			fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating))
	}
	return nil
}

func checkURL(field, raw string, required bool) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return apperror.ValidationFailed(field, fmt.Sprintf("%s is required", field))
		}
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be an http(s) URL", field))
	}
	return nil
}
