package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type (
	User struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	Category struct {
		ID        string `json:"id"`
		UserID    string `json:"-"`
		Name      string `json:"name"`
		Color     string `json:"color"`
		SortOrder int    `json:"sortOrder"`
	}

	// Expense references its category by ID. An empty CategoryID, or one that
	// no longer resolves, is shown as uncategorized.
	Expense struct {
		ID         string `json:"id"`
		UserID     string `json:"-"`
		Amount     Money  `json:"amount"`
		Memo       string `json:"memo"`
		CategoryID string `json:"categoryId"`
		Date       Date   `json:"date"`
		SortOrder  int    `json:"sortOrder"`
	}

	// Budget is unique per (user, category, month).
	Budget struct {
		ID         string    `json:"id"`
		UserID     string    `json:"-"`
		CategoryID string    `json:"categoryId"`
		Month      YearMonth `json:"month"`
		Amount     Money     `json:"amount"`
		SortOrder  int       `json:"sortOrder"`
	}
)

const (
	maxNameLength = 50
	maxMemoLength = 500
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidColor       = errors.New("invalid color")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long")
	ErrMemoTooLong        = errors.New("memo too long")
	ErrEmptyCategory      = errors.New("empty category")
	ErrDuplicateCategory  = errors.New("duplicate category")
	ErrCategoryNotFound   = errors.New("category not found")
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrNegativeSortOrder  = errors.New("negative sort order")
	ErrMissingCredentials = errors.New("name, email and password are required")
)

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidationError marks input that was rejected before any write.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return NewValidationError("name", ErrEmptyName)
	}
	if len([]rune(name)) > maxNameLength {
		return NewValidationError("name", ErrNameTooLong)
	}
	if c.Color != "" && !colorPattern.MatchString(c.Color) {
		return NewValidationError("color", ErrInvalidColor)
	}
	if c.SortOrder < 0 {
		return NewValidationError("sortOrder", ErrNegativeSortOrder)
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return NewValidationError("date", err)
	}
	if err := e.Amount.Validate(); err != nil {
		return NewValidationError("amount", err)
	}
	if len([]rune(e.Memo)) > maxMemoLength {
		return NewValidationError("memo", ErrMemoTooLong)
	}
	if e.SortOrder < 0 {
		return NewValidationError("sortOrder", ErrNegativeSortOrder)
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.CategoryID) == "" {
		return NewValidationError("categoryId", ErrEmptyCategory)
	}
	if err := b.Month.Validate(); err != nil {
		return NewValidationError("month", err)
	}
	if err := b.Amount.Validate(); err != nil {
		return NewValidationError("amount", err)
	}
	if b.SortOrder < 0 {
		return NewValidationError("sortOrder", ErrNegativeSortOrder)
	}
	return nil
}

// NormalizeColor lower-cases a color and expands the #rgb shorthand.
func NormalizeColor(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if len(c) == 4 && strings.HasPrefix(c, "#") {
		return "#" + strings.Repeat(c[1:2], 2) + strings.Repeat(c[2:3], 2) + strings.Repeat(c[3:4], 2)
	}
	return c
}
