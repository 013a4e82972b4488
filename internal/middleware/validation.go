package middleware

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxMessageRunes = 4000
	maxProductID    = 64
	maxFilterRunes  = 200
)

// ValidateMessageContent validates chat message content.
func ValidateMessageContent(content string) error {
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxMessageRunes {
		return errors.New("content exceeds maximum length")
	}
	return nil
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateProductID validates a catalog product ID.
func ValidateProductID(id string) error {
	if id == "" {
		return errors.New("product ID cannot be empty")
	}
	if len(id) > maxProductID {
		return errors.New("product ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("product ID must be valid UTF-8")
	}
	return nil
}

// ValidateFilter validates a category or search query parameter.
func ValidateFilter(name, value string) error {
	if !utf8.ValidString(value) {
		return errors.New(name + " must be valid UTF-8")
	}
	if utf8.RuneCountInString(value) > maxFilterRunes {
		return errors.New(name + " exceeds maximum length")
	}
	return nil
}

// ParseLimit parses an optional positive limit, capped at max.
func ParseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}
