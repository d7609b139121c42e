package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageContent validates the text of a chat message.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("message cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateCollectionID validates a collection ID.
func ValidateCollectionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid collection ID format")
	}
	return nil
}
