package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("hello"))
	assert.Error(t, ValidateMessageContent(""))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", 100001)))
	assert.Error(t, ValidateMessageContent("\xff\xfe"))
}

func TestValidateCollectionID(t *testing.T) {
	assert.NoError(t, ValidateCollectionID("0190cafe-0000-7000-8000-000000000000"))
	assert.Error(t, ValidateCollectionID("not-a-uuid"))
	assert.Error(t, ValidateCollectionID(""))
}
