package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("alice@example.com"))
	assert.True(t, ValidateEmail(" bob.smith+tag@mail.example.org "))
	assert.False(t, ValidateEmail("alice@"))
	assert.False(t, ValidateEmail("no-at-sign.example.com"))
	assert.False(t, ValidateEmail(""))
}

func TestMaskEmail(t *testing.T) {
	tests := map[string]string{
		"alice@example.com": "a***e@example.com",
		"ab@example.com":    "ab@example.com",
		"smtp-user":         "s***r",
		"x":                 "***",
		"":                  "***",
	}
	for in, want := range tests {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}
