package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrDecode is returned when a payload is not valid base64 text.
var ErrDecode = errors.New("invalid base64 payload")

// Decode reverses standard base64 and requires the result to be UTF-8 text.
func Decode(payload string) (string, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: decoded bytes are not utf-8", ErrDecode)
	}
	return string(raw), nil
}

func Encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

// LooksEncoded reports whether payload strictly decodes as base64 text.
// Short alphanumeric strings produce false positives; treat the answer as
// a hint only.
func LooksEncoded(payload string) bool {
	if strings.TrimSpace(payload) == "" {
		return false
	}
	_, err := Decode(payload)
	return err == nil
}
