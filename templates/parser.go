// Package templates turns template source files into email templates.
//
// A template file is plain text: the first line is "Subject: <text>" and the
// second line is "HTML: <body>", where the body may be base64 encoded.
package templates

import (
	"errors"
	"fmt"
	"strings"

	"autophish/models"
	"autophish/utils"
)

const (
	subjectPrefix = "Subject:"
	htmlPrefix    = "HTML:"
)

var (
	ErrMalformedContent = errors.New("malformed template content")
	ErrDecodeFailure    = errors.New("template body could not be decoded")
	// ErrSkipped signals a template that was deliberately not produced.
	ErrSkipped = errors.New("template skipped")
)

// Parser converts raw template content into a models.Template.
type Parser struct {
	// AssumeEncoded decodes every body as base64.
	AssumeEncoded bool
	// SkipAmbiguous skips plain-text bodies that also decode as base64, so an
	// encoded blob is never published as a literal body.
	SkipAmbiguous bool
}

// Parse uses the default policy of skipping ambiguous bodies.
func Parse(content string, assumeEncoded bool) (models.Template, error) {
	return Parser{AssumeEncoded: assumeEncoded, SkipAmbiguous: true}.Parse(content)
}

func (p Parser) Parse(content string) (models.Template, error) {
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return models.Template{}, fmt.Errorf("%w: expected subject and html lines, got %d", ErrMalformedContent, len(lines))
	}

	subject, err := field(lines[0], subjectPrefix)
	if err != nil {
		return models.Template{}, err
	}
	if subject == "" {
		return models.Template{}, fmt.Errorf("%w: empty subject", ErrMalformedContent)
	}
	body, err := field(lines[1], htmlPrefix)
	if err != nil {
		return models.Template{}, err
	}

	switch {
	case p.AssumeEncoded:
		decoded, err := utils.Decode(body)
		if err != nil {
			return models.Template{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
		}
		body = decoded
	case p.SkipAmbiguous && utils.LooksEncoded(body):
		return models.Template{}, fmt.Errorf("%w: body of %q looks base64 encoded but template.is_base64 is false", ErrSkipped, subject)
	}

	return models.Template{
		Name:    subject,
		Subject: subject,
		HTML:    body,
	}, nil
}

func field(line, prefix string) (string, error) {
	line = strings.TrimSuffix(line, "\r")
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), prefix)
	if !ok {
		return "", fmt.Errorf("%w: line does not start with %q", ErrMalformedContent, prefix)
	}
	return strings.TrimSpace(rest), nil
}
