// Package render turns node content into presentation formats.
package render

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	appErr "github.com/outline-studio/engine/pkg/errors"
)

// md keeps goldmark's default of escaping raw HTML in node content.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// ToHTML renders markdown node content as an HTML fragment.
func ToHTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "render markdown failed")
	}
	return buf.String(), nil
}
