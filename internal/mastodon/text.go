package mastodon

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var handlePattern = regexp.MustCompile(`(^|\s)@[\w.\-]+(@[\w.\-]+)?`)

// PlainText turns status HTML into the plain search request: paragraph and
// line breaks become whitespace, tags are dropped, entities are decoded,
// @handles are removed and whitespace is collapsed.
func PlainText(content string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or malformed input; either way keep what was read.
			return clean(sb.String())
		case html.TextToken:
			sb.Write(z.Text())
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "p" {
				sb.WriteString(" \n\n")
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" {
				sb.WriteString(" \n")
			}
		}
	}
}

func clean(s string) string {
	s = handlePattern.ReplaceAllString(s, "$1")
	return strings.Join(strings.Fields(s), " ")
}
