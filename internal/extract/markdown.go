package extract

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	fenceLine    = regexp.MustCompile("(?m)^[ \\t]*(```|~~~).*$")
	inlineCode   = regexp.MustCompile("`([^`\n]+)`")
	images       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	headings     = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`)
	closingHash  = regexp.MustCompile(`(?m)[ \t]+#+[ \t]*$`)
	blockquotes  = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	rules        = regexp.MustCompile(`(?m)^[ \t]*([-*_])([ \t]*[-*_]){2,}[ \t]*$`)
	bullets      = regexp.MustCompile(`(?m)^([ \t]*)[-*+][ \t]+`)
	numbered     = regexp.MustCompile(`(?m)^([ \t]*)\d+[.)][ \t]+`)
	strongStars  = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	strongUnders = regexp.MustCompile(`__([^_\n]+)__`)
	emStars      = regexp.MustCompile(`\*([^*\n]+)\*`)
	emUnders     = regexp.MustCompile(`(^|[^\p{L}\p{N}_])_([^_\n]+)_($|[^\p{L}\p{N}_])`)
	htmlTags     = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// ExtractMarkdown reads a Markdown or plain text file and strips the markup.
func ExtractMarkdown(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read markdown failed: %w", err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("markdown is not valid UTF-8")
	}
	return StripMarkdown(string(b)), nil
}

// StripMarkdown converts Markdown to plain text. Code block contents are kept,
// only the fences go.
func StripMarkdown(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = fenceLine.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "$1")
	content = links.ReplaceAllString(content, "$1")
	content = headings.ReplaceAllString(content, "")
	content = closingHash.ReplaceAllString(content, "")
	content = blockquotes.ReplaceAllString(content, "")
	content = rules.ReplaceAllString(content, "")
	content = bullets.ReplaceAllString(content, "$1")
	content = numbered.ReplaceAllString(content, "$1")
	content = strongStars.ReplaceAllString(content, "$1")
	content = strongUnders.ReplaceAllString(content, "$1")
	content = emStars.ReplaceAllString(content, "$1")
	content = emUnders.ReplaceAllString(content, "$1$2$3")
	content = htmlTags.ReplaceAllString(content, "")
	content = blankRuns.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
