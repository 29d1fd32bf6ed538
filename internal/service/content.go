package service

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"guide_sync/internal/domain"
)

const excerptWords = 55

// BuildBody assembles a guide body from the article's description and
// resolution. The HTML variant of each section wins over the plain one.
func BuildBody(d *domain.ArticleDetail) string {
	var sb strings.Builder
	if section := sectionHTML(d.DescriptionHTML, d.Description); section != "" {
		sb.WriteString(`<div class="guide-description">`)
		sb.WriteString(section)
		sb.WriteString(`</div>`)
	}
	if section := sectionHTML(d.ResolutionHTML, d.Resolution); section != "" {
		sb.WriteString(`<div class="guide-resolution">`)
		sb.WriteString(section)
		sb.WriteString(`</div>`)
	}
	return sb.String()
}

func sectionHTML(htmlText, plain string) string {
	if strings.TrimSpace(htmlText) != "" {
		return htmlText
	}
	if strings.TrimSpace(plain) == "" {
		return ""
	}
	escaped := html.EscapeString(strings.ReplaceAll(plain, "\r\n", "\n"))
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

// Excerpt returns the first words of the body's text content.
func Excerpt(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var parts []string
	collectText(doc.Selection, &parts)

	words := strings.Fields(strings.Join(parts, " "))
	if len(words) <= excerptWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:excerptWords], " ") + "..."
}

// collectText gathers text nodes separately so block boundaries always
// split words.
func collectText(sel *goquery.Selection, parts *[]string) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			*parts = append(*parts, c.Text())
		case "script", "style":
		default:
			collectText(c, parts)
		}
	})
}
