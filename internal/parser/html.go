package parser

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// parseHTML strips non-content elements, captures the page title and
// converts the remaining markup to markdown-flavoured plain text.
func (s *Service) parseHTML(html string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	body := doc.Find("body")
	var contentHTML string
	if body.Length() > 0 {
		contentHTML, err = body.Html()
	} else {
		contentHTML, err = doc.Html()
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to extract HTML content: %w", err)
	}

	mdConverter := md.NewConverter("", true, nil)
	converted, err := mdConverter.ConvertString(contentHTML)
	if err != nil {
		s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using text fallback")
		return doc.Text(), title, nil
	}

	return converted, title, nil
}
