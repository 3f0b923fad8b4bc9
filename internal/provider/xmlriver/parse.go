package xmlriver

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/serp-rank-tracker/internal/provider"
	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// ParseResults extracts organic results from an XMLRiver response:
//
//	<results><grouping>
//	  <group><doc><url>...</url><title>...</title></doc></group>
//	</grouping></results>
//
// An <error code="N"> element anywhere in the document discards all results.
func ParseResults(body []byte) ([]tracker.ResultItem, *provider.ProviderError) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil
	}
	if errNode := xmlquery.FindOne(doc, "//error[@code]"); errNode != nil {
		return nil, &provider.ProviderError{
			Code:    errNode.SelectAttr("code"),
			Message: strings.TrimSpace(errNode.InnerText()),
		}
	}

	groups := xmlquery.Find(doc, "//results//group")
	if len(groups) == 0 {
		groups = xmlquery.Find(doc, "//group")
	}

	items := make([]tracker.ResultItem, 0, len(groups))
	for _, group := range groups {
		urlNode := xmlquery.FindOne(group, ".//url")
		if urlNode == nil {
			continue
		}
		link := strings.TrimSpace(urlNode.InnerText())
		if link == "" {
			continue
		}
		position := len(items) + 1
		title := ""
		if titleNode := xmlquery.FindOne(group, ".//title"); titleNode != nil {
			title = strings.Join(strings.Fields(titleNode.InnerText()), " ")
		}
		if title == "" {
			title = fmt.Sprintf("Result %d", position)
		}
		items = append(items, tracker.ResultItem{Title: title, URL: link, Position: position})
	}
	return items, nil
}
