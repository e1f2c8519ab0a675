// scraper/parse.go
package scraper

import (
    "net/url"
    "strings"

    "github.com/PuerkitoBio/goquery"

    "optihome/models"
)

// baseOrigin resolves relative listing links.
const baseOrigin = "https://www.nehnutelnosti.sk"

// ParseListings turns one result-page HTML document into raw listing
// records. A card needs a navigable link and a resolvable id; everything
// else is best effort. Malformed or empty HTML yields an empty slice, never
// an error.
func ParseListings(html string) []models.RawListing {
    doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
    if err != nil {
        return nil
    }

    var items []models.RawListing
    doc.Find(listingCardSelector).Each(func(_ int, card *goquery.Selection) {
        href, ok := card.Find("a").First().Attr("href")
        if !ok || href == "" {
            return
        }
        absURL := makeAbsoluteURL(baseOrigin, href)
        if absURL == "" {
            return
        }
        externalID := ExtractListingID(absURL)
        if externalID == "" {
            return
        }

        item := models.RawListing{
            ExternalID: externalID,
            URL:        absURL,
        }
        item.Title = firstText(card, listingTitleSelectors)
        item.Location = selectionText(card, locationSelector)

        if v, ok := ExtractNumber(selectionText(card, areaSelector)); ok {
            item.AreaM2 = &v
        }
        if priceText := selectionText(card, priceSelector); containsDigit(priceText) {
            if v, ok := ExtractNumber(priceText); ok {
                item.PriceEUR = &v
            }
        }
        if v, ok := ExtractNumber(selectionText(card, pricePerM2Selector)); ok {
            item.PricePerM2 = &v
        }
        if n, ok := ExtractRooms(selectionText(card, roomsSelector)); ok {
            item.Rooms = &n
        }
        item.Description = selectionText(card, descriptionSelector)
        item.Seller = selectionText(card, sellerSelector)

        items = append(items, item)
    })
    return items
}

// ParseDetailYear scans attribute rows of a detail page for a construction
// year. The first acceptable match wins; nil when none is found.
func ParseDetailYear(html string) *int {
    doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
    if err != nil {
        return nil
    }

    var year *int
    doc.Find(detailYearRowSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
        text := strings.Join(strings.Fields(row.Text()), " ")
        if y, ok := ExtractYearBuilt(text); ok {
            year = &y
            return false
        }
        return true
    })
    return year
}

// ParseDetailTitle extracts a fallback title from a detail page, trying
// heading candidates first and the page <title> last, with any trailing
// pipe-delimited site name stripped.
func ParseDetailTitle(html string) string {
    doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
    if err != nil {
        return ""
    }

    for _, sel := range detailTitleSelectors {
        title := strings.TrimSpace(doc.Find(sel).First().Text())
        if title == "" {
            continue
        }
        if sel == "title" {
            title = strings.TrimSpace(strings.SplitN(title, "|", 2)[0])
        }
        if title != "" {
            return title
        }
    }
    return ""
}

// firstText returns the first non-empty text match of an ordered selector
// cascade.
func firstText(s *goquery.Selection, selectors []string) string {
    for _, sel := range selectors {
        if text := strings.TrimSpace(s.Find(sel).First().Text()); text != "" {
            return text
        }
    }
    return ""
}

func selectionText(s *goquery.Selection, selector string) string {
    return strings.TrimSpace(s.Find(selector).First().Text())
}

func containsDigit(s string) bool {
    return strings.ContainsAny(s, "0123456789")
}

func makeAbsoluteURL(baseURL, href string) string {
    base, err := url.Parse(baseURL)
    if err != nil {
        return ""
    }
    link, err := url.Parse(href)
    if err != nil {
        return ""
    }
    return base.ResolveReference(link).String()
}
