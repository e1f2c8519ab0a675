// scraper/extract.go
package scraper

import (
    "crypto/md5"
    "encoding/hex"
    "regexp"
    "strconv"
    "strings"
)

var (
    // Digit run interleaved with separators (spaces, NBSP, narrow NBSP,
    // commas, dots).
    numberPattern = regexp.MustCompile(`[0-9]+(?:[\s\x{00A0}\x{202F},.][0-9]+)*`)
    // Decimal separator candidates: 1-2 trailing digits. Three trailing
    // digits mean a thousands group.
    commaDecimalPattern = regexp.MustCompile(`,(\d{1,2})$`)
    dotDecimalPattern   = regexp.MustCompile(`\.(\d{1,2})$`)

    inzeratIDPattern  = regexp.MustCompile(`/inzerat/(\d+)/?`)
    detailIDPattern   = regexp.MustCompile(`/detail/([A-Za-z0-9_-]+)/?`)
    trailingIDPattern = regexp.MustCompile(`/(\d+)/?$`)

    roomsPattern = regexp.MustCompile(`(?i)(\d+)[\s-]*(?:izbový|izby|izb|izba)`)
)

const maxExternalIDLen = 100

const spaceSeparators = " \u00a0\u202f"

// ExtractNumber finds the first number in free text and parses it,
// disambiguating decimal from thousands separators. A comma is the decimal
// separator when followed by exactly 1-2 trailing digits and the number
// either contains spaces or exactly one comma; a trailing dot with 1-2
// digits wins over the comma rule. Everything else is a thousands
// separator and is stripped.
func ExtractNumber(text string) (float64, bool) {
    s := numberPattern.FindString(text)
    if s == "" {
        return 0, false
    }

    hasSpaces := strings.ContainsAny(s, spaceSeparators)
    commaDecimal := commaDecimalPattern.MatchString(s) &&
        (hasSpaces || strings.Count(s, ",") == 1)
    dotDecimal := dotDecimalPattern.MatchString(s)

    switch {
    case commaDecimal && !dotDecimal:
        s = stripSpaceSeparators(s)
        s = strings.ReplaceAll(s, ",", ".")
    case dotDecimal:
        s = stripSpaceSeparators(s)
        s = strings.ReplaceAll(s, ",", "")
        if strings.Count(s, ".") > 1 {
            // Only the last dot is the decimal point.
            last := strings.LastIndex(s, ".")
            s = strings.ReplaceAll(s[:last], ".", "") + s[last:]
        }
    default:
        s = stripSpaceSeparators(s)
        s = strings.ReplaceAll(s, ",", "")
        s = strings.ReplaceAll(s, ".", "")
    }

    v, err := strconv.ParseFloat(s, 64)
    if err != nil {
        return 0, false
    }
    return v, true
}

func stripSpaceSeparators(s string) string {
    for _, sep := range spaceSeparators {
        s = strings.ReplaceAll(s, string(sep), "")
    }
    return s
}

// ExtractListingID derives a stable external id from a listing URL. It
// tries the numeric /inzerat/ segment, the alphanumeric /detail/ segment
// (truncated to 100 chars), then a trailing numeric path segment, and
// finally falls back to an md5 hash of the whole URL, so it never fails.
func ExtractListingID(url string) string {
    if m := inzeratIDPattern.FindStringSubmatch(url); m != nil {
        return m[1]
    }
    if m := detailIDPattern.FindStringSubmatch(url); m != nil {
        id := m[1]
        if len(id) > maxExternalIDLen {
            id = id[:maxExternalIDLen]
        }
        return id
    }
    if m := trailingIDPattern.FindStringSubmatch(url); m != nil {
        return m[1]
    }
    sum := md5.Sum([]byte(url))
    return hex.EncodeToString(sum[:])
}

// ExtractRooms reads a room count out of text like "3 izbový byt" or
// "4-izbový byt". A studio ("garzónka") counts as 0 rooms. The second
// return is false when no room count is present.
func ExtractRooms(text string) (int, bool) {
    if text == "" {
        return 0, false
    }
    if strings.Contains(strings.ToLower(text), "garzónka") {
        return 0, true
    }
    if m := roomsPattern.FindStringSubmatch(text); m != nil {
        if n, err := strconv.Atoi(m[1]); err == nil {
            return n, true
        }
    }
    return 0, false
}

// ExtractYearBuilt accepts a detail-page text fragment and returns a
// construction year when the fragment mentions "rok", contains a digit and
// the extracted number is strictly between 1800 and 2100.
func ExtractYearBuilt(text string) (int, bool) {
    if !strings.Contains(strings.ToLower(text), "rok") {
        return 0, false
    }
    if !strings.ContainsAny(text, "0123456789") {
        return 0, false
    }
    v, ok := ExtractNumber(text)
    if !ok {
        return 0, false
    }
    year := int(v)
    if year <= 1800 || year >= 2100 {
        return 0, false
    }
    return year, true
}
