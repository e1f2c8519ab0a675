// scraper/selectors.go
package scraper

// CSS selectors for nehnutelnosti.sk markup. The site renders MUI class
// chains, so each field carries an ordered cascade: the first selector that
// yields non-empty text wins, misses leave the field absent.
const (
    listingCardSelector = "div.MuiGrid2-root.MuiGrid2-container.MuiGrid2-direction-xs-row.mui-1qrjc3g"

    locationSelector    = "p.MuiTypography-root.MuiTypography-body2.MuiTypography-noWrap.mui-1jfsjra"
    areaSelector        = "p.MuiTypography-root.MuiTypography-body2.mui-5c21y4"
    priceSelector       = "p.MuiTypography-root.MuiTypography-h5.mui-ce5ndv"
    pricePerM2Selector  = "p.MuiTypography-root.MuiTypography-label1.mui-u7akpj"
    descriptionSelector = "p.MuiTypography-root.MuiTypography-body2.mui-ce8onx"
    sellerSelector      = "p.MuiTypography-root.MuiTypography-label1.MuiTypography-noWrap.mui-srzmk6"
    roomsSelector       = "p.MuiTypography-root.MuiTypography-body2.MuiTypography-noWrap.mui-1u9yyor"

    detailYearRowSelector = ".property-attributes li, .facts li"
)

var listingTitleSelectors = []string{
    "h2.MuiTypography-root.MuiTypography-h4.MuiTypography-noWrap.mui-ibivuk",
    "h2.MuiTypography-h4",
    "h2.MuiTypography-root",
    "h2",
    "a[href] h2",
    "a[href] h3",
}

var detailTitleSelectors = []string{
    "h1",
    "h1.MuiTypography-root",
    "h1.MuiTypography-h3",
    "h1.MuiTypography-h4",
    ".property-title",
    "[data-testid='property-title']",
    "title", // page title, trailing "| site" suffix stripped
}
