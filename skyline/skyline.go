// skyline/skyline.go
package skyline

// Record carries the four ranking objectives for one property.
// A nil YearBuilt ranks below any real year.
type Record struct {
    ID         int64
    PriceEUR   float64
    PricePerM2 float64
    Rooms      int
    YearBuilt  *int
}

// missingYear sorts below every valid construction year (1800..2100).
const missingYear = -1

func yearOf(r Record) int {
    if r.YearBuilt != nil {
        return *r.YearBuilt
    }
    return missingYear
}

// Dominates reports whether b dominates a: b is no worse than a on every
// objective (minimize price and price per m2, maximize rooms and year) and
// strictly better on at least one.
func Dominates(b, a Record) bool {
    notWorse := b.PriceEUR <= a.PriceEUR &&
        b.PricePerM2 <= a.PricePerM2 &&
        b.Rooms >= a.Rooms &&
        yearOf(b) >= yearOf(a)
    strictlyBetter := b.PriceEUR < a.PriceEUR ||
        b.PricePerM2 < a.PricePerM2 ||
        b.Rooms > a.Rooms ||
        yearOf(b) > yearOf(a)
    return notWorse && strictlyBetter
}

// Skyline returns the ids of the Pareto-optimal subset of records. The
// frontier is maintained incrementally: a new record dominated by any
// frontier member is dropped, otherwise it evicts every member it dominates
// and joins. Insertion order does not affect the resulting set; output
// order carries no meaning. Mutually non-dominating ties, including exact
// duplicates, are all retained.
func Skyline(records []Record) []int64 {
    var frontier []Record
    for _, rec := range records {
        dominated := false
        for _, p := range frontier {
            if Dominates(p, rec) {
                dominated = true
                break
            }
        }
        if dominated {
            continue
        }
        kept := frontier[:0]
        for _, p := range frontier {
            if !Dominates(rec, p) {
                kept = append(kept, p)
            }
        }
        frontier = append(kept, rec)
    }

    ids := make([]int64, 0, len(frontier))
    for _, r := range frontier {
        ids = append(ids, r.ID)
    }
    return ids
}
