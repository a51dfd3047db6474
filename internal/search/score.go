package search

import (
	"strings"
	"unicode/utf8"
)

const (
	prefixBoost        = 2.0
	primaryFieldWeight = 1.2
)

// scoreFields ranks an entity's ordered text fields against a
// normalized query. Each field that contains the query contributes
//
//	(queryLen / max(fieldLen, queryLen)) × positionBoost × fieldWeight
//
// where positionBoost is 2 for a prefix match and fieldWeight is 1.2
// for the first field only. Lengths are in runes. A total of 0 means
// the entity does not match at all.
func scoreFields(normQuery string, fields []string) float64 {
	qLen := utf8.RuneCountInString(normQuery)
	if qLen == 0 {
		return 0
	}

	var total float64
	for i, field := range fields {
		nf := Normalize(field)
		idx := strings.Index(nf, normQuery)
		if idx < 0 {
			continue
		}

		fLen := utf8.RuneCountInString(nf)
		if fLen < qLen {
			fLen = qLen
		}
		term := float64(qLen) / float64(fLen)

		if idx == 0 {
			term *= prefixBoost
		}
		if i == 0 {
			term *= primaryFieldWeight
		}
		total += term
	}
	return total
}
