package models

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode"
)

var namePunctuation = strings.NewReplacer(
	".", "", ",", "", "!", "", "?", "", ":", "", ";", "",
	"\"", "", "'", "", "(", "", ")", "", "-", "", "–", "", "—", "",
	"ё", "е",
)

// NormalizeName lower-cases a display name, drops punctuation, folds ё to е
// and collapses whitespace.
func NormalizeName(name string) string {
	s := namePunctuation.Replace(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// PlayerKey derives the stable lifetime-stats identity of a player.
// An external account id wins over the display name.
func PlayerKey(externalID, name string) string {
	if externalID != "" {
		return "ext:" + externalID
	}
	sum := sha1.Sum([]byte(NormalizeName(name)))
	return "name:" + hex.EncodeToString(sum[:])
}
