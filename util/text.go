package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims and converts user entered text to NFC, so equal texts have equal bytes on the ledger
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
