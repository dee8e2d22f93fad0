package util

import (
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

var addressRegexp = regexp.MustCompile(`^0[xX][0-9a-fA-F]{40}$`)

// IsAddress checks the '0x' + 40 hex digits form. Letter casing is not validated
func IsAddress(s string) bool {
	return addressRegexp.MatchString(strings.TrimSpace(s))
}

// NormalizeAddress returns canonical lower-case form used for all comparisons
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// ChecksumAddress returns mixed-case (EIP-55) display form of the address.
// Strings which are not addresses are returned as is
func ChecksumAddress(s string) string {
	if !IsAddress(s) {
		return s
	}
	lower := NormalizeAddress(s)[2:]
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	ret := make([]byte, 0, 42)
	ret = append(ret, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			c -= 'a' - 'A'
		}
		ret = append(ret, c)
	}
	return string(ret)
}

// ShortAddress is used in log lines
func ShortAddress(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + ".." + s[len(s)-4:]
}
