package identity

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/agnivade/levenshtein"
)

// LinkKeyLength is the fixed size of a device link key.
const LinkKeyLength = 6

const linkKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateLinkKey returns a random key. Keys have no central registry, so collisions are
// possible and accepted.
func GenerateLinkKey() (string, error) {
	key := make([]byte, LinkKeyLength)
	for i := range key {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(linkKeyAlphabet))))
		if err != nil {
			return "", err
		}
		key[i] = linkKeyAlphabet[num.Int64()]
	}
	return string(key), nil
}

// NormalizeLinkKey trims and upper-cases key and checks its format.
func NormalizeLinkKey(key string) (string, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if len(key) != LinkKeyLength {
		return "", invalid(fieldLinkKey, "link key must be exactly 6 characters")
	}
	for _, r := range key {
		if !strings.ContainsRune(linkKeyAlphabet, r) {
			return "", invalid(fieldLinkKey, "link key may only contain letters and digits")
		}
	}
	return key, nil
}

// similarKeys returns the dependents whose key is identical or one edit away from key.
func similarKeys(deps []Dependent, key string) []Dependent {
	var out []Dependent
	for _, d := range deps {
		if levenshtein.ComputeDistance(d.LinkKey, key) <= 1 {
			out = append(out, d)
		}
	}
	return out
}
