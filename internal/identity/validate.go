package identity

import (
	"fmt"
	"strings"
)

const (
	CountryPrefix  = "+998"
	localDigits    = 9
	operatorDigits = 2
	fieldName      = "name"
	fieldContact   = "contactNumber"
	fieldLinkKey   = "linkKey"
)

// OperatorCodes are the mobile operator prefixes accepted after the country code.
var OperatorCodes = []string{"91", "90", "87", "88", "97", "33", "77"}

// NormalizeContactNumber keeps digits and a leading '+'.
func NormalizeContactNumber(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateContactNumber returns the normalized number or a field-level reason.
func ValidateContactNumber(raw string) (string, error) {
	clean := NormalizeContactNumber(raw)
	if clean == "" {
		return "", invalid(fieldContact, "contact number is required")
	}
	if !strings.HasPrefix(clean, CountryPrefix) {
		return "", invalid(fieldContact, fmt.Sprintf("contact number must start with %s", CountryPrefix))
	}
	local := clean[len(CountryPrefix):]
	if len(local) != localDigits {
		return "", invalid(fieldContact, fmt.Sprintf("contact number must have exactly %d digits after %s, got %d", localDigits, CountryPrefix, len(local)))
	}
	op := local[:operatorDigits]
	for _, code := range OperatorCodes {
		if op == code {
			return clean, nil
		}
	}
	return "", invalid(fieldContact, fmt.Sprintf("unknown operator code %s, expected one of %s", op, strings.Join(OperatorCodes, ", ")))
}

// ValidateProfile checks a guardian profile before any account exists.
func ValidateProfile(name, contactNumber string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", invalid(fieldName, "name is required")
	}
	contact, err := ValidateContactNumber(contactNumber)
	if err != nil {
		return "", "", err
	}
	return name, contact, nil
}
