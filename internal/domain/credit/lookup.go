package credit

import (
	"strings"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/ttacon/libphonenumber"
)

// LookupKey derives the account key of a customer. Phone numbers are
// normalized to E.164 using defaultRegion for national formats so that
// "010-1234-5678" and "+82 10 1234 5678" resolve to the same account.
func LookupKey(c Customer, defaultRegion string) (key string, phone string, err error) {
	raw := strings.TrimSpace(c.Phone)
	if raw != "" {
		num, parseErr := libphonenumber.Parse(raw, defaultRegion)
		if parseErr == nil {
			phone = libphonenumber.Format(num, libphonenumber.E164)
			return "phone:" + phone, phone, nil
		}
		digits := digitsOnly(raw)
		if digits != "" {
			return "phone:" + digits, digits, nil
		}
	}

	name := strings.ToLower(strings.Join(strings.Fields(c.Name), " "))
	if name == "" {
		return "", "", shared.ValidationError{Field: "customer", Message: "phone or name is required"}
	}
	return "name:" + name, "", nil
}

// IsValidPhone reports whether raw is a valid number for defaultRegion
func IsValidPhone(raw, defaultRegion string) bool {
	num, err := libphonenumber.Parse(raw, defaultRegion)
	if err != nil {
		return false
	}
	return libphonenumber.IsValidNumber(num)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
