package customer

import "strings"

// NormalizeDigits strips everything but decimal digits from a raw phone.
func NormalizeDigits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneCandidates expands a raw phone into the digit strings it may have
// been stored under, most specific first: the full digits, the local number
// with and without the mobile ninth digit, and each local variant prefixed
// with the country code. The country code is only stripped when enough
// digits remain for a plausible subscriber number.
func PhoneCandidates(raw, countryCode string) []string {
	digits := NormalizeDigits(raw)
	if digits == "" {
		return nil
	}

	local := digits
	if countryCode != "" && strings.HasPrefix(digits, countryCode) && len(digits) >= len(countryCode)+8 {
		local = digits[len(countryCode):]
	}

	variants := []string{local}
	// Mobile numbers carry an extra leading 9 after the two-digit area code;
	// older records may hold either form.
	if len(local) == 10 {
		variants = append(variants, local[:2]+"9"+local[2:])
	}
	if len(local) == 11 && local[2] == '9' {
		variants = append(variants, local[:2]+local[3:])
	}

	out := make([]string, 0, 2*len(variants)+1)
	seen := make(map[string]struct{}, 2*len(variants)+1)
	add := func(v string) {
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(digits)
	for _, v := range variants {
		add(v)
		if countryCode != "" {
			add(countryCode + v)
		}
	}
	return out
}
