package phone

import "strings"

// Belarusian mobile operator codes accepted after the 375 country code.
var byOperators = map[string]bool{
	"25": true,
	"29": true,
	"33": true,
	"44": true,
}

// Normalize turns a user supplied phone number into E.164 form.
// Only Belarusian mobile numbers (+375 25/29/33/44 + 7 digits) and
// Russian/CIS numbers (+7 + 10 digits, "8" trunk prefix accepted) are valid.
func Normalize(raw string) (string, bool) {
	digits := onlyDigits(raw)

	if strings.HasPrefix(digits, "375") && len(digits) == 12 {
		if !byOperators[digits[3:5]] {
			return "", false
		}
		return "+375" + digits[3:], true
	}

	if strings.HasPrefix(digits, "8") && len(digits) == 11 {
		digits = "7" + digits[1:]
	}

	if strings.HasPrefix(digits, "7") && len(digits) == 11 {
		return "+" + digits, true
	}

	return "", false
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
