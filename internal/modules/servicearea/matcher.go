// README: Service-area matching with tiered precision (exact / prefix / area).
package servicearea

import "strings"

// Area is one declared coverage region: either a letters-only district prefix
// ("MK") or an outward-code-like token ("DA5"), with a one-way travel ceiling.
type Area struct {
	Code             string
	MaxTravelMinutes int
}

type MatchType string

const (
	MatchExact  MatchType = "exact"  // outward codes equal
	MatchPrefix MatchType = "prefix" // same letters-only district
	MatchArea   MatchType = "area"   // declared letters-only code
)

// Match is the outcome of testing a location against declared areas.
type Match struct {
	CanServe         bool
	MaxTravelMinutes int
	Type             MatchType
}

// OutwardCode extracts the outward part of a UK postcode. Spaced input splits
// on the space; unspaced input is parsed as leading letters, then digits (one
// for single-letter districts, up to two otherwise), then a trailing letter
// when another digit follows it ("SW1A1AA" → "SW1A").
func OutwardCode(postcode string) string {
	s := strings.ToUpper(strings.TrimSpace(postcode))
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, ' '); i > 0 {
		return strings.Fields(s)[0]
	}

	letters := 0
	for letters < len(s) && letters < 2 && isLetter(s[letters]) {
		letters++
	}
	if letters == 0 {
		return ""
	}

	maxDigits := 1
	if letters == 2 {
		maxDigits = 2
	}
	i := letters
	digits := 0
	for i < len(s) && digits < maxDigits && isDigit(s[i]) {
		i++
		digits++
	}
	if digits == 0 {
		return ""
	}
	if i < len(s) && isLetter(s[i]) && i+1 < len(s) && isDigit(s[i+1]) {
		i++
	}
	return s[:i]
}

// AreaLetters strips digits and any trailing area letter, leaving the
// letters-only district prefix ("DA5" → "DA", "SW1A" → "SW").
func AreaLetters(outward string) string {
	for i := 0; i < len(outward); i++ {
		if isDigit(outward[i]) {
			return outward[:i]
		}
	}
	return outward
}

// MatchAreas tests a location postcode against declared areas in order; the
// first matching area wins and carries its travel ceiling.
func MatchAreas(areas []Area, postcode string) Match {
	outward := OutwardCode(postcode)
	if outward == "" {
		return Match{}
	}
	letters := AreaLetters(outward)

	for _, a := range areas {
		code := strings.ToUpper(strings.TrimSpace(a.Code))
		if code == "" {
			continue
		}
		if lettersOnly(code) {
			if code == letters {
				return Match{CanServe: true, MaxTravelMinutes: a.MaxTravelMinutes, Type: MatchArea}
			}
			continue
		}
		areaOutward := OutwardCode(code)
		if areaOutward == "" {
			continue
		}
		if areaOutward == outward {
			return Match{CanServe: true, MaxTravelMinutes: a.MaxTravelMinutes, Type: MatchExact}
		}
		if AreaLetters(areaOutward) == letters {
			return Match{CanServe: true, MaxTravelMinutes: a.MaxTravelMinutes, Type: MatchPrefix}
		}
	}
	return Match{}
}

func lettersOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isLetter(s[i]) {
			return false
		}
	}
	return len(s) > 0
}

func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
