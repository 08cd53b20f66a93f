package gloss

import (
	"regexp"
	"strconv"
	"strings"
)

const separators = ",.!?;:()[]{}\"'\n\t"

var digitGroup = regexp.MustCompile(`(\d),(\d)`)

// Tokenize splits text on whitespace and punctuation. Thousands separators
// inside digit runs ("1,234") are kept together.
func Tokenize(text string) []string {
	for digitGroup.MatchString(text) {
		text = digitGroup.ReplaceAllString(text, "$1$2")
	}
	text = strings.Map(func(r rune) rune {
		if strings.ContainsRune(separators, r) {
			return ' '
		}
		return r
	}, text)
	return strings.Fields(text)
}

var timeUnits = []struct {
	suffix string
	symbol string
}{
	{"시", "HOUR"},
	{"분", "MINUTE"},
	{"년", "YEAR"},
	{"월", "MONTH"},
	{"일", "DAY"},
}

var fixedTokens = map[string]string{
	"오전": "AM", "AM": "AM", "am": "AM", "a.m.": "AM",
	"오후": "PM", "PM": "PM", "pm": "PM", "p.m.": "PM",
	"오늘": "TODAY",
	"내일": "TOMORROW",
	"모레": "DAY_AFTER_TOMORROW",
	"어제": "YESTERDAY",
}

// normalizeToken expands date/time and number tokens into symbols.
// ok is false when the token is not a normalization target.
func normalizeToken(tok string) (symbols []string, ok bool) {
	for _, u := range timeUnits {
		if n, found := strings.CutSuffix(tok, u.suffix); found && isDigits(n) {
			return []string{"NUM_" + trimZeros(n), u.symbol}, true
		}
	}
	if sym, found := fixedTokens[tok]; found {
		return []string{sym}, true
	}
	if isDigits(tok) {
		return []string{"NUM_" + trimZeros(tok)}, true
	}
	if n, found := parseSinoKorean(tok); found {
		return []string{"NUM_" + strconv.Itoa(n)}, true
	}
	return nil, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}

var sinoDigits = map[rune]int{
	'일': 1, '이': 2, '삼': 3, '사': 4, '오': 5,
	'육': 6, '칠': 7, '팔': 8, '구': 9,
}

var sinoUnits = map[rune]int{'십': 10, '백': 100, '천': 1000}

// parseSinoKorean reads Sino-Korean numerals such as 이십오 (25) or
// 삼천오백 (3500). Bare digit words (오, 이) are ambiguous with ordinary
// words and are only accepted together with a unit.
func parseSinoKorean(s string) (int, bool) {
	total, section, digit := 0, 0, 0
	hasUnit := false
	for _, r := range s {
		if d, ok := sinoDigits[r]; ok {
			if digit != 0 {
				return 0, false
			}
			digit = d
			continue
		}
		if u, ok := sinoUnits[r]; ok {
			if digit == 0 {
				digit = 1
			}
			section += digit * u
			digit = 0
			hasUnit = true
			continue
		}
		if r == '만' {
			section += digit
			if section == 0 {
				section = 1
			}
			total += section * 10000
			section, digit = 0, 0
			hasUnit = true
			continue
		}
		return 0, false
	}
	if !hasUnit {
		return 0, false
	}
	return total + section + digit, true
}
