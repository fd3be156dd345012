package textsim

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ContainsWord 按词边界查找 word，两端不能紧邻字母或数字
func ContainsWord(s, word string) bool {
	if word == "" {
		return false
	}
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
