package phone

import (
	"regexp"
	"strings"
)

var shapePattern = regexp.MustCompile(`^\+?\d[\d\s\-()]{8,}$`)

// Valid проверяет, что введенный текст похож на номер телефона.
func Valid(text string) bool {
	return shapePattern.MatchString(strings.TrimSpace(text))
}

// Normalize оставляет только цифры и ведущий плюс.
// Возвращает пустую строку, если цифр слишком мало.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	digits := 0
	for i, r := range raw {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		}
	}
	if digits < 9 {
		return ""
	}
	out := b.String()
	if !strings.HasPrefix(out, "+") {
		out = "+" + out
	}
	return out
}
