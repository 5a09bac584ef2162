package action

import (
	"errors"
	"fmt"
	"strings"
)

// Verb — действие, закодированное в callback-токене.
type Verb string

const (
	VerbStart    Verb = "start"
	VerbComplete Verb = "complete"
	VerbReject   Verb = "reject"
	VerbLanguage Verb = "lang"
)

// maxTokenBytes — лимит callback_data в Telegram.
const maxTokenBytes = 64

// ErrUnknownAction сообщает о нераспознанном токене.
var ErrUnknownAction = errors.New("unknown action")

// Token — разобранный токен действия.
type Token struct {
	Verb Verb
	// Arg — ID заявки для действий проверки или тег языка для VerbLanguage.
	Arg string
}

// IsReview сообщает, относится ли токен к очереди проверки.
func (t Token) IsReview() bool {
	switch t.Verb {
	case VerbStart, VerbComplete, VerbReject:
		return true
	default:
		return false
	}
}

func (t Token) String() string {
	return string(t.Verb) + "_" + t.Arg
}

// Parse разбирает токен вида "<verb>_<arg>".
// Язык проверяется через supported; nil разрешает любой непустой тег.
func Parse(raw string, supported func(tag string) bool) (Token, error) {
	raw = strings.TrimSpace(raw)
	verb, arg, ok := strings.Cut(raw, "_")
	if !ok || arg == "" || strings.TrimSpace(arg) != arg {
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
	token := Token{Verb: Verb(verb), Arg: arg}
	switch token.Verb {
	case VerbStart, VerbComplete, VerbReject:
		return token, nil
	case VerbLanguage:
		if supported != nil && !supported(arg) {
			return Token{}, fmt.Errorf("%w: unsupported language %q", ErrUnknownAction, arg)
		}
		return token, nil
	default:
		return Token{}, fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}

// Review кодирует действие проверки над заявкой.
func Review(verb Verb, submissionID string) (string, error) {
	switch verb {
	case VerbStart, VerbComplete, VerbReject:
	default:
		return "", fmt.Errorf("%w: verb %q", ErrUnknownAction, verb)
	}
	return encode(verb, submissionID)
}

// Language кодирует выбор языка.
func Language(tag string) (string, error) {
	return encode(VerbLanguage, tag)
}

func encode(verb Verb, arg string) (string, error) {
	if arg == "" {
		return "", fmt.Errorf("%w: empty argument", ErrUnknownAction)
	}
	token := string(verb) + "_" + arg
	if len(token) > maxTokenBytes {
		return "", fmt.Errorf("action token exceeds %d bytes", maxTokenBytes)
	}
	return token, nil
}
