package chat

import (
	"context"
	"strings"
)

// Button — инлайн-кнопка с непрозрачным токеном действия.
type Button struct {
	Label string
	Token string
}

// Keyboard описывает клавиатуру исходящего сообщения.
// Заполняется ровно одно из полей. При редактировании nil убирает инлайн-кнопки.
type Keyboard struct {
	Inline         [][]Button
	RequestContact string
	Remove         bool
}

// InlineRow собирает клавиатуру из одного ряда кнопок.
func InlineRow(buttons ...Button) *Keyboard {
	return &Keyboard{Inline: [][]Button{buttons}}
}

// ContactRequest создает одноразовую кнопку отправки контакта.
func ContactRequest(label string) *Keyboard {
	return &Keyboard{RequestContact: label}
}

// RemoveKeyboard убирает ранее показанную клавиатуру.
func RemoveKeyboard() *Keyboard {
	return &Keyboard{Remove: true}
}

// Messenger отправляет и редактирует сообщения в чат-транспорте.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *Keyboard) (int64, error)
	EditMessage(ctx context.Context, chatID, messageID int64, text string, keyboard *Keyboard) error
	// SendPhoto отправляет ранее загруженное фото по ссылке транспорта.
	SendPhoto(ctx context.Context, chatID int64, mediaRef, caption string) (int64, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Person идентифицирует участника переписки.
type Person struct {
	ID           int64
	Username     string
	FirstName    string
	LanguageCode string
}

// Handle возвращает имя для отображения: @username или имя.
func (p Person) Handle() string {
	if name := strings.TrimSpace(p.Username); name != "" {
		return "@" + name
	}
	if name := strings.TrimSpace(p.FirstName); name != "" {
		return name
	}
	return ""
}
