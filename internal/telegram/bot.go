package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"driver_bot/internal/action"
	"driver_bot/internal/chat"
	"driver_bot/internal/driver"
	"driver_bot/internal/metrics"
	"driver_bot/internal/registration"
)

const linkPrefix = "link_"

// Registrar ведет анкету водителя в личном чате.
type Registrar interface {
	Start(ctx context.Context, who chat.Person) error
	ChooseLanguage(ctx context.Context, who chat.Person) error
	SelectLanguage(ctx context.Context, who chat.Person, tag string) error
	Restart(ctx context.Context, who chat.Person) error
	StartDelegated(ctx context.Context, who chat.Person) error
	Cancel(ctx context.Context, who chat.Person) error
	Language(ctx context.Context, who chat.Person) string
	HandleText(ctx context.Context, who chat.Person, text string) error
	HandlePhoto(ctx context.Context, who chat.Person, mediaRef string) error
	HandleContact(ctx context.Context, who chat.Person, contact registration.Contact) error
}

// Reviewer выполняет действия очереди проверки.
type Reviewer interface {
	ChatID() int64
	Language() string
	Claim(ctx context.Context, reviewer chat.Person, id string) (driver.Driver, error)
	Approve(ctx context.Context, reviewer chat.Person, id string) (driver.Driver, error)
	Reject(ctx context.Context, reviewer chat.Person, id string) (driver.Driver, error)
	Release(ctx context.Context, reviewer chat.Person, id string) (driver.Driver, error)
	LinkSubject(ctx context.Context, id string, who chat.Person) (driver.Driver, error)
	ListReferred(ctx context.Context, inviterID int64, lang string) (string, error)
}

// Texts — локализованные строки и список поддерживаемых языков.
type Texts interface {
	Text(tag, key string) string
	Supported(tag string) bool
}

// RateLimiter ограничивает входящие обновления одного чата.
type RateLimiter interface {
	Allow(key string) bool
}

// Bot обрабатывает входящие обновления Telegram.
type Bot struct {
	messenger chat.Messenger
	registrar Registrar
	reviewer  Reviewer
	texts     Texts
	limiter   RateLimiter
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewBot создает обработчик бота Telegram.
func NewBot(messenger chat.Messenger, registrar Registrar, reviewer Reviewer, texts Texts, limiter RateLimiter, collector *metrics.Collector, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		messenger: messenger,
		registrar: registrar,
		reviewer:  reviewer,
		texts:     texts,
		limiter:   limiter,
		metrics:   collector,
		logger:    logger,
	}
}

// HandleUpdate маршрутизирует сообщения и нажатия кнопок.
func (b *Bot) HandleUpdate(ctx context.Context, update Update) error {
	b.metrics.IncUpdates()
	switch {
	case update.CallbackQuery != nil:
		return b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return b.handleMessage(ctx, update.Message)
	default:
		return nil
	}
}

func (b *Bot) allow(id int64) bool {
	if b.limiter == nil || b.limiter.Allow(strconv.FormatInt(id, 10)) {
		return true
	}
	b.metrics.IncRateLimited()
	b.logger.Warn("telegram update rate limited", slog.Int64("chat_id", id))
	return false
}

func (b *Bot) handleMessage(ctx context.Context, msg *Message) error {
	if msg.Chat.ID == b.reviewer.ChatID() {
		return b.handleReviewChatMessage(ctx, msg)
	}
	if msg.Chat.ID <= 0 {
		return nil
	}
	if msg.Chat.Type != "" && msg.Chat.Type != "private" {
		return nil
	}
	if !b.allow(msg.Chat.ID) {
		return nil
	}

	who := person(msg.From)
	who.ID = msg.Chat.ID

	switch {
	case msg.Contact != nil:
		return b.registrar.HandleContact(ctx, who, registration.Contact{
			PhoneNumber: msg.Contact.PhoneNumber,
			UserID:      msg.Contact.UserID,
		})
	case len(msg.Photo) > 0:
		return b.registrar.HandlePhoto(ctx, who, largestPhoto(msg.Photo))
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	if !strings.HasPrefix(text, "/") {
		return b.registrar.HandleText(ctx, who, text)
	}

	command, arg := parseCommand(text)
	switch command {
	case "/start":
		if id, ok := strings.CutPrefix(arg, linkPrefix); ok && id != "" {
			return b.handleLink(ctx, who, id)
		}
		return b.registrar.Start(ctx, who)
	case "/language":
		return b.registrar.ChooseLanguage(ctx, who)
	case "/new":
		return b.registrar.Restart(ctx, who)
	case "/invite":
		return b.registrar.StartDelegated(ctx, who)
	case "/myinvites":
		return b.handleMyInvites(ctx, who)
	case "/cancel":
		return b.registrar.Cancel(ctx, who)
	default:
		return b.send(ctx, who.ID, b.texts.Text(b.registrar.Language(ctx, who), "help"), nil)
	}
}

func parseCommand(text string) (string, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", ""
	}
	command := fields[0]
	if idx := strings.Index(command, "@"); idx != -1 {
		command = command[:idx]
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	return command, arg
}

func (b *Bot) handleLink(ctx context.Context, who chat.Person, id string) error {
	lang := b.registrar.Language(ctx, who)
	_, err := b.reviewer.LinkSubject(ctx, id, who)
	switch {
	case err == nil:
		return b.send(ctx, who.ID, b.texts.Text(lang, "link.done"), nil)
	case errors.Is(err, driver.ErrNotFound), errors.Is(err, driver.ErrAlreadyLinked), errors.Is(err, driver.ErrConflict):
		b.logger.Info("driver link refused", slog.Int64("chat_id", who.ID), slog.String("driver_id", id), slog.String("error", err.Error()))
		return b.send(ctx, who.ID, b.texts.Text(lang, "link.failed"), nil)
	default:
		b.logger.Error("driver link failed", slog.Int64("chat_id", who.ID), slog.String("driver_id", id), slog.String("error", err.Error()))
		return b.send(ctx, who.ID, b.texts.Text(lang, "error.try_later"), nil)
	}
}

func (b *Bot) handleMyInvites(ctx context.Context, who chat.Person) error {
	lang := b.registrar.Language(ctx, who)
	text, err := b.reviewer.ListReferred(ctx, who.ID, lang)
	if err != nil {
		b.logger.Error("list referred drivers failed", slog.Int64("chat_id", who.ID), slog.String("error", err.Error()))
		return b.send(ctx, who.ID, b.texts.Text(lang, "error.try_later"), nil)
	}
	return b.send(ctx, who.ID, text, nil)
}

// handleReviewChatMessage обрабатывает команды чата проверки; прочие сообщения игнорируются.
func (b *Bot) handleReviewChatMessage(ctx context.Context, msg *Message) error {
	command, arg := parseCommand(strings.TrimSpace(msg.Text))
	if command != "/release" {
		return nil
	}
	lang := b.reviewer.Language()
	if arg == "" {
		return b.send(ctx, msg.Chat.ID, b.texts.Text(lang, "review.release_usage"), nil)
	}
	_, err := b.reviewer.Release(ctx, person(msg.From), arg)
	key := "review.released"
	switch {
	case err == nil:
	case errors.Is(err, driver.ErrConflict):
		key = "review.cannot_release"
	case errors.Is(err, driver.ErrNotFound):
		key = "review.not_found"
	default:
		b.logger.Error("review release failed", slog.String("driver_id", arg), slog.String("error", err.Error()))
		key = "review.error"
	}
	return b.send(ctx, msg.Chat.ID, b.texts.Text(lang, key), nil)
}

func (b *Bot) handleCallback(ctx context.Context, query *CallbackQuery) error {
	who := person(query.From)
	fromReviewChat := query.Message != nil && query.Message.Chat.ID == b.reviewer.ChatID()
	lang := b.reviewer.Language()
	if !fromReviewChat {
		lang = b.registrar.Language(ctx, who)
	}
	if !b.allow(who.ID) {
		return b.messenger.AnswerCallback(ctx, query.ID, b.texts.Text(lang, "error.rate_limited"))
	}

	token, err := action.Parse(query.Data, b.texts.Supported)
	if err != nil {
		b.logger.Warn("unknown callback action", slog.Int64("chat_id", who.ID), slog.String("data", query.Data))
		return b.messenger.AnswerCallback(ctx, query.ID, b.texts.Text(lang, "review.unknown_action"))
	}

	if token.Verb == action.VerbLanguage {
		if err := b.messenger.AnswerCallback(ctx, query.ID, ""); err != nil {
			b.logger.Warn("answer callback failed", slog.String("error", err.Error()))
		}
		return b.registrar.SelectLanguage(ctx, who, token.Arg)
	}
	if !fromReviewChat {
		b.logger.Warn("review action outside review chat", slog.Int64("chat_id", who.ID), slog.String("data", query.Data))
		return b.messenger.AnswerCallback(ctx, query.ID, b.texts.Text(lang, "review.unknown_action"))
	}
	return b.messenger.AnswerCallback(ctx, query.ID, b.texts.Text(lang, b.review(ctx, who, token)))
}

// review выполняет действие проверки и возвращает ключ ответа проверяющему.
func (b *Bot) review(ctx context.Context, who chat.Person, token action.Token) string {
	var (
		err     error
		success string
		refused string
	)
	switch token.Verb {
	case action.VerbStart:
		_, err = b.reviewer.Claim(ctx, who, token.Arg)
		success, refused = "review.claimed", "review.already_claimed"
	case action.VerbComplete:
		_, err = b.reviewer.Approve(ctx, who, token.Arg)
		success, refused = "review.completed", "review.cannot_complete"
	case action.VerbReject:
		_, err = b.reviewer.Reject(ctx, who, token.Arg)
		success, refused = "review.rejected", "review.cannot_reject"
	default:
		return "review.unknown_action"
	}

	switch {
	case err == nil:
		return success
	case errors.Is(err, driver.ErrConflict):
		return refused
	case errors.Is(err, driver.ErrNotClaimant):
		return "review.not_claimant"
	case errors.Is(err, driver.ErrNotFound):
		return "review.not_found"
	default:
		b.logger.Error("review action failed",
			slog.String("action", string(token.Verb)),
			slog.String("driver_id", token.Arg),
			slog.Int64("reviewer_id", who.ID),
			slog.String("error", err.Error()))
		return "review.error"
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, keyboard *chat.Keyboard) error {
	if _, err := b.messenger.SendMessage(ctx, chatID, text, keyboard); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func person(user User) chat.Person {
	return chat.Person{
		ID:           user.ID,
		Username:     user.Username,
		FirstName:    user.FirstName,
		LanguageCode: user.LanguageCode,
	}
}
