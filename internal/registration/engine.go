package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"driver_bot/internal/action"
	"driver_bot/internal/chat"
	"driver_bot/internal/driver"
	"driver_bot/internal/i18n"
	"driver_bot/internal/phone"
)

// Texts ищет локализованные строки.
type Texts interface {
	Text(tag, key string) string
	Format(tag, key string, args ...any) string
	Match(clientTag string) string
	Languages() []i18n.Language
}

// Intake принимает завершенную анкету на проверку.
type Intake interface {
	Intake(ctx context.Context, d driver.Driver) (driver.Driver, error)
}

// DriverFinder ищет существующие заявки.
type DriverFinder interface {
	Find(ctx context.Context, filter driver.Filter) ([]driver.Driver, error)
}

// Contact — контакт, отправленный пользователем.
type Contact struct {
	PhoneNumber string
	UserID      int64
}

// Options задает необязательные параметры движка.
type Options struct {
	Form Form
	// BotUsername нужен для ссылки, по которой приглашенный привязывает заявку.
	BotUsername string
	// Locker сериализует события одного отправителя между репликами.
	Locker Locker
	Logger *slog.Logger
}

// Engine ведет пользователя по этапам анкеты.
type Engine struct {
	sessions    SessionStore
	intake      Intake
	drivers     DriverFinder
	messenger   chat.Messenger
	texts       Texts
	form        Form
	botUsername string
	locks       *keyedMutex
	shared      Locker
	logger      *slog.Logger
}

// NewEngine создает движок анкеты.
func NewEngine(sessions SessionStore, intake Intake, drivers DriverFinder, messenger chat.Messenger, texts Texts, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	form := opts.Form
	if len(form.Stages) == 0 {
		form = TextForm()
	}
	return &Engine{
		sessions:    sessions,
		intake:      intake,
		drivers:     drivers,
		messenger:   messenger,
		texts:       texts,
		form:        form,
		botUsername: strings.TrimPrefix(strings.TrimSpace(opts.BotUsername), "@"),
		locks:       newKeyedMutex(),
		shared:      opts.Locker,
		logger:      logger,
	}
}

// Start сбрасывает незавершенную анкету и предлагает выбрать язык.
func (e *Engine) Start(ctx context.Context, who chat.Person) error {
	unlock, err := e.lock(ctx, who.ID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := e.sessions.Delete(ctx, who.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return e.sendLanguagePicker(ctx, who)
}

// ChooseLanguage показывает выбор языка, не трогая прогресс.
func (e *Engine) ChooseLanguage(ctx context.Context, who chat.Person) error {
	return e.sendLanguagePicker(ctx, who)
}

// SelectLanguage создает сессию на первом поле либо меняет язык текущей.
func (e *Engine) SelectLanguage(ctx context.Context, who chat.Person, tag string) error {
	unlock, err := e.lock(ctx, who.ID)
	if err != nil {
		return err
	}
	defer unlock()

	session, err := e.sessions.Get(ctx, who.ID)
	switch {
	case err == nil:
		session.Language = tag
		if err := e.sessions.Put(ctx, session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		if err := e.send(ctx, who.ID, e.texts.Text(tag, "language.changed"), nil); err != nil {
			return err
		}
		return e.prompt(ctx, session)
	case errors.Is(err, ErrSessionNotFound):
		return e.begin(ctx, who, tag, false)
	default:
		return fmt.Errorf("load session: %w", err)
	}
}

// Restart начинает новую анкету на языке текущей сессии.
func (e *Engine) Restart(ctx context.Context, who chat.Person) error {
	unlock, err := e.lock(ctx, who.ID)
	if err != nil {
		return err
	}
	defer unlock()

	session, err := e.sessions.Get(ctx, who.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return e.sendLanguagePicker(ctx, who)
		}
		return fmt.Errorf("load session: %w", err)
	}
	return e.begin(ctx, who, session.Language, session.Delegated)
}

// StartDelegated начинает анкету от имени одобренного водителя за друга.
func (e *Engine) StartDelegated(ctx context.Context, who chat.Person) error {
	unlock, err := e.lock(ctx, who.ID)
	if err != nil {
		return err
	}
	defer unlock()

	approved, err := e.drivers.Find(ctx, driver.Filter{TelegramID: who.ID, Status: driver.StatusApproved})
	if err != nil {
		return fmt.Errorf("find approved driver: %w", err)
	}
	if len(approved) == 0 {
		return e.send(ctx, who.ID, e.texts.Text(e.fallbackLanguage(ctx, who), "invite.not_allowed"), nil)
	}
	lang := approved[0].Language
	if lang == "" {
		lang = e.texts.Match(who.LanguageCode)
	}
	return e.begin(ctx, who, lang, true)
}

// Cancel удаляет активную сессию.
func (e *Engine) Cancel(ctx context.Context, who chat.Person) error {
	unlock, err := e.lock(ctx, who.ID)
	if err != nil {
		return err
	}
	defer unlock()

	session, err := e.sessions.Get(ctx, who.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return e.send(ctx, who.ID, e.texts.Text(e.texts.Match(who.LanguageCode), "session.none"), chat.RemoveKeyboard())
		}
		return fmt.Errorf("load session: %w", err)
	}
	if err := e.sessions.Delete(ctx, who.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return e.send(ctx, who.ID, e.texts.Text(session.Language, "session.cancelled"), chat.RemoveKeyboard())
}

// Language возвращает язык активной сессии либо язык клиента.
func (e *Engine) Language(ctx context.Context, who chat.Person) string {
	return e.fallbackLanguage(ctx, who)
}

// HandleText принимает текстовый ответ на текущее поле.
func (e *Engine) HandleText(ctx context.Context, who chat.Person, text string) error {
	unlock, err := e.lock(ctx, who.ID)
	if err != nil {
		return err
	}
	defer unlock()

	session, ok, err := e.load(ctx, who)
	if err != nil || !ok {
		return err
	}
	text = strings.TrimSpace(text)

	if session.Stage == StagePhone {
		if !phone.Valid(text) {
			return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.invalid_phone"), nil)
		}
		return e.complete(ctx, who, session, text)
	}

	field, _, found := e.form.field(session.Stage, session.Field)
	if !found {
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.follow_instructions"), nil)
	}
	if field.Kind != KindText {
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.expected_photo"), nil)
	}
	if text == "" {
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.expected_text"), nil)
	}
	return e.advance(ctx, session, text)
}

// HandlePhoto принимает фото для поля, ожидающего снимок документа.
func (e *Engine) HandlePhoto(ctx context.Context, who chat.Person, mediaRef string) error {
	unlock, err := e.lock(ctx, who.ID)
	if err != nil {
		return err
	}
	defer unlock()

	session, ok, err := e.load(ctx, who)
	if err != nil || !ok {
		return err
	}
	if session.Stage == StagePhone {
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.follow_instructions"), nil)
	}
	field, _, found := e.form.field(session.Stage, session.Field)
	if !found {
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.follow_instructions"), nil)
	}
	if field.Kind != KindPhoto || mediaRef == "" {
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.expected_text"), nil)
	}
	return e.advance(ctx, session, mediaRef)
}

// HandleContact завершает этап PHONE контактом.
func (e *Engine) HandleContact(ctx context.Context, who chat.Person, contact Contact) error {
	unlock, err := e.lock(ctx, who.ID)
	if err != nil {
		return err
	}
	defer unlock()

	session, ok, err := e.load(ctx, who)
	if err != nil || !ok {
		return err
	}
	if session.Stage != StagePhone {
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.follow_instructions"), nil)
	}
	if !session.Delegated && contact.UserID != 0 && contact.UserID != who.ID {
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.own_contact"), nil)
	}
	number := phone.Normalize(contact.PhoneNumber)
	if number == "" {
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.invalid_phone"), nil)
	}
	return e.complete(ctx, who, session, number)
}

func (e *Engine) load(ctx context.Context, who chat.Person) (Session, bool, error) {
	session, err := e.sessions.Get(ctx, who.ID)
	if err == nil {
		return session, true, nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		lang := e.texts.Match(who.LanguageCode)
		return Session{}, false, e.send(ctx, who.ID, e.texts.Text(lang, "error.start_first"), nil)
	}
	return Session{}, false, fmt.Errorf("load session: %w", err)
}

func (e *Engine) begin(ctx context.Context, who chat.Person, lang string, delegated bool) error {
	stage, field := e.form.first()
	session := Session{
		SubmitterID: who.ID,
		Username:    who.Username,
		Language:    lang,
		Stage:       stage,
		Field:       field,
		Data:        map[Stage]map[string]string{},
		Delegated:   delegated,
	}
	if err := e.sessions.Put(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return e.prompt(ctx, session)
}

func (e *Engine) advance(ctx context.Context, session Session, value string) error {
	session.set(session.Stage, session.Field, value)
	stage, field, ok := e.form.next(session.Stage, session.Field)
	if !ok {
		return fmt.Errorf("form has no step after %s.%s", session.Stage, session.Field)
	}
	session.Stage = stage
	session.Field = field
	if err := e.sessions.Put(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return e.prompt(ctx, session)
}

func (e *Engine) complete(ctx context.Context, who chat.Person, session Session, number string) error {
	session.set(StagePhone, PhoneField, number)
	record := e.buildDriver(who, session)

	created, err := e.intake.Intake(ctx, record)
	if err != nil {
		e.logger.Error("driver intake failed", slog.Int64("chat_id", who.ID), slog.String("error", err.Error()))
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "error.save_failed"), nil)
	}
	if err := e.sessions.Delete(ctx, who.ID); err != nil {
		e.logger.Error("session delete failed", slog.Int64("chat_id", who.ID), slog.String("error", err.Error()))
	}
	e.logger.Info("registration completed", slog.Int64("chat_id", who.ID), slog.String("driver_id", created.ID), slog.Bool("delegated", session.Delegated))

	if !session.Delegated {
		return e.send(ctx, who.ID, e.texts.Text(session.Language, "submission.sent"), chat.RemoveKeyboard())
	}
	if err := e.send(ctx, who.ID, e.texts.Text(session.Language, "submission.sent_delegated"), chat.RemoveKeyboard()); err != nil {
		return err
	}
	if e.botUsername == "" {
		return nil
	}
	link := fmt.Sprintf("https://t.me/%s?start=link_%s", e.botUsername, created.ID)
	return e.send(ctx, who.ID, e.texts.Format(session.Language, "submission.invite_link", link), nil)
}

func (e *Engine) buildDriver(who chat.Person, session Session) driver.Driver {
	record := driver.Driver{
		Language: session.Language,
		Passport: driver.Passport{
			FullName:     session.Value(StagePassport, "fullName"),
			SerialNumber: session.Value(StagePassport, "serialNumber"),
			BirthDate:    session.Value(StagePassport, "birthDate"),
		},
		License: driver.License{
			Series:     session.Value(StageLicense, "series"),
			Number:     session.Value(StageLicense, "number"),
			IssueDate:  session.Value(StageLicense, "issueDate"),
			Categories: session.Value(StageLicense, "categories"),
		},
		TechPassport: driver.TechPassport{
			Series: session.Value(StageTechPassport, "series"),
			Number: session.Value(StageTechPassport, "number"),
			Year:   session.Value(StageTechPassport, "year"),
			Model:  session.Value(StageTechPassport, "model"),
		},
		Phone:  session.Value(StagePhone, PhoneField),
		Status: driver.StatusPending,
	}
	if session.Delegated {
		record.InvitedBy = who.ID
		record.InvitedByUsername = who.Username
	} else {
		record.TelegramID = who.ID
		record.Username = who.Username
	}
	for _, def := range e.form.Stages {
		for _, field := range def.Fields {
			if field.Kind != KindPhoto {
				continue
			}
			if ref := session.Value(def.Stage, field.Name); ref != "" {
				if record.Media == nil {
					record.Media = map[string]string{}
				}
				record.Media[string(def.Stage)+"."+field.Name] = ref
			}
		}
	}
	return record
}

func (e *Engine) prompt(ctx context.Context, session Session) error {
	if session.Stage == StagePhone {
		if session.Delegated {
			return e.send(ctx, session.SubmitterID, e.texts.Text(session.Language, "prompt.PHONE.delegated"), nil)
		}
		keyboard := chat.ContactRequest(e.texts.Text(session.Language, "button.contact"))
		return e.send(ctx, session.SubmitterID, e.texts.Text(session.Language, "prompt.PHONE"), keyboard)
	}
	key := fmt.Sprintf("prompt.%s.%s", session.Stage, session.Field)
	return e.send(ctx, session.SubmitterID, e.texts.Text(session.Language, key), nil)
}

func (e *Engine) sendLanguagePicker(ctx context.Context, who chat.Person) error {
	var buttons []chat.Button
	for _, lang := range e.texts.Languages() {
		token, err := action.Language(lang.Tag)
		if err != nil {
			return err
		}
		buttons = append(buttons, chat.Button{Label: lang.Name, Token: token})
	}
	lang := e.texts.Match(who.LanguageCode)
	return e.send(ctx, who.ID, e.texts.Text(lang, "language.prompt"), chat.InlineRow(buttons...))
}

func (e *Engine) fallbackLanguage(ctx context.Context, who chat.Person) string {
	if session, err := e.sessions.Get(ctx, who.ID); err == nil && session.Language != "" {
		return session.Language
	}
	return e.texts.Match(who.LanguageCode)
}

func (e *Engine) send(ctx context.Context, chatID int64, text string, keyboard *chat.Keyboard) error {
	if _, err := e.messenger.SendMessage(ctx, chatID, text, keyboard); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
