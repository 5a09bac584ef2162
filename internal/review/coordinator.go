// Package review ведет заявки через очередь проверки с единственным владельцем.
package review

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
	"driver_bot/internal/metrics"
)

// Texts ищет локализованные строки.
type Texts interface {
	Text(tag, key string) string
	Format(tag, key string, args ...any) string
}

// Options задает параметры очереди проверки.
type Options struct {
	ReviewChatID int64
	// ReviewLanguage — язык карточек и сообщений проверяющим.
	ReviewLanguage string
	// StrictClaimant разрешает завершать и отклонять взятую заявку только ее владельцу.
	StrictClaimant bool
	Metrics        *metrics.Collector
	Logger         *slog.Logger
}

// Coordinator управляет жизненным циклом заявки после отправки анкеты.
type Coordinator struct {
	store     driver.Store
	messenger chat.Messenger
	texts     Texts
	chatID    int64
	language  string
	strict    bool
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewCoordinator создает координатор проверки.
func NewCoordinator(store driver.Store, messenger chat.Messenger, texts Texts, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang := strings.TrimSpace(opts.ReviewLanguage)
	if lang == "" {
		lang = i18n.BaseLocale
	}
	return &Coordinator{
		store:     store,
		messenger: messenger,
		texts:     texts,
		chatID:    opts.ReviewChatID,
		language:  lang,
		strict:    opts.StrictClaimant,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// ChatID возвращает чат очереди проверки.
func (c *Coordinator) ChatID() int64 {
	return c.chatID
}

// Language возвращает язык проверяющих.
func (c *Coordinator) Language() string {
	return c.language
}

// Intake сохраняет заявку как pending и публикует карточку в очереди.
// Если карточку не удалось отправить, заявка удаляется и возвращается ошибка,
// чтобы водитель повторил отправку из той же сессии.
func (c *Coordinator) Intake(ctx context.Context, d driver.Driver) (driver.Driver, error) {
	d.Status = driver.StatusPending
	created, err := c.store.Create(ctx, d)
	if err != nil {
		return driver.Driver{}, fmt.Errorf("create driver: %w", err)
	}

	messageID, err := c.messenger.SendMessage(ctx, c.chatID, c.Render(created), c.keyboard(created))
	if err != nil {
		if delErr := c.store.Delete(ctx, created.ID); delErr != nil {
			c.logger.Error("unpublished driver delete failed", slog.String("driver_id", created.ID), slog.String("error", delErr.Error()))
		}
		return driver.Driver{}, fmt.Errorf("publish review card: %w", err)
	}
	c.metrics.IncSubmissions()

	updated, err := c.store.Update(ctx, created.ID, func(rec *driver.Driver) error {
		rec.QueueChatID = c.chatID
		rec.QueueMessageID = messageID
		return nil
	})
	if err != nil {
		c.logger.Error("review card reference save failed", slog.String("driver_id", created.ID), slog.String("error", err.Error()))
		return created, nil
	}
	// Кнопку могли нажать до сохранения ссылки на карточку.
	if updated.Status != driver.StatusPending {
		c.refreshCard(ctx, updated)
	}
	return updated, nil
}

// Claim атомарно закрепляет заявку за проверяющим и присылает ему данные.
func (c *Coordinator) Claim(ctx context.Context, reviewer chat.Person, id string) (driver.Driver, error) {
	name := reviewerName(reviewer)
	updated, err := c.store.Update(ctx, id, func(d *driver.Driver) error {
		return d.Claim(reviewer.ID, name)
	})
	if err != nil {
		if errors.Is(err, driver.ErrConflict) {
			c.metrics.IncClaimConflicts()
		}
		return driver.Driver{}, err
	}
	c.metrics.IncClaims()
	c.logger.Info("review claimed", slog.String("driver_id", id), slog.Int64("reviewer_id", reviewer.ID))

	c.refreshCard(ctx, updated)
	c.sendPrivate(ctx, reviewer.ID, updated)
	return updated, nil
}

// Approve завершает проверку и уведомляет водителя.
func (c *Coordinator) Approve(ctx context.Context, reviewer chat.Person, id string) (driver.Driver, error) {
	name := reviewerName(reviewer)
	updated, err := c.store.Update(ctx, id, func(d *driver.Driver) error {
		if err := d.Approve(reviewer.ID, c.strict); err != nil {
			return err
		}
		d.ResolvedByName = name
		return nil
	})
	if err != nil {
		return driver.Driver{}, err
	}
	c.metrics.IncApprovals()
	c.logger.Info("review approved", slog.String("driver_id", id), slog.Int64("reviewer_id", reviewer.ID))

	c.refreshCard(ctx, updated)
	c.notify(ctx, updated, "notify.approved")
	return updated, nil
}

// Reject отклоняет заявку из pending или in_progress и уведомляет водителя.
func (c *Coordinator) Reject(ctx context.Context, reviewer chat.Person, id string) (driver.Driver, error) {
	name := reviewerName(reviewer)
	updated, err := c.store.Update(ctx, id, func(d *driver.Driver) error {
		if err := d.Reject(reviewer.ID, c.strict); err != nil {
			return err
		}
		d.ResolvedByName = name
		return nil
	})
	if err != nil {
		return driver.Driver{}, err
	}
	c.metrics.IncRejections()
	c.logger.Info("review rejected", slog.String("driver_id", id), slog.Int64("reviewer_id", reviewer.ID))

	c.refreshCard(ctx, updated)
	c.notify(ctx, updated, "notify.rejected")
	return updated, nil
}

// Release возвращает взятую заявку в очередь.
func (c *Coordinator) Release(ctx context.Context, reviewer chat.Person, id string) (driver.Driver, error) {
	updated, err := c.store.Update(ctx, id, func(d *driver.Driver) error {
		return d.Release()
	})
	if err != nil {
		return driver.Driver{}, err
	}
	c.metrics.IncReleases()
	c.logger.Info("review released", slog.String("driver_id", id), slog.Int64("reviewer_id", reviewer.ID))

	c.refreshCard(ctx, updated)
	return updated, nil
}

// LinkSubject привязывает аккаунт приглашенного к заявке.
// Если решение уже принято, уведомление отправляется сразу.
func (c *Coordinator) LinkSubject(ctx context.Context, id string, who chat.Person) (driver.Driver, error) {
	updated, err := c.store.Update(ctx, id, func(d *driver.Driver) error {
		if err := d.LinkSubject(who.ID); err != nil {
			return err
		}
		if d.Username == "" {
			d.Username = who.Username
		}
		return nil
	})
	if err != nil {
		return driver.Driver{}, err
	}
	c.logger.Info("driver subject linked", slog.String("driver_id", id), slog.Int64("chat_id", who.ID))

	c.refreshCard(ctx, updated)
	switch updated.Status {
	case driver.StatusApproved:
		c.notify(ctx, updated, "notify.approved")
	case driver.StatusRejected:
		c.notify(ctx, updated, "notify.rejected")
	}
	return updated, nil
}

// ListReferred возвращает список приглашенных водителей в порядке приглашения.
func (c *Coordinator) ListReferred(ctx context.Context, inviterID int64, lang string) (string, error) {
	drivers, err := c.store.Find(ctx, driver.Filter{InvitedBy: inviterID})
	if err != nil {
		return "", fmt.Errorf("find referred drivers: %w", err)
	}
	if len(drivers) == 0 {
		return c.texts.Text(lang, "invites.empty"), nil
	}
	lines := make([]string, 0, len(drivers))
	for i, d := range drivers {
		label := c.texts.Text(lang, "label."+string(d.Status))
		lines = append(lines, c.texts.Format(lang, "invites.line", i+1, d.Passport.FullName, label))
	}
	return c.texts.Format(lang, "invites.header", strings.Join(lines, "\n")), nil
}

func (c *Coordinator) keyboard(d driver.Driver) *chat.Keyboard {
	var verbs []action.Verb
	switch d.Status {
	case driver.StatusPending:
		verbs = []action.Verb{action.VerbStart, action.VerbReject}
	case driver.StatusInProgress:
		verbs = []action.Verb{action.VerbComplete, action.VerbReject}
	default:
		return nil
	}
	buttons := make([]chat.Button, 0, len(verbs))
	for _, verb := range verbs {
		token, err := action.Review(verb, d.ID)
		if err != nil {
			c.logger.Error("review token build failed", slog.String("driver_id", d.ID), slog.String("error", err.Error()))
			continue
		}
		buttons = append(buttons, chat.Button{
			Label: c.texts.Text(c.language, "review.button."+string(verb)),
			Token: token,
		})
	}
	return chat.InlineRow(buttons...)
}

func (c *Coordinator) refreshCard(ctx context.Context, d driver.Driver) {
	if d.QueueMessageID == 0 {
		return
	}
	chatID := d.QueueChatID
	if chatID == 0 {
		chatID = c.chatID
	}
	if err := c.messenger.EditMessage(ctx, chatID, d.QueueMessageID, c.Render(d), c.keyboard(d)); err != nil {
		c.logger.Error("review card update failed", slog.String("driver_id", d.ID), slog.String("error", err.Error()))
	}
}

// sendPrivate присылает проверяющему разделы заявки и фото документов.
func (c *Coordinator) sendPrivate(ctx context.Context, reviewerID int64, d driver.Driver) {
	for _, text := range c.privateSections(d) {
		if _, err := c.messenger.SendMessage(ctx, reviewerID, text, nil); err != nil {
			c.logger.Error("private review send failed", slog.String("driver_id", d.ID), slog.Int64("reviewer_id", reviewerID), slog.String("error", err.Error()))
			return
		}
	}
	for _, p := range c.photos(d) {
		if _, err := c.messenger.SendPhoto(ctx, reviewerID, p.ref, p.caption); err != nil {
			c.logger.Error("private review photo send failed", slog.String("driver_id", d.ID), slog.String("media", p.key), slog.String("error", err.Error()))
		}
	}
}

func (c *Coordinator) notify(ctx context.Context, d driver.Driver, key string) {
	if !d.Reachable() {
		return
	}
	if _, err := c.messenger.SendMessage(ctx, d.TelegramID, c.texts.Text(d.Language, key), nil); err != nil {
		c.logger.Error("driver notification failed", slog.String("driver_id", d.ID), slog.Int64("chat_id", d.TelegramID), slog.String("error", err.Error()))
	}
}

func reviewerName(reviewer chat.Person) string {
	if handle := reviewer.Handle(); handle != "" {
		return handle
	}
	return fmt.Sprintf("ID %d", reviewer.ID)
}
