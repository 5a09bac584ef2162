package telegram

import (
	"context"
	"log/slog"
	"time"
)

// UpdateSource отдает обновления для long polling.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration, limit int) ([]Update, error)
	DeleteWebhook(ctx context.Context, dropPending bool) error
}

// UpdateHandler обрабатывает одно обновление.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update Update) error
}

// Poller получает обновления через getUpdates и передает их боту по порядку.
type Poller struct {
	source      UpdateSource
	handler     UpdateHandler
	logger      *slog.Logger
	timeout     time.Duration
	interval    time.Duration
	limit       int
	dropPending bool
	dropWebhook bool
}

// NewPoller создает поллер. interval задает паузу после ошибки запроса.
func NewPoller(source UpdateSource, handler UpdateHandler, logger *slog.Logger, timeout, interval time.Duration, limit int, dropPending, dropWebhook bool) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		source:      source,
		handler:     handler,
		logger:      logger,
		timeout:     timeout,
		interval:    interval,
		limit:       limit,
		dropPending: dropPending,
		dropWebhook: dropWebhook,
	}
}

// Run опрашивает Telegram до отмены ctx.
func (p *Poller) Run(ctx context.Context) {
	if p.dropWebhook {
		if err := p.source.DeleteWebhook(ctx, p.dropPending); err != nil {
			p.logger.Error("telegram delete webhook failed", slog.String("error", err.Error()))
		}
	}

	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout, p.limit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("telegram get updates failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.interval):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if err := p.handler.HandleUpdate(ctx, update); err != nil {
				p.logger.Error("failed to handle telegram update", slog.Int64("update_id", update.UpdateID), slog.String("error", err.Error()))
			}
		}
	}
}
