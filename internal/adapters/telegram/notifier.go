package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"chronos/internal/domain/regime"
	"chronos/pkg/errors"
	"chronos/pkg/logger"
)

// Notifier sends regime change alerts to a set of Telegram chats.
type Notifier struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
	limiter *rate.Limiter
	log     *logger.Logger
}

// Config contains notifier configuration
type Config struct {
	Token   string
	ChatIDs []int64

	// Telegram allows ~30 messages/second overall; stay well under it.
	RateLimitRate  int
	RateLimitBurst int
}

// NewNotifier creates a new Telegram notifier
func NewNotifier(cfg Config, log *logger.Logger) (*Notifier, error) {
	if cfg.Token == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "at least one telegram chat id is required")
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}

	return &Notifier{
		api:     api,
		chatIDs: cfg.ChatIDs,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
		log:     log.With("component", "telegram_notifier"),
	}, nil
}

// NotifyRegimeChange sends a regime transition alert to all configured chats.
func (n *Notifier) NotifyRegimeChange(ctx context.Context, result regime.UpdateResult) error {
	text := formatRegimeChange(result)

	var firstErr error
	for _, chatID := range n.chatIDs {
		if err := n.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter wait")
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := n.api.Send(msg); err != nil {
			n.log.Errorw("Failed to send regime alert", "chat_id", chatID, "error", err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "send to chat %d", chatID)
			}
		}
	}
	return firstErr
}

func formatRegimeChange(result regime.UpdateResult) string {
	rec := result.Regime.Recommendations()
	return fmt.Sprintf(
		"%s *Regime change: %s*\n"+
			"`%s` → `%s`\n"+
			"Confidence: %.0f%%\n"+
			"Dwell: %.1f min\n"+
			"Strategy: %s (%s sizing)",
		regimeEmoji(result.Regime),
		result.Symbol,
		result.PreviousRegime.String(),
		result.Regime.String(),
		result.Confidence*100,
		result.DwellMinutes,
		rec.Strategy,
		rec.PositionSizing,
	)
}

func regimeEmoji(r regime.RegimeType) string {
	switch r {
	case regime.RegimeTrending:
		return "📈"
	case regime.RegimeRanging:
		return "↔️"
	case regime.RegimeHighVolatility:
		return "⚡"
	case regime.RegimeTransition:
		return "🔄"
	}
	return "❔"
}
