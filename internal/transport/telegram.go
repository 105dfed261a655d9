package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"talkbot/internal"
	"talkbot/internal/config"
	"talkbot/internal/conversation"
	"talkbot/internal/dispatch"
	"talkbot/internal/logger"
)

// TelegramBot is the part of the bot API the transport uses.
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances.
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// Telegram serves one conversation per chat over long polling.
type Telegram struct {
	cfg        config.TelegramConfig
	runner     Runner
	mailbox    *Mailbox
	bot        TelegramBot
	botFactory BotFactory
	ctx        context.Context
}

func NewTelegram(cfg config.TelegramConfig, runner Runner) (*Telegram, error) {
	return NewTelegramWithFactory(cfg, runner, defaultBotFactory)
}

func NewTelegramWithFactory(cfg config.TelegramConfig, runner Runner, factory BotFactory) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	return &Telegram{
		cfg:        cfg,
		runner:     runner,
		mailbox:    NewMailbox(),
		botFactory: factory,
		ctx:        context.Background(),
	}, nil
}

func (t *Telegram) initBot() error {
	client := http.DefaultClient
	if t.cfg.Proxy != "" {
		proxyURL, err := url.Parse(t.cfg.Proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
	}

	bot, err := t.botFactory(t.cfg.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	logger.Successf("Telegram authorized as @%s", bot.GetSelf().UserName)
	return nil
}

// Run polls for updates until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}
	t.ctx = ctx
	defer t.mailbox.StopAll()
	defer t.bot.StopReceivingUpdates()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	logger.Infof("Telegram polling started")
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				t.handleMessage(update.Message)
			}
		case <-ctx.Done():
			logger.Infof("Telegram polling stopped")
			return nil
		}
	}
}

func (t *Telegram) isAllowed(senderID string) bool {
	if len(t.cfg.AllowFrom) == 0 {
		return true
	}
	for _, id := range t.cfg.AllowFrom {
		if id == senderID {
			return true
		}
	}
	return false
}

func (t *Telegram) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !t.isAllowed(senderID) {
		logger.Warnf("Telegram: rejected message from %s (%s)", senderID, msg.From.UserName)
		return
	}

	chatID := msg.Chat.ID
	key := strconv.FormatInt(chatID, 10)
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	switch msg.Command() {
	case "talk":
		purpose := strings.TrimSpace(msg.CommandArguments())
		if purpose == "" {
			t.send(chatID, "Usage: /talk <purpose>")
			return
		}
		human := &telegramHuman{
			mailboxReplies: mailboxReplies{key: key, mailbox: t.mailbox},
			telegram:       t,
			chatID:         chatID,
		}
		err := startSession(t.ctx, t.mailbox, t.runner, key, human, purpose, func(res conversation.Result, err error) {
			if err != nil {
				t.send(chatID, "The conversation stopped: "+err.Error())
				return
			}
			t.send(chatID, fmt.Sprintf("Conversation closed after %d turns (%s).", res.State.TurnCount, res.Reason))
		})
		if err != nil {
			t.send(chatID, err.Error()+". Send /stop to end it.")
			return
		}
		logger.Infof("Telegram: %s started a conversation in chat %d", msg.From.UserName, chatID)
		t.send(chatID, "Working on it.")
	case "stop":
		if err := t.mailbox.Stop(key); err != nil {
			t.send(chatID, err.Error()+".")
		}
	case "":
		if err := t.mailbox.Post(key, text); err != nil {
			t.send(chatID, err.Error()+". Send /talk <purpose> to start.")
		}
	default:
		t.send(chatID, "Commands: /talk <purpose>, /stop")
	}
}

func (t *Telegram) send(chatID int64, text string) error {
	if t.bot == nil {
		return errors.New("telegram bot not initialized")
	}
	for _, chunk := range splitLines(text, internal.TELEGRAM_MAX_MESSAGE_LENGTH) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			logger.Errorf("Telegram: send to %d failed: %v", chatID, err)
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

type telegramHuman struct {
	mailboxReplies
	telegram *Telegram
	chatID   int64
}

func (h *telegramHuman) Deliver(ctx context.Context, msg dispatch.RoutedMessage) error {
	return h.telegram.send(h.chatID, msg.Message)
}

func (h *telegramHuman) DeliverSummary(ctx context.Context, report string) error {
	return h.telegram.send(h.chatID, report)
}
