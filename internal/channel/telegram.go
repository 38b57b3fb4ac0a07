package channel

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stellarlinkco/taskclaw/internal/bus"
	"github.com/stellarlinkco/taskclaw/internal/config"
)

const telegramChannelName = "telegram"

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement TelegramBot interface
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

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

type TelegramChannel struct {
	BaseChannel
	token      string
	notifyTo   string
	bot        TelegramBot
	cancel     context.CancelFunc
	botFactory BotFactory

	mu         sync.Mutex
	lastChatID string
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with custom bot factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, b, cfg.AllowFrom),
		token:       cfg.Token,
		notifyTo:    cfg.NotifyTo,
		botFactory:  factory,
	}, nil
}

func (t *TelegramChannel) initBot() error {
	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, http.DefaultClient)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				t.handleMessage(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("[telegram] polling started")
	return nil
}

// reminderCommands are the chat shortcuts acting on the surfaced
// notification; the gateway executes them without a model turn.
var reminderCommands = map[string]string{
	"/done":    "done",
	"/snooze":  "snooze",
	"/dismiss": "dismiss",
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	senderID := strconv.FormatInt(msg.From.ID, 10)

	if !t.IsAllowed(senderID) {
		log.Printf("[telegram] rejected message from %s (%s)", senderID, msg.From.UserName)
		return
	}

	content := strings.TrimSpace(msg.Text)
	if content == "" {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	t.mu.Lock()
	t.lastChatID = chatID
	t.mu.Unlock()

	metadata := map[string]any{
		"username":   msg.From.UserName,
		"message_id": msg.MessageID,
	}
	if cmd, ok := reminderCommands[strings.ToLower(strings.Fields(content)[0])]; ok {
		metadata["command"] = cmd
	}

	t.bus.Inbound <- bus.InboundMessage{
		Channel:   telegramChannelName,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Unix(int64(msg.Date), 0),
		Metadata:  metadata,
	}
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	log.Printf("[telegram] stopped")
	return nil
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}

func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}

	content := toTelegramHTML(msg.Content)

	// Telegram has a 4096 char limit per message
	const maxLen = 4000
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			// Try to split at last newline before maxLen
			idx := strings.LastIndex(chunk[:maxLen], "\n")
			if idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = content[len(chunk):]

		tgMsg := tgbotapi.NewMessage(chatID, chunk)
		tgMsg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(tgMsg); err != nil {
			// Retry without HTML parse mode
			tgMsg.ParseMode = ""
			tgMsg.Text = msg.Content
			if _, err2 := t.bot.Send(tgMsg); err2 != nil {
				return fmt.Errorf("send telegram message: %w", err2)
			}
			return nil
		}
	}
	return nil
}

// Notify delivers a fired reminder to the configured notify chat,
// falling back to the most recent conversation.
func (t *TelegramChannel) Notify(n bus.Notification) error {
	chatID := t.notifyTo
	if chatID == "" {
		t.mu.Lock()
		chatID = t.lastChatID
		t.mu.Unlock()
	}
	if chatID == "" {
		return fmt.Errorf("no telegram chat to notify")
	}
	content := fmt.Sprintf("%s\n\nReply /done, /snooze or /dismiss.", n.Message)
	return t.Send(bus.OutboundMessage{ChatID: chatID, Content: content})
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// toTelegramHTML converts basic markdown to Telegram HTML.
func toTelegramHTML(s string) string {
	s = escapeHTML(s)

	// Code blocks: ```...``` -> <pre>...</pre>
	for {
		start := strings.Index(s, "```")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+3:], "```")
		if end == -1 {
			break
		}
		end += start + 3
		code := s[start+3 : end]
		// Strip optional language tag on first line
		if nl := strings.Index(code, "\n"); nl >= 0 {
			firstLine := strings.TrimSpace(code[:nl])
			if len(firstLine) > 0 && !strings.Contains(firstLine, " ") {
				code = code[nl+1:]
			}
		}
		s = s[:start] + "<pre>" + code + "</pre>" + s[end+3:]
	}

	// Bold: **...** -> <b>...</b>
	for {
		start := strings.Index(s, "**")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+2:], "**")
		if end == -1 {
			break
		}
		end += start + 2
		s = s[:start] + "<b>" + s[start+2:end] + "</b>" + s[end+2:]
	}

	return s
}
