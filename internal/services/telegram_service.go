package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/catalog/internal/logger"
)

const telegramAPIBase = "https://api.telegram.org"

// CreationNotifier is told about records the catalog created on its own,
// as a side effect of a product write.
type CreationNotifier interface {
	RecordCreated(ctx context.Context, kind, name, reason string)
}

// TelegramService posts catalog notifications to a Telegram admin chat.
// Without a bot token or chat id it only logs.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	client      *http.Client
	log         *logrus.Entry
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     telegramAPIBase,
		client:      &http.Client{Timeout: 5 * time.Second},
		log:         logger.Component("telegram"),
	}
}

// WithAPIBase points the service at another Bot API host.
func (s *TelegramService) WithAPIBase(base string) *TelegramService {
	s.apiBase = base
	return s
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.log.Debug("bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		s.log.Debug("admin chat id not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// RecordCreated reports an implicitly created brand or category. Delivery
// failures are logged, never returned: the write that caused the creation
// has already committed.
func (s *TelegramService) RecordCreated(ctx context.Context, kind, name, reason string) {
	entry := s.log.WithFields(logrus.Fields{"kind": kind, "name": name, "reason": reason})
	entry.Info("catalog record created implicitly")

	message := fmt.Sprintf("<b>New %s created</b>\n<b>Name:</b> %s\n<i>%s</i>",
		html.EscapeString(kind), html.EscapeString(name), html.EscapeString(reason))
	if err := s.SendToAdmin(ctx, message); err != nil {
		entry.WithError(err).Warn("telegram notification failed")
	}
}
