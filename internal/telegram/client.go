// Package telegram sends trade and run notifications via the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hermish/traders-at-mit-2019/internal/logger"
	"github.com/hermish/traders-at-mit-2019/internal/models"
)

// Summary is the end-of-run report.
type Summary struct {
	News        int
	Signals     int
	Clears      int
	Rejected    int
	Credibility map[string]float64
}

// Client handles Telegram notifications. Notify methods only enqueue;
// a background goroutine started by Start does the sending.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	queue          chan string
	wg             sync.WaitGroup
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, queueSize int) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		queue:          make(chan string, queueSize),
	}, nil
}

// Start launches the sender and the command listener. Both stop when ctx is cancelled;
// call Close afterwards to flush what is still queued.
func (c *Client) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for text := range c.queue {
			if err := c.sendMarkdownV2(text); err != nil {
				logger.Warn("Failed to send Telegram notification: %v", err)
			}
		}
	}()
	c.listenForCommands(ctx)
}

// Close stops accepting notifications and waits for the queue to drain.
func (c *Client) Close() {
	close(c.queue)
	c.wg.Wait()
}

func (c *Client) listenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	}
}

// enqueue never blocks; a full queue drops the message.
func (c *Client) enqueue(text string) bool {
	select {
	case c.queue <- text:
		return true
	default:
		logger.Warn("Telegram queue full, dropping notification")
		return false
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// NotifyOrder queues an order notification.
func (c *Client) NotifyOrder(order models.OrderIntent) {
	c.enqueue(formatOrder(order))
}

// NotifyError queues an error notification.
func (c *Client) NotifyError(err error) {
	c.enqueue(fmt.Sprintf("⚠️ *Engine error*\n`%s`", escapeMarkdownV2(err.Error())))
}

// NotifySummary queues the end-of-run summary.
func (c *Client) NotifySummary(s Summary) {
	c.enqueue(formatSummary(s))
}

func formatOrder(o models.OrderIntent) string {
	emoji := "📈"
	if o.Side == models.SideSell {
		emoji = "📉"
	}
	price := "market"
	if o.Price != nil {
		price = fmt.Sprintf("%.2f", *o.Price)
	}
	label := "Signal"
	if o.Reason == models.ReasonClear {
		label = "Clear"
	}
	return fmt.Sprintf("%s *%s* %s %s %s @ %s \\(t\\=%s\\)",
		emoji,
		escapeMarkdownV2(label),
		escapeMarkdownV2(strings.ToUpper(string(o.Side))),
		escapeMarkdownV2(strconv.FormatFloat(o.Quantity, 'f', -1, 64)),
		escapeMarkdownV2(o.Ticker),
		escapeMarkdownV2(price),
		escapeMarkdownV2(strconv.FormatInt(o.NewsTime, 10)),
	)
}

func formatSummary(s Summary) string {
	var b strings.Builder
	b.WriteString("📊 *Run summary*\n\n")
	b.WriteString(fmt.Sprintf("News: %d, rejected: %d\n", s.News, s.Rejected))
	b.WriteString(fmt.Sprintf("Signals: %d, clears: %d\n", s.Signals, s.Clears))

	if len(s.Credibility) > 0 {
		b.WriteString("\n*Credibility*\n")
		sources := make([]string, 0, len(s.Credibility))
		for src := range s.Credibility {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		for _, src := range sources {
			b.WriteString(fmt.Sprintf("%s: %s\n",
				escapeMarkdownV2(src),
				escapeMarkdownV2(strconv.FormatFloat(s.Credibility[src], 'f', 4, 64))))
		}
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
