package telegram

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermish/traders-at-mit-2019/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeMarkdownV2(tt.input))
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// Chat ID is parsed before the bot token is checked, so no network call happens.
	_, err := NewClient("", "not-a-number", 3, time.Second, 8)
	assert.Error(t, err)
}

func TestFormatOrder(t *testing.T) {
	buy := formatOrder(models.OrderIntent{Side: models.SideBuy, Ticker: "ABC", Quantity: 5, Reason: models.ReasonSignal, NewsTime: 10})
	assert.Equal(t, "📈 *Signal* BUY 5 ABC @ market \\(t\\=10\\)", buy)

	limit := 99.5
	sell := formatOrder(models.OrderIntent{Side: models.SideSell, Ticker: "A.B", Quantity: 2.5, Price: &limit, Reason: models.ReasonClear, NewsTime: 20})
	for _, part := range []string{"📉", "*Clear*", "SELL", "2\\.5", "A\\.B", "99\\.50"} {
		assert.Contains(t, sell, part)
	}
}

func TestFormatSummary(t *testing.T) {
	msg := formatSummary(Summary{
		News:        3,
		Signals:     1,
		Clears:      1,
		Credibility: map[string]float64{"S2": math.Inf(1), "S1": -0.05},
	})
	assert.Contains(t, msg, "News: 3, rejected: 0")

	i1 := strings.Index(msg, "S1: \\-0\\.0500")
	i2 := strings.Index(msg, "S2: \\+Inf")
	require.GreaterOrEqual(t, i1, 0, "summary: %q", msg)
	require.GreaterOrEqual(t, i2, 0, "summary: %q", msg)
	assert.Less(t, i1, i2, "credibility not listed in source order")
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	c := &Client{queue: make(chan string, 1)}
	require.True(t, c.enqueue("first"))

	done := make(chan bool, 1)
	go func() { done <- c.enqueue("second") }()
	select {
	case ok := <-done:
		assert.False(t, ok, "second message should be dropped")
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}
