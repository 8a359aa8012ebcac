package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewatch/internal/config"
	"sitewatch/internal/logger"
	apperrors "sitewatch/pkg/errors"
	"sitewatch/pkg/models"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *fakeSender) Name() string { return "fake" }

func (s *fakeSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

func testSettings() config.NotificationSettings {
	return config.NotificationSettings{
		RecipientEmail: "owner@example.com",
		AdminEmail:     "admin@example.com",
		SiteName:       "Example",
		SiteURL:        "https://example.com",
	}
}

func brokenLinkEvent() models.ErrorEvent {
	return models.NewBrokenLinkEvent(
		"https://example.com/missing-page",
		"https://example.com/blog",
		"Mozilla/5.0",
		"203.0.113.7",
		time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	)
}

func TestNotifier_Delivers(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, config.StaticSettings(testSettings()), config.NotificationConfig{}, logger.NopLogger())

	evt := brokenLinkEvent()
	res := n.Notify(context.Background(), evt)

	assert.True(t, res.Delivered)
	assert.False(t, res.Skipped)
	assert.NoError(t, res.Err)
	assert.Equal(t, "owner@example.com", res.Recipient)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "owner@example.com", sent[0].To)
	assert.Equal(t, "[Example] Broken link detected", sent[0].Subject)
	assert.Equal(t, evt.ID, sent[0].Headers[HeaderEventID])
}

func TestNotifier_RecipientResolution(t *testing.T) {
	tests := []struct {
		name      string
		recipient string
		admin     string
		want      string
		skipped   bool
	}{
		{name: "recipient", recipient: "owner@example.com", admin: "admin@example.com", want: "owner@example.com"},
		{name: "unset falls back", recipient: "", admin: "admin@example.com", want: "admin@example.com"},
		{name: "invalid falls back", recipient: "not-an-address", admin: "admin@example.com", want: "admin@example.com"},
		{name: "whitespace trimmed", recipient: "  owner@example.com ", admin: "", want: "owner@example.com"},
		{name: "both invalid", recipient: "nope", admin: "also nope", skipped: true},
		{name: "both empty", skipped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			settings.RecipientEmail = tt.recipient
			settings.AdminEmail = tt.admin

			sender := &fakeSender{}
			n := NewNotifier(sender, config.StaticSettings(settings), config.NotificationConfig{}, logger.NopLogger())
			res := n.Notify(context.Background(), brokenLinkEvent())

			if tt.skipped {
				assert.True(t, res.Skipped)
				assert.False(t, res.Delivered)
				assert.NoError(t, res.Err, "a skipped delivery is not an error")
				assert.Empty(t, sender.Sent())
				return
			}
			assert.True(t, res.Delivered)
			assert.Equal(t, tt.want, res.Recipient)
		})
	}
}

func TestNotifier_SettingsReadPerCall(t *testing.T) {
	settings := testSettings()
	var mu sync.Mutex
	source := config.SettingsFunc(func() config.NotificationSettings {
		mu.Lock()
		defer mu.Unlock()
		return settings
	})

	sender := &fakeSender{}
	n := NewNotifier(sender, source, config.NotificationConfig{}, logger.NopLogger())

	n.Notify(context.Background(), brokenLinkEvent())
	mu.Lock()
	settings.RecipientEmail = "new@example.com"
	mu.Unlock()
	n.Notify(context.Background(), brokenLinkEvent())

	sent := sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "owner@example.com", sent[0].To)
	assert.Equal(t, "new@example.com", sent[1].To)
}

func TestNotifier_SendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("550 mailbox unavailable")}
	n := NewNotifier(sender, config.StaticSettings(testSettings()), config.NotificationConfig{}, logger.NopLogger())

	res := n.Notify(context.Background(), brokenLinkEvent())

	assert.False(t, res.Delivered)
	assert.False(t, res.Skipped)
	assert.ErrorIs(t, res.Err, apperrors.ErrDelivery)
	assert.Contains(t, res.Err.Error(), "550 mailbox unavailable")
}

func TestNotifier_Throttle(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, config.StaticSettings(testSettings()), config.NotificationConfig{MaxPerHour: 2}, logger.NopLogger())

	for i := 0; i < 2; i++ {
		res := n.Notify(context.Background(), brokenLinkEvent())
		assert.True(t, res.Delivered)
	}

	res := n.Notify(context.Background(), brokenLinkEvent())
	assert.False(t, res.Delivered)
	assert.ErrorIs(t, res.Err, apperrors.ErrThrottled)
	assert.Len(t, sender.Sent(), 2)
}
