package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sensor-collector/internal/sensor"
	"sensor-collector/internal/threshold"
)

// Notification carries one alarm to an external channel.
type Notification struct {
	Kind           sensor.Kind
	SensorID       int
	ReadingID      int64
	Parameter      string
	Classification threshold.Classification
	Value          float64
	Bounds         threshold.Bounds
	ObservedAt     time.Time
}

// Notifier delivers alarm notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier posts alarms through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("kind", string(note.Kind)).
		Str("parameter", note.Parameter).
		Str("classification", note.Classification.String()).
		Msg("alarm delivered (telegram)")
	return nil
}

// RenderMessage formats an alarm for humans.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Sensor Alarm] ")
	builder.WriteString(threshold.Label(note.Classification, note.Parameter))
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Sensor: %d (%s)\n", note.SensorID, note.Kind))
	builder.WriteString(fmt.Sprintf("Value: %s\n", strconv.FormatFloat(note.Value, 'f', -1, 64)))
	builder.WriteString(fmt.Sprintf("Bounds: [%s, %s]\n", note.Bounds.Min.String(), note.Bounds.Max.String()))
	if !note.ObservedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Observed: %s UTC\n", note.ObservedAt.UTC().Format(time.RFC3339)))
	}
	if note.ReadingID > 0 {
		builder.WriteString(fmt.Sprintf("Reading: #%d\n", note.ReadingID))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
