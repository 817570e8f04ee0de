package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	expoPushURL    = "https://exp.host/--/api/v2/push/send"
	expoBatchLimit = 100
)

// ExpoPushMessage is a single push notification for the Expo push API.
type ExpoPushMessage struct {
	To        string                 `json:"to"`
	Title     string                 `json:"title,omitempty"`
	Body      string                 `json:"body,omitempty"`
	Sound     string                 `json:"sound,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Priority  string                 `json:"priority,omitempty"`
	ChannelID string                 `json:"channelId,omitempty"`
}

// ExpoPusher sends push notifications through the Expo push service.
type ExpoPusher struct {
	URL    string
	Client *http.Client
}

// NewExpoPusher returns a pusher against the public Expo endpoint.
func NewExpoPusher() *ExpoPusher {
	return &ExpoPusher{
		URL:    expoPushURL,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Send pushes the notification to every token, batched per the Expo API
// limit. A failed batch is logged and the remaining batches still go out.
func (p *ExpoPusher) Send(tokens []string, title, body string, data map[string]interface{}) error {
	if len(tokens) == 0 {
		return nil
	}

	var messages []ExpoPushMessage
	for _, token := range tokens {
		messages = append(messages, ExpoPushMessage{
			To:        token,
			Title:     title,
			Body:      body,
			Sound:     "default",
			Data:      data,
			Priority:  "high",
			ChannelID: "default",
		})
	}

	for i := 0; i < len(messages); i += expoBatchLimit {
		end := i + expoBatchLimit
		if end > len(messages) {
			end = len(messages)
		}
		if err := p.sendBatch(messages[i:end]); err != nil {
			zap.S().Errorf("Failed to send Expo push batch (tokens %d-%d): %v", i, end-1, err)
		}
	}
	return nil
}

func (p *ExpoPusher) sendBatch(messages []ExpoPushMessage) error {
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal push messages: %w", err)
	}

	req, err := http.NewRequest("POST", p.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expo push API returned status %d", resp.StatusCode)
	}
	zap.S().Infof("Successfully sent %d push notification(s) via Expo", len(messages))
	return nil
}
