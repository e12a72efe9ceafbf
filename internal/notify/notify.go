// Package notify pushes realtime updates to users over PubNub. The core
// services publish fire-and-forget; delivery failures are logged and never
// affect the operation that triggered them.
package notify

import (
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"
)

type Publisher interface {
	Publish(channel string, message map[string]any)
}

// UserChannel names the per-user notification channel.
func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

// PubNubPublisher publishes over a shared PubNub connection.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{pn: pn}
}

func (p *PubNubPublisher) Publish(channel string, message map[string]any) {
	_, pnStatus, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		slog.Error("pubnub publish failed", "channel", channel, "error", err)
		return
	}
	if pnStatus.Error != nil {
		slog.Error("pubnub publish rejected", "channel", channel, "status_code", pnStatus.StatusCode, "error", pnStatus.Error)
	}
}

// Nop drops every message; used in tests and when PubNub is not configured.
type Nop struct{}

func (Nop) Publish(string, map[string]any) {}
