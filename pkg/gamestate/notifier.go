// Package gamestate notifies the external real-time game server about
// completed value movements. The notification is informational only: the
// ledger is the source of truth and a delivery failure is logged, never
// propagated.
package gamestate

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type Notifier struct {
	url    string
	client *http.Client
}

// NewNotifier returns a notifier posting to url. An empty url yields a
// disabled notifier; calling it is a no-op.
func NewNotifier(url string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

type event struct {
	UserID    string  `json:"user_id"`
	Event     string  `json:"event"`
	AmountSol float64 `json:"amount_sol"`
	Signature string  `json:"signature,omitempty"`
}

// MovementCompleted tells the game server a user's balance picture changed.
func (n *Notifier) MovementCompleted(ctx context.Context, userID, kind string, amountSol float64, signature string) {
	if !n.Enabled() {
		return
	}
	body, _ := json.Marshal(event{UserID: userID, Event: kind, AmountSol: amountSol, Signature: signature})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("[GameState] build notify request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("[GameState] notify failed (user=%s event=%s): %v", userID, kind, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("[GameState] notify rejected (user=%s event=%s): %d", userID, kind, resp.StatusCode)
	}
}
