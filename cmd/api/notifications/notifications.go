package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const invalidatedTopic = "/invoices_changed"

type Ntfy struct {
	baseURL string
	enabled bool
	timeout time.Duration
	client  *http.Client
}

// ErrNotificationFailed is returned when ntfy answers with a non 2xx status.
type ErrNotificationFailed struct {
	Topic  string
	Status int
	Body   string
}

func (e *ErrNotificationFailed) Error() string {
	return fmt.Sprintf("error delivering message to topic (%s): status %d: %s", e.Topic, e.Status, e.Body)
}

func NewNtfy(enableNotifications bool, notificationsTimeout time.Duration, notificationsBaseURL string, client *http.Client) *Ntfy {
	if client == nil {
		client = &http.Client{}
	}
	return &Ntfy{
		baseURL: strings.TrimSuffix(notificationsBaseURL, "/"),
		enabled: enableNotifications,
		timeout: notificationsTimeout,
		client:  client,
	}
}

/* Posts a plain text message telling subscribers that the listing at path changed.
Does nothing when notifications are disabled. */
func (ntf *Ntfy) Invalidate(ctx context.Context, path string) error {
	if !ntf.enabled {
		return nil
	}

	if ntf.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ntf.timeout)
		defer cancel()
	}

	topic := ntf.baseURL + invalidatedTopic
	message := fmt.Sprintf("Invoices changed:\nPath: %s", path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, topic, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("error delivering message to topic (%s): %w", topic, err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := ntf.client.Do(req)
	if err != nil {
		return fmt.Errorf("error delivering message to topic (%s): %w", topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ErrNotificationFailed{Topic: topic, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
