package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/launchwatch/engine/internal/store"
)

const (
	// DefaultAPIURL is the Discord REST base
	DefaultAPIURL = "https://discord.com/api/v10"

	maxErrorBody = 300
)

// Discord error codes that mean the target is gone
const (
	codeUnknownChannel = 10003
	codeUnknownMessage = 10008
)

// Discord posts alerts through the Discord REST API with a bot token.
type Discord struct {
	baseURL string
	token   string
	client  *http.Client
	now     func() time.Time
}

// NewDiscord creates a Discord sink.
func NewDiscord(baseURL, token string, timeout time.Duration) *Discord {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Discord{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

type createMessage struct {
	Content          string            `json:"content,omitempty"`
	Embeds           []embed           `json:"embeds"`
	MessageReference *messageReference `json:"message_reference,omitempty"`
	AllowedMentions  allowedMentions   `json:"allowed_mentions"`
}

type messageReference struct {
	MessageID       string `json:"message_id"`
	FailIfNotExists bool   `json:"fail_if_not_exists"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}

type messageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type currentUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// Verify checks the bot token against /users/@me.
func (d *Discord) Verify(ctx context.Context) error {
	var user currentUser
	if err := d.do(ctx, http.MethodGet, "/users/@me", nil, &user); err != nil {
		return fmt.Errorf("verify discord credentials: %w", err)
	}
	slog.Info("discord_verified", "user", user.Username, "id", user.ID, "bot", user.Bot)
	return nil
}

// PostAdmission posts the admission embed to channelID.
func (d *Discord) PostAdmission(ctx context.Context, channelID string, a Admission) (store.AlertRef, error) {
	msg := createMessage{
		Embeds: []embed{admissionEmbed(a, d.now())},
	}

	var resp messageResponse
	if err := d.do(ctx, http.MethodPost, channelPath(channelID), msg, &resp); err != nil {
		return store.AlertRef{}, fmt.Errorf("post admission: %w", err)
	}

	if resp.ChannelID == "" {
		resp.ChannelID = channelID
	}
	return store.AlertRef{ChannelID: resp.ChannelID, MessageID: resp.ID}, nil
}

// PostGainUpdate replies to the admission alert with a gain update.
func (d *Discord) PostGainUpdate(ctx context.Context, ref store.AlertRef, u GainUpdate) error {
	if err := d.reply(ctx, ref, gainEmbed(u)); err != nil {
		return fmt.Errorf("post gain update: %w", err)
	}
	return nil
}

// PostRugAlert replies to the admission alert with a rug notice.
func (d *Discord) PostRugAlert(ctx context.Context, ref store.AlertRef, name string) error {
	if err := d.reply(ctx, ref, rugEmbed(name)); err != nil {
		return fmt.Errorf("post rug alert: %w", err)
	}
	return nil
}

// reply posts e as a reply to ref. A deleted parent message degrades to a
// plain post in the same channel.
func (d *Discord) reply(ctx context.Context, ref store.AlertRef, e embed) error {
	if ref.IsZero() {
		return ErrTargetGone
	}

	msg := createMessage{
		Embeds: []embed{e},
		MessageReference: &messageReference{
			MessageID:       ref.MessageID,
			FailIfNotExists: false,
		},
	}
	return d.do(ctx, http.MethodPost, channelPath(ref.ChannelID), msg, nil)
}

func channelPath(channelID string) string {
	return "/channels/" + url.PathEscape(channelID) + "/messages"
}

// do sends a JSON request and decodes the response into out when non-nil.
func (d *Discord) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+d.token)
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/launchwatch/engine, 1.0)")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode failed: %w", err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound,
		apiErr.Code == codeUnknownChannel,
		apiErr.Code == codeUnknownMessage:
		return fmt.Errorf("%w: %s", ErrTargetGone, apiErr.Message)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
}
