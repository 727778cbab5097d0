// Package webhook posts notifications as Discord-compatible embed payloads.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"feedbridge/internal/transport"
	logx "feedbridge/pkg/logx"
)

// Discord embed limits, in runes.
const (
	titleLimit       = 256
	descriptionLimit = 4096
	footerLimit      = 2048
)

type Config struct {
	URL       string
	Username  string
	AvatarURL string
	Timeout   time.Duration
}

type Sender struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("webhook url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Sender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With(logx.String("comp", "webhook")),
	}, nil
}

func (s *Sender) Name() string { return "webhook" }

type payload struct {
	Content   string  `json:"content,omitempty"`
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// Payload builds the JSON body for n.
func (s *Sender) Payload(n transport.Notification) ([]byte, error) {
	e := embed{
		Title:       transport.Truncate(n.Title, titleLimit),
		Description: transport.Truncate(n.Body, descriptionLimit),
		URL:         n.URL,
		Color:       n.Color,
	}
	if !n.Timestamp.IsZero() {
		e.Timestamp = n.Timestamp.UTC().Format(time.RFC3339)
	}
	if n.MediaRef != "" {
		e.Image = &embedImage{URL: n.MediaRef}
	}
	if n.Footer != "" {
		e.Footer = &embedFooter{Text: transport.Truncate(n.Footer, footerLimit)}
	}
	return json.Marshal(payload{
		Content:   n.Mention,
		Username:  s.cfg.Username,
		AvatarURL: s.cfg.AvatarURL,
		Embeds:    []embed{e},
	})
}

func (s *Sender) Send(ctx context.Context, n transport.Notification) error {
	body, err := s.Payload(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		return fmt.Errorf("webhook: http %d (retry after %s): %s", resp.StatusCode, ra, strings.TrimSpace(string(msg)))
	}
	return fmt.Errorf("webhook: http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
