package sender

import (
	"Courier/internal/api/config"
	"Courier/internal/model"
	"Courier/internal/pkg/userclient"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ProfileLookup 获取接收者联系方式
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID string) (*userclient.Profile, error)
}

// HTTPSender 通过服务商 HTTP 接口发送邮件、短信与推送
type HTTPSender struct {
	channel  string
	cfg      config.HTTPProviderConfig
	client   *resty.Client
	profiles ProfileLookup
}

func NewHTTPSender(channel string, cfg config.HTTPProviderConfig, profiles ProfileLookup) *HTTPSender {
	client := resty.New().
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.ApiKey)
	return &HTTPSender{channel: channel, cfg: cfg, client: client, profiles: profiles}
}

func (s *HTTPSender) Channel() string {
	return s.channel
}

func (s *HTTPSender) Send(ctx context.Context, msg *Message) error {
	if s.cfg.URL == "" {
		return Permanent(fmt.Errorf("%s provider not configured", s.channel))
	}

	body, err := s.buildBody(ctx, msg)
	if err != nil {
		return err
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", msg.NotificationID+":"+s.channel).
		SetBody(body).
		Post(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("%s provider request: %w", s.channel, err)
	}
	return classifyStatus(s.channel, resp)
}

func (s *HTTPSender) buildBody(ctx context.Context, msg *Message) (map[string]any, error) {
	switch s.channel {
	case model.ChannelPush:
		return map[string]any{
			"user_id":    msg.RecipientID,
			"title":      msg.Title,
			"body":       msg.Body,
			"priority":   msg.Priority,
			"action_url": msg.ActionURL,
			"data":       msg.Data,
		}, nil
	case model.ChannelEmail, model.ChannelSMS:
	default:
		return nil, Permanent(fmt.Errorf("unsupported channel %s", s.channel))
	}

	profile, err := s.profiles.GetProfile(ctx, msg.RecipientID)
	if err != nil {
		if errors.Is(err, userclient.ErrUserNotFound) {
			return nil, Permanent(err)
		}
		return nil, fmt.Errorf("lookup recipient: %w", err)
	}

	if s.channel == model.ChannelEmail {
		if profile.Email == "" {
			return nil, Permanent(errors.New("recipient has no email address"))
		}
		text := msg.Body
		if msg.ActionURL != nil {
			text += "\n\n" + *msg.ActionURL
		}
		return map[string]any{
			"from":    s.cfg.From,
			"to":      profile.Email,
			"subject": msg.Title,
			"text":    text,
		}, nil
	}

	if profile.Phone == "" {
		return nil, Permanent(errors.New("recipient has no phone number"))
	}
	return map[string]any{
		"from": s.cfg.From,
		"to":   profile.Phone,
		"body": msg.Title + ": " + msg.Body,
	}, nil
}

// classifyStatus 4xx 视为永久失败 (408/429 除外), 其余非 2xx 可重试
func classifyStatus(channel string, resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	err := fmt.Errorf("%s provider responded %d: %s", channel, resp.StatusCode(), truncate(resp.String(), 200))
	code := resp.StatusCode()
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
