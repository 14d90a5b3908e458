package messaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/fiber/v2/log"
)

// ErrDeliveryFailed wraps every Bot API failure.
var ErrDeliveryFailed = errors.New("messaging: delivery failed")

// TelegramTransport sends through the Telegram Bot API.
type TelegramTransport struct {
	http *resty.Client
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func NewTelegramTransport(cfg Config) *TelegramTransport {
	return &TelegramTransport{
		http: resty.New().
			SetBaseURL(fmt.Sprintf("%s/bot%s", cfg.APIBaseURL, cfg.BotToken)).
			SetTimeout(cfg.Timeout),
	}
}

func (t *TelegramTransport) SendMessage(ctx context.Context, userID, text string) error {
	var out apiResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"chat_id":                  userID,
			"text":                     text,
			"disable_web_page_preview": true,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/sendMessage")
	return checkResponse("sendMessage", resp, err, &out)
}

func (t *TelegramTransport) SendDocument(ctx context.Context, userID string, content []byte, filename string) error {
	var out apiResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"chat_id": userID}).
		SetFileReader("document", filename, bytes.NewReader(content)).
		SetResult(&out).
		SetError(&out).
		Post("/sendDocument")
	if cerr := checkResponse("sendDocument", resp, err, &out); cerr != nil {
		return cerr
	}
	log.Infof("[Telegram] Delivered %s (%d bytes) to %s", filename, len(content), userID)
	return nil
}

func checkResponse(method string, resp *resty.Response, err error, out *apiResponse) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, method, err)
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("%w: %s: status %d: %s", ErrDeliveryFailed, method, resp.StatusCode(), out.Description)
	}
	return nil
}
