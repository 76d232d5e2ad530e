package data

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/catenarytransit/cypress/internal/biz"
)

// webhook 颜色：成功绿、失败红。
const (
	webhookColorOK   = 0x00ff00
	webhookColorFail = 0xff0000
)

// NewWebhookNotifier Discord 兼容的 webhook 通知器。
func NewWebhookNotifier(url string, logger log.Logger) biz.Notifier {
	return &webhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.NewHelper(logger),
	}
}

type webhookNotifier struct {
	url    string
	client *http.Client
	log    *log.Helper
}

type webhookEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type webhookPayload struct {
	Username string         `json:"username"`
	Embeds   []webhookEmbed `json:"embeds"`
}

// Notify 发送运行事件。失败只记日志，不影响导入。
func (n *webhookNotifier) Notify(ctx context.Context, title, message string, success bool) {
	color := webhookColorOK
	if !success {
		color = webhookColorFail
	}
	payload := webhookPayload{
		Username: "cypress",
		Embeds: []webhookEmbed{{
			Title:       title,
			Description: message,
			Color:       color,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(raw))
	if err != nil {
		n.log.Warnf("webhook request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.client.Do(req)
	if err != nil {
		n.log.Warnf("webhook notification failed: %v", err)
		return
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		n.log.Warnf("webhook notification rejected: %s", res.Status)
	}
}
