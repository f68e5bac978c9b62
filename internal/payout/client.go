package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/logger"
)

// Client 移动支付出款服务客户端。发起接口以reference幂等，
// 同一reference重复发起不会重复出款。
type Client struct {
	baseUrl    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 创建出款客户端
func NewClient(cfg config.PayoutConfig) *Client {
	return &Client{
		baseUrl: cfg.BaseUrl,
		apiKey:  cfg.ApiKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// initiateRequest 出款发起请求体
type initiateRequest struct {
	Amount      float64 `json:"amount"`
	Destination string  `json:"destination"`
	Reference   string  `json:"reference"`
}

// initiateResponse 出款发起响应体
type initiateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// InitiateWithdrawal 发起一笔移动支付出款，返回出款服务的受理状态
func (c *Client) InitiateWithdrawal(ctx context.Context, amount float64, destination, reference string) (string, error) {
	body, err := json.Marshal(initiateRequest{
		Amount:      amount,
		Destination: destination,
		Reference:   reference,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+"/v1/withdrawals", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("出款服务请求失败: %w", err)
	}
	defer resp.Body.Close()

	var result initiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode payout response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("Payout service rejected withdrawal %s: %d %s", reference, resp.StatusCode, result.Message)
		return "", errors.New("出款服务拒绝: " + result.Message)
	}

	logger.Info("Payout initiated for reference %s: %s", reference, result.Status)
	return result.Status, nil
}
