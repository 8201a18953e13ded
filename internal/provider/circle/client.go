package circle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"custody-wallet-go/internal/provider"

	"go.uber.org/zap"
)

// APIError is a non-2xx response from Circle.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): code %d: %s", e.StatusCode, e.Code, e.Message)
}

type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func (c *client) post(ctx context.Context, path string, payload interface{}, result interface{}) error {
	return c.request(ctx, http.MethodPost, path, payload, result)
}

func (c *client) get(ctx context.Context, path string, result interface{}) error {
	return c.request(ctx, http.MethodGet, path, nil, result)
}

func (c *client) request(ctx context.Context, method, path string, payload, result interface{}) error {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	zap.L().Debug("Circle API request",
		zap.String("method", method),
		zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Unavailable(Name, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Unavailable(Name, err)
	}

	if resp.StatusCode >= 400 {
		zap.L().Warn("Circle API error",
			zap.Int("status", resp.StatusCode),
			zap.String("path", path),
			zap.String("response", string(bodyBytes)))
		if classified := provider.ClassifyStatus(Name, resp.StatusCode, string(bodyBytes)); classified != nil {
			return classified
		}
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(bodyBytes, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = string(bodyBytes)
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// ---------- response types ----------

type wallet struct {
	Id         string `json:"id"`
	State      string `json:"state"`
	Address    string `json:"address"`
	Blockchain string `json:"blockchain"`
	RefId      string `json:"refId"`
}

type token struct {
	Id         string `json:"id"`
	Symbol     string `json:"symbol"`
	Blockchain string `json:"blockchain"`
	Decimals   int    `json:"decimals"`
}

type tokenBalance struct {
	Token  token  `json:"token"`
	Amount string `json:"amount"`
}

type transfer struct {
	Id    string `json:"id"`
	State string `json:"state"`
}

type transaction struct {
	Id          string `json:"id"`
	State       string `json:"state"`
	TxHash      string `json:"txHash"`
	Blockchain  string `json:"blockchain"`
	NetworkFee  string `json:"networkFee"`
	ErrorReason string `json:"errorReason"`
}
