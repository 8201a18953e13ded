package fireblocks

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"custody-wallet-go/internal/provider"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrorResponse is the error body Fireblocks returns on non-2xx responses.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Code       int    `json:"code"`
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("Fireblocks API error (code %d): %s", e.Code, e.Message)
}

type client struct {
	baseURL    string
	apiKey     string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
}

// LoadPrivateKey reads the PEM-encoded RSA key used to sign requests.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read fireblocks secret key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse fireblocks secret key: %w", err)
	}
	return key, nil
}

// do signs and sends a request, decoding a 2xx body into result.
func (c *client) do(ctx context.Context, method, path string, body interface{}, idempotencyKey string, result interface{}) error {
	var reqBodyBytes []byte
	if body != nil {
		var err error
		reqBodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	token, err := c.signJWT(path, reqBodyBytes)
	if err != nil {
		return fmt.Errorf("failed to sign JWT: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Unavailable(Name, err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Unavailable(Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if classified := provider.ClassifyStatus(Name, resp.StatusCode, string(respBodyBytes)); classified != nil {
			return classified
		}
		fbError := ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBodyBytes, &fbError); err == nil && fbError.Message != "" {
			return fbError
		}
		// fallback for unexpected error format
		return fmt.Errorf("unexpected API response (%d): %s", resp.StatusCode, string(respBodyBytes))
	}

	if result != nil {
		if err := json.Unmarshal(respBodyBytes, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

func (c *client) signJWT(uri string, bodyBytes []byte) (string, error) {
	nonce := uuid.New().String()
	now := time.Now().Unix()
	exp := now + 30

	h := sha256.New()
	h.Write(bodyBytes)
	bodyHash := hex.EncodeToString(h.Sum(nil))

	claims := jwt.MapClaims{
		"uri":      uri,
		"nonce":    nonce,
		"iat":      now,
		"exp":      exp,
		"sub":      c.apiKey,
		"bodyHash": bodyHash,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, err := token.SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ---------- payloads ----------

type createVaultAccountRequest struct {
	Name          string `json:"name"`
	CustomerRefId string `json:"customerRefId,omitempty"`
	HiddenOnUI    bool   `json:"hiddenOnUI"`
	AutoFuel      bool   `json:"autoFuel"`
}

type createVaultAccountResponse struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type vaultAssetResponse struct {
	Id        string `json:"id"`
	Address   string `json:"address"`
	Tag       string `json:"tag"`
	Total     string `json:"total"`
	Available string `json:"available"`
}

type depositAddress struct {
	Address string `json:"address"`
	Tag     string `json:"tag"`
}

type addressesResponse struct {
	Addresses []depositAddress `json:"addresses"`
}

type transferPeer struct {
	Type           string          `json:"type"`
	Id             string          `json:"id,omitempty"`
	OneTimeAddress *depositAddress `json:"oneTimeAddress,omitempty"`
}

type createTransactionRequest struct {
	AssetId      string       `json:"assetId"`
	Amount       string       `json:"amount"`
	Source       transferPeer `json:"source"`
	Destination  transferPeer `json:"destination"`
	ExternalTxId string       `json:"externalTxId,omitempty"`
	Note         string       `json:"note,omitempty"`
}

type createTransactionResponse struct {
	Id     string `json:"id"`
	Status string `json:"status"`
}

type transactionResponse struct {
	Id         string      `json:"id"`
	Status     string      `json:"status"`
	SubStatus  string      `json:"subStatus"`
	TxHash     string      `json:"txHash"`
	NetworkFee json.Number `json:"networkFee"`
}
