package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"custody-wallet-go/internal/directory"
	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/provider"
	"custody-wallet-go/internal/store"
	"custody-wallet-go/internal/withdrawal"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxPayloadBytes = 1 << 20

// Service is what the HTTP surface needs from the wallet facade.
type Service interface {
	GetBalanceSummary(ctx context.Context, userId string) (*models.BalanceSummary, error)
	InitiateWithdrawalWithMemo(ctx context.Context, userId, asset, network string, amount decimal.Decimal, destination, memo string) (*models.WithdrawalResult, error)
	HandleProviderWebhook(ctx context.Context, providerName string, payload []byte) models.WebhookAck
	DepositAddress(ctx context.Context, userId, asset, network string) (string, error)
	Notifications(ctx context.Context, userId string, includeConsumed bool) ([]models.NotificationRecord, error)
	MarkNotificationConsumed(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error
}

type withdrawalRequest struct {
	Asset       string          `json:"asset"`
	Network     string          `json:"network"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	Memo        string          `json:"memo,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer returns the router serving the webhook endpoint and the user API.
func NewServer(svc Service) http.Handler {
	s := &server{svc: svc}

	r := mux.NewRouter()
	r.HandleFunc("/webhooks/{provider}", s.webhookHandler).Methods("POST")
	r.HandleFunc("/users/{id}/balances", s.balancesHandler).Methods("GET")
	r.HandleFunc("/users/{id}/withdrawals", s.withdrawalHandler).Methods("POST")
	r.HandleFunc("/users/{id}/addresses/{asset}/{network}", s.addressHandler).Methods("GET")
	r.HandleFunc("/users/{id}/notifications", s.notificationsHandler).Methods("GET")
	r.HandleFunc("/notifications/{id}/consume", s.consumeHandler).Methods("POST")
	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

type server struct {
	svc Service
}

// webhookHandler always acknowledges; providers retry on anything but 2xx.
func (s *server) webhookHandler(rw http.ResponseWriter, r *http.Request) {
	providerName := mux.Vars(r)["provider"]

	payload, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxPayloadBytes))
	if err != nil {
		zap.L().Warn("Failed to read webhook body", zap.String("provider", providerName), zap.Error(err))
		writeJSON(rw, http.StatusOK, models.WebhookAck{Received: true})
		return
	}

	ack := s.svc.HandleProviderWebhook(r.Context(), providerName, payload)
	writeJSON(rw, http.StatusOK, ack)
}

func (s *server) balancesHandler(rw http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.GetBalanceSummary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, summary)
}

func (s *server) withdrawalHandler(rw http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxPayloadBytes)).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := s.svc.InitiateWithdrawalWithMemo(r.Context(), mux.Vars(r)["id"],
		req.Asset, req.Network, req.Amount, req.Destination, req.Memo)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusAccepted, result)
}

func (s *server) addressHandler(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address, err := s.svc.DepositAddress(r.Context(), vars["id"], vars["asset"], vars["network"])
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{
		"asset":   vars["asset"],
		"network": vars["network"],
		"address": address,
	})
}

func (s *server) notificationsHandler(rw http.ResponseWriter, r *http.Request) {
	includeConsumed, _ := strconv.ParseBool(r.URL.Query().Get("include_consumed"))

	notifications, err := s.svc.Notifications(r.Context(), mux.Vars(r)["id"], includeConsumed)
	if err != nil {
		writeError(rw, err)
		return
	}
	if notifications == nil {
		notifications = []models.NotificationRecord{}
	}
	writeJSON(rw, http.StatusOK, notifications)
}

func (s *server) consumeHandler(rw http.ResponseWriter, r *http.Request) {
	if err := s.svc.MarkNotificationConsumed(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (s *server) healthHandler(rw http.ResponseWriter, r *http.Request) {
	if err := s.svc.HealthCheck(r.Context()); err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrUserNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, withdrawal.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, withdrawal.ErrInvalidAmount),
		errors.Is(err, withdrawal.ErrDestinationRequired),
		errors.Is(err, withdrawal.ErrUnsupportedCombination),
		errors.Is(err, directory.ErrNoWalletForNetwork):
		return http.StatusBadRequest
	case errors.Is(err, directory.ErrAddressPending):
		return http.StatusConflict
	case errors.Is(err, provider.ErrProviderUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(rw http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed", zap.Error(err))
	}
	writeJSON(rw, status, errorResponse{Error: err.Error()})
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		zap.L().Debug("Failed to write response", zap.Error(err))
	}
}
