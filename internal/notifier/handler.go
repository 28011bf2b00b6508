// Package notifier turns order events into customer emails through the
// external email service.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/akbansal/sweetshop/internal/domain"
)

type Handler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *Handler) HandleOrderPlaced(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	if event.OwnerEmail == "" {
		h.logger.Warn("order placed event without owner email, skipping", "order_id", event.OrderID)
		return nil
	}

	err := h.sendEmail(ctx, sendEmailRequest{
		To:      event.OwnerEmail,
		Subject: fmt.Sprintf("Order confirmation: %s", event.OrderID),
		Body: fmt.Sprintf("Your order %s with %d item(s) totalling %s has been received and is pending.",
			event.OrderID, len(event.Items), event.Total),
	})
	if err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.Info("confirmation email sent", "order_id", event.OrderID, "to", event.OwnerEmail)
	return nil
}

func (h *Handler) HandleOrderCancelled(ctx context.Context, payload []byte) error {
	var event domain.OrderCancelledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order cancelled event: %w", err)
	}

	if event.OwnerEmail == "" {
		h.logger.Warn("order cancelled event without owner email, skipping", "order_id", event.OrderID)
		return nil
	}

	err := h.sendEmail(ctx, sendEmailRequest{
		To:      event.OwnerEmail,
		Subject: fmt.Sprintf("Order cancelled: %s", event.OrderID),
		Body: fmt.Sprintf("Your order %s has been cancelled and its %d item(s) returned to stock.",
			event.OrderID, len(event.Items)),
	})
	if err != nil {
		h.logger.Error("failed to send cancellation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send cancellation email: %w", err)
	}

	h.logger.Info("cancellation email sent", "order_id", event.OrderID, "to", event.OwnerEmail)
	return nil
}

type sendEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *Handler) sendEmail(ctx context.Context, email sendEmailRequest) error {
	data, err := json.Marshal(email)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
