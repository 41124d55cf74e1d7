package yookassa

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rvinnie/yookassa-sdk-go/yookassa"
	yoocommon "github.com/rvinnie/yookassa-sdk-go/yookassa/common"
	yoopayment "github.com/rvinnie/yookassa-sdk-go/yookassa/payment"

	"remna-shop/internal/gateways"
)

// client wraps the YooKassa SDK.
type client struct {
	sdk       *yookassa.Client
	logger    *slog.Logger
	returnURL string
}

func newClient(shopID, secretKey, returnURL string, logger *slog.Logger) *client {
	return &client{
		sdk:       yookassa.NewClient(shopID, secretKey),
		logger:    logger,
		returnURL: returnURL,
	}
}

func (c *client) createPayment(amountMinor int64, currency, description string, metadata map[string]string) (*yoopayment.Payment, error) {
	idempotenceKey := fmt.Sprintf("%s_%d", uuid.New().String(), time.Now().Unix())

	p := &yoopayment.Payment{
		Amount: &yoocommon.Amount{
			Value:    gateways.MinorToDecimal(amountMinor),
			Currency: currency,
		},
		Confirmation: &yoopayment.Redirect{
			Type:      yoopayment.TypeRedirect,
			ReturnURL: c.returnURL,
		},
		Description: description,
		Metadata:    metadata,
		Capture:     true,
	}

	handler := yookassa.NewPaymentHandler(c.sdk).WithIdempotencyKey(idempotenceKey)
	result, err := handler.CreatePayment(p)
	if err != nil {
		return nil, fmt.Errorf("yookassa create payment: %w", err)
	}

	c.logger.Debug("yookassa payment created", "yookassa_id", result.ID, "status", result.Status)
	return result, nil
}

func (c *client) findPayment(externalID string) (*yoopayment.Payment, error) {
	handler := yookassa.NewPaymentHandler(c.sdk)
	result, err := handler.FindPayment(externalID)
	if err != nil {
		return nil, fmt.Errorf("yookassa find payment: %w", err)
	}
	return result, nil
}

// confirmationURL extracts the redirect URL from a created payment. The SDK
// types Confirmation as interface{} and sometimes hands back a raw map.
func confirmationURL(p *yoopayment.Payment) string {
	if p.Confirmation == nil {
		return ""
	}

	if redirect, ok := p.Confirmation.(*yoopayment.Redirect); ok {
		return redirect.ConfirmationURL
	}

	if confMap, ok := p.Confirmation.(map[string]interface{}); ok {
		if url, exists := confMap["confirmation_url"].(string); exists {
			return url
		}
	}

	return ""
}
