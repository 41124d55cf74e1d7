package cryptobot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"remna-shop/internal/infra/httpclient"
)

type client struct {
	http     *httpclient.Client
	baseURL  string
	apiToken string
}

type apiResponse struct {
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

type invoice struct {
	InvoiceID     int64  `json:"invoice_id"`
	Status        string `json:"status"`
	BotInvoiceURL string `json:"bot_invoice_url"`
	Payload       string `json:"payload"`
}

func (c *client) call(ctx context.Context, method string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	headers := map[string]string{
		"Content-Type":        "application/json",
		"Crypto-Pay-API-Token": c.apiToken,
	}

	status, respBody, err := c.http.Do(ctx, http.MethodPost, c.baseURL+"/api/"+method, payload, headers)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("crypto pay api returned %d: %s", status, respBody)
	}

	var resp apiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("decode crypto pay response: %w", err)
	}
	if !resp.Ok {
		if resp.Error != nil {
			return fmt.Errorf("crypto pay api error %d: %s", resp.Error.Code, resp.Error.Name)
		}
		return fmt.Errorf("crypto pay api error")
	}

	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode crypto pay result: %w", err)
		}
	}
	return nil
}

func (c *client) createInvoice(ctx context.Context, fiat, amount, description, payload string) (*invoice, error) {
	req := map[string]any{
		"currency_type": "fiat",
		"fiat":          fiat,
		"amount":        amount,
		"description":   description,
		"payload":       payload,
	}

	var inv invoice
	if err := c.call(ctx, "createInvoice", req, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *client) getInvoice(ctx context.Context, invoiceID string) (*invoice, error) {
	req := map[string]any{"invoice_ids": invoiceID}

	var result struct {
		Items []invoice `json:"items"`
	}
	if err := c.call(ctx, "getInvoices", req, &result); err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, nil
	}
	return &result.Items[0], nil
}
