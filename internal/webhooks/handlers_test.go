package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"remna-shop/internal/gateways"
	"remna-shop/internal/stories/payment"
	"remna-shop/internal/stories/topup"
)

type stubAdapter struct {
	name      string
	sigHeader string
	verifyOK  bool
	parseErr  error
	event     *gateways.WebhookEvent

	gotSignature string
}

func (a *stubAdapter) Name() string  { return a.name }
func (a *stubAdapter) Enabled() bool { return true }

func (a *stubAdapter) CreatePayment(context.Context, gateways.CreateRequest) (*gateways.PaymentHandle, error) {
	return nil, gateways.ErrNotConfigured
}

func (a *stubAdapter) NormalizeStatus(raw string) gateways.Status { return gateways.Status(raw) }

func (a *stubAdapter) ParseWebhook([]byte) (*gateways.WebhookEvent, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	return a.event, nil
}

func (a *stubAdapter) VerifyWebhook(_ []byte, signature string) bool {
	a.gotSignature = signature
	return a.verifyOK
}

func (a *stubAdapter) SignatureHeader() string { return a.sigHeader }

func (a *stubAdapter) PollStatus(context.Context, *payment.Payment) (gateways.Status, error) {
	return "", gateways.ErrPollingUnsupported
}

type stubEngine struct {
	result topup.Result
	err    error
	calls  int
}

func (e *stubEngine) HandleWebhookEvent(context.Context, string, *gateways.WebhookEvent) (topup.Result, error) {
	e.calls++
	return e.result, e.err
}

func newTestServer(adapter gateways.Adapter, engine Engine) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(engine, gateways.NewRegistry(adapter), logger)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestWebhookHandler(t *testing.T) {
	paidEvent := &gateways.WebhookEvent{ExternalID: "inv-1", Status: gateways.StatusPaid}

	tests := []struct {
		name        string
		method      string
		adapter     *stubAdapter
		engine      *stubEngine
		wantCode    int
		wantStatus  string
		wantEngined int
	}{
		{
			name:        "processed",
			method:      http.MethodPost,
			adapter:     &stubAdapter{name: "yookassa", verifyOK: true, event: paidEvent},
			engine:      &stubEngine{result: topup.ResultProcessed},
			wantCode:    http.StatusOK,
			wantStatus:  "ok",
			wantEngined: 1,
		},
		{
			name:        "duplicate acked like first delivery",
			method:      http.MethodPost,
			adapter:     &stubAdapter{name: "yookassa", verifyOK: true, event: paidEvent},
			engine:      &stubEngine{result: topup.ResultDuplicate},
			wantCode:    http.StatusOK,
			wantStatus:  "ok",
			wantEngined: 1,
		},
		{
			name:        "unknown user acked to stop retries",
			method:      http.MethodPost,
			adapter:     &stubAdapter{name: "tribute", verifyOK: true, event: paidEvent},
			engine:      &stubEngine{result: topup.ResultIgnored, err: topup.ErrUnknownUser},
			wantCode:    http.StatusOK,
			wantStatus:  "ok",
			wantEngined: 1,
		},
		{
			name:       "bad signature",
			method:     http.MethodPost,
			adapter:    &stubAdapter{name: "cryptobot", sigHeader: "crypto-pay-api-signature", verifyOK: false},
			engine:     &stubEngine{},
			wantCode:   http.StatusUnauthorized,
			wantStatus: "error",
		},
		{
			name:       "unparseable body",
			method:     http.MethodPost,
			adapter:    &stubAdapter{name: "yookassa", verifyOK: true, parseErr: gateways.ErrUnparseable},
			engine:     &stubEngine{},
			wantCode:   http.StatusBadRequest,
			wantStatus: "error",
		},
		{
			name:        "engine failure retried by gateway",
			method:      http.MethodPost,
			adapter:     &stubAdapter{name: "yookassa", verifyOK: true, event: paidEvent},
			engine:      &stubEngine{result: topup.ResultIgnored, err: errors.New("db locked")},
			wantCode:    http.StatusInternalServerError,
			wantStatus:  "error",
			wantEngined: 1,
		},
		{
			name:     "wrong method",
			method:   http.MethodGet,
			adapter:  &stubAdapter{name: "yookassa", verifyOK: true, event: paidEvent},
			engine:   &stubEngine{},
			wantCode: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(tt.adapter, tt.engine)

			req := httptest.NewRequest(tt.method, "/webhooks/"+tt.adapter.name, strings.NewReader(`{}`))
			if tt.adapter.sigHeader != "" {
				req.Header.Set(tt.adapter.sigHeader, "sig-value")
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.engine.calls != tt.wantEngined {
				t.Errorf("engine calls = %d, want %d", tt.engine.calls, tt.wantEngined)
			}
			if tt.wantStatus != "" {
				body := decodeBody(t, rec)
				if body["status"] != tt.wantStatus {
					t.Errorf("body status = %v, want %q", body["status"], tt.wantStatus)
				}
			}
		})
	}
}

func TestWebhookSignatureHeaderExtraction(t *testing.T) {
	adapter := &stubAdapter{
		name:      "wata",
		sigHeader: "X-Signature",
		verifyOK:  true,
		event:     &gateways.WebhookEvent{ExternalID: "w-1", Status: gateways.StatusPaid},
	}
	srv := newTestServer(adapter, &stubEngine{result: topup.ResultProcessed})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/wata", strings.NewReader(`{}`))
	req.Header.Set("X-Signature", "base64-hmac")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if adapter.gotSignature != "base64-hmac" {
		t.Errorf("signature passed to adapter = %q, want %q", adapter.gotSignature, "base64-hmac")
	}
}

func TestWebhookCloudPaymentsEnvelope(t *testing.T) {
	// CloudPayments reads the decision from the body code and expects
	// HTTP 200 either way.
	tests := []struct {
		name     string
		verifyOK bool
		wantCode float64
	}{
		{name: "accepted", verifyOK: true, wantCode: 0},
		{name: "rejected on bad signature", verifyOK: false, wantCode: 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &stubAdapter{
				name:      gateways.ProviderCloudPayments,
				sigHeader: "Content-HMAC",
				verifyOK:  tt.verifyOK,
				event:     &gateways.WebhookEvent{ExternalID: "cp-1", Status: gateways.StatusPaid},
			}
			srv := newTestServer(adapter, &stubEngine{result: topup.ResultProcessed})

			req := httptest.NewRequest(http.MethodPost, "/webhooks/cloudpayments", strings.NewReader("Amount=100"))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("http status = %d, want 200", rec.Code)
			}
			body := decodeBody(t, rec)
			if body["code"] != tt.wantCode {
				t.Errorf("body code = %v, want %v", body["code"], tt.wantCode)
			}
		})
	}
}
