package webhooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"remna-shop/internal/gateways"
	"remna-shop/internal/metrics"
	"remna-shop/internal/stories/topup"
)

// maxBodySize caps callback bodies. The largest legitimate payloads
// (CloudPayments form posts) are well under this.
const maxBodySize = 1 << 20

func (s *Server) handle(adapter gateways.Adapter) http.HandlerFunc {
	provider := adapter.Name()
	cloudPayments := provider == gateways.ProviderCloudPayments

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			s.logger.Error("failed to read webhook body", "provider", provider, "error", err)
			s.reject(w, http.StatusBadRequest, cloudPayments)
			metrics.WebhooksTotal.WithLabelValues(provider, "malformed").Inc()
			return
		}

		var signature string
		if header := adapter.SignatureHeader(); header != "" {
			signature = r.Header.Get(header)
		}
		if !adapter.VerifyWebhook(body, signature) {
			// Security event: either a forged callback or a key mismatch.
			s.logger.Warn("webhook signature verification failed",
				"provider", provider, "remote_addr", r.RemoteAddr)
			s.reject(w, http.StatusUnauthorized, cloudPayments)
			metrics.WebhooksTotal.WithLabelValues(provider, "unauthorized").Inc()
			return
		}

		ev, err := adapter.ParseWebhook(body)
		if err != nil {
			s.logger.Warn("unparseable webhook", "provider", provider, "error", err)
			s.reject(w, http.StatusBadRequest, cloudPayments)
			metrics.WebhooksTotal.WithLabelValues(provider, "malformed").Inc()
			return
		}

		result, err := s.engine.HandleWebhookEvent(r.Context(), provider, ev)
		if err != nil && !errors.Is(err, topup.ErrUnknownUser) {
			s.logger.Error("webhook reconciliation failed",
				"provider", provider, "external_id", ev.ExternalID, "error", err)
			s.fail(w)
			metrics.WebhooksTotal.WithLabelValues(provider, "error").Inc()
			return
		}

		metrics.WebhooksTotal.WithLabelValues(provider, string(result)).Inc()
		s.ack(w, cloudPayments)
	}
}

// ack acknowledges a handled callback. Duplicates and ignorable events get
// the same acknowledgement as first deliveries, which is what stops gateway
// retry storms. CloudPayments expects its own {"code":0} envelope.
func (s *Server) ack(w http.ResponseWriter, cloudPayments bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if cloudPayments {
		_ = json.NewEncoder(w).Encode(map[string]int{"code": 0})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// reject refuses a callback the gateway should not retry as-is.
// CloudPayments reads the decision from the body code, not the HTTP status.
func (s *Server) reject(w http.ResponseWriter, status int, cloudPayments bool) {
	w.Header().Set("Content-Type", "application/json")
	if cloudPayments {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]int{"code": 13})
		return
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error"})
}

// fail signals a transient server-side problem; the gateway will retry.
func (s *Server) fail(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error"})
}
