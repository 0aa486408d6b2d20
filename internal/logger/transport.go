package logger

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport stamps X-Request-ID on outbound calls and logs each round trip.
type Transport struct {
	Base http.RoundTripper
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = RequestIDFrom(r.Context())
	}
	if reqID == "" {
		reqID = uuid.New().String()
	}

	// RoundTrippers must not mutate the caller's request
	r = r.Clone(WithRequestID(r.Context(), reqID))
	r.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	log := FromCtx(r.Context())

	resp, err := t.base().RoundTrip(r)
	if err != nil {
		log.Warn("outbound request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration_ms", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	log.Info("outbound request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration_ms", time.Since(start)),
	)
	return resp, nil
}
