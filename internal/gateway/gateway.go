package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kittipos-w/paygate/internal/handlers/middleware"
	"github.com/kittipos-w/paygate/internal/handlers/render"
	"github.com/kittipos-w/paygate/internal/logger"
)

const HeaderPaymentToken = "X-Payment-Token"

const upstreamTimeout = 10 * time.Second

type redeemer interface {
	RedeemToken(ctx context.Context, tokenID string) (RedeemResult, error)
}

func NewRouter(client redeemer, upstreamAddr string, l logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /premium-data", handlePremiumData(client, upstreamAddr, l))

	return chain(mux,
		middleware.LoggerMiddleware(l),
		processTimeMiddleware(),
	)
}

// handlePremiumData gates the protected resource behind one token redemption.
// Order matters: the token header is checked before any outbound call, a
// declined redemption never reaches the upstream, and an unknown redemption
// outcome is reported as issuer trouble rather than a payment failure.
func handlePremiumData(client redeemer, upstreamAddr string, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenID := r.Header.Get(HeaderPaymentToken)
		if tokenID == "" {
			render.ServiceError(w, "Missing payment token, purchase one at the issuer first", http.StatusPaymentRequired)
			return
		}

		result, err := client.RedeemToken(r.Context(), tokenID)
		if err != nil {
			l.Warn("Redemption outcome unknown", "error", err)
			render.ServiceError(w, "Payment issuer unreachable, try again later", http.StatusServiceUnavailable)
			return
		}

		if !result.Valid {
			render.ServiceError(w, fmt.Sprintf("Payment failed: %s", result.Reason), http.StatusPaymentRequired)
			return
		}

		relayUpstream(w, r, upstreamAddr, l)
	})
}

// relayUpstream forwards the request to the protected resource and relays
// the response unchanged
func relayUpstream(w http.ResponseWriter, r *http.Request, upstreamAddr string, l logger.Logger) {
	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstreamAddr+r.URL.Path, nil)
	if err != nil {
		l.Error("Failed to create upstream request", "error", err)
		render.ServiceError(w, "Upstream service unavailable", http.StatusBadGateway)
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		l.Warn("Upstream not reachable", "error", err)
		render.ServiceError(w, "Upstream service unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close() // nolint:errcheck

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type processTimeWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (w *processTimeWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.Header().Set("X-Process-Time", strconv.FormatFloat(time.Since(w.start).Seconds(), 'f', -1, 64))
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *processTimeWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}

// processTimeMiddleware tags every response with the time spent up to the
// first written byte
func processTimeMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&processTimeWriter{ResponseWriter: w, start: time.Now()}, r)
		})
	}
}
