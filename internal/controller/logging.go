package controller

import (
	"log/slog"
	"net/http"
	"time"
)

type loggingRoundTripper struct {
	transport http.RoundTripper
}

func (lrt loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	res, err := lrt.transport.RoundTrip(req)
	if err != nil {
		slog.Debug("Controller request failed", "method", req.Method, "url", req.URL.String(), "error", err)
		return nil, err
	}
	slog.Debug("Controller request",
		"method", req.Method,
		"url", req.URL.String(),
		"status", res.StatusCode,
		"duration", time.Since(start))
	return res, nil
}
