// Package controller talks to the controller's redirector and bootstrap
// endpoints over mutually authenticated HTTPS.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/certs"
)

const (
	DefaultTimeout    = 60 * time.Second
	maxErrorBodyBytes = 1024
)

var ErrNoAssignment = errors.New("redirector returned no assignment")

type Config struct {
	Credential         certs.Credential
	Proxy              string
	Timeout            time.Duration
	CAFile             string
	InsecureSkipVerify bool
}

type Client struct {
	httpClient *http.Client
}

func NewClient(config Config) (*Client, error) {
	tlsConfig, err := certs.ClientTLSConfig(config.Credential, config.CAFile, "", config.InsecureSkipVerify)
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	if config.Proxy != "" {
		proxyURL, err := url.Parse(config.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", config.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient: &http.Client{
			Transport: loggingRoundTripper{transport: transport},
			Timeout:   timeout,
		},
	}, nil
}

type redirectRequest struct {
	Key struct {
		SystemID string `json:"system_id"`
	} `json:"key"`
}

type assignment struct {
	Value struct {
		Clusters struct {
			Values []struct {
				Hosts struct {
					Values []string `json:"values"`
				} `json:"hosts"`
			} `json:"values"`
		} `json:"clusters"`
	} `json:"value"`
}

// Redirect asks the redirector which cluster the device with the given serial
// number is assigned to and returns the first host of the first cluster.
func (c *Client) Redirect(ctx context.Context, redirectorURL, serial string) (string, error) {
	var body redirectRequest
	body.Key.SystemID = serial
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, redirectorURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create redirector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("redirector request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var assignments []assignment
	if err := json.NewDecoder(resp.Body).Decode(&assignments); err != nil {
		return "", fmt.Errorf("failed to decode redirector response: %w", err)
	}
	if len(assignments) == 0 {
		return "", ErrNoAssignment
	}
	clusters := assignments[0].Value.Clusters.Values
	if len(clusters) == 0 || len(clusters[0].Hosts.Values) == 0 || clusters[0].Hosts.Values[0] == "" {
		return "", ErrNoAssignment
	}
	return clusters[0].Hosts.Values[0], nil
}

// FetchScript downloads the bootstrap script to dest, replacing any previous
// content.
func (c *Client) FetchScript(ctx context.Context, endpoint string, headers map[string]string, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bootstrap request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create script file: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write script file: %w", err)
	}

	slog.Info("Bootstrap script fetched and stored on disk", "path", dest, "bytes", n)
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &StatusError{
		URL:    resp.Request.URL.String(),
		Status: resp.StatusCode,
		Body:   string(bytes.TrimSpace(body)),
	}
}

type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.URL, e.Status, e.Body)
}
