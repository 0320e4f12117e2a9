// Package controllertest runs a fake controller serving the redirector and
// bootstrap endpoints over mutual TLS.
package controllertest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/address"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/certs/certstest"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type Server struct {
	*httptest.Server

	mu              sync.Mutex
	script          []byte
	bootstrapStatus int
	assignment      any
	redirectStatus  int
	headers         http.Header
	host            string
	serials         []string
	fetches         int
}

// New starts a server whose certificate is issued by pki and which requires
// a client certificate from the same CA.
func New(t testing.TB, pki *certstest.PKI) *Server {
	t.Helper()
	s := &Server{
		script:          []byte("#!/bin/sh\nexit 0\n"),
		bootstrapStatus: http.StatusOK,
		redirectStatus:  http.StatusOK,
	}

	r := gin.New()
	r.POST(address.RedirectorPath, s.redirect)
	r.GET(address.DefaultBootstrapPath, s.bootstrap)

	s.Server = httptest.NewUnstartedServer(r)
	s.Server.TLS = pki.ServerTLSConfig()
	s.Server.StartTLS()
	t.Cleanup(s.Server.Close)
	return s
}

func (s *Server) SetScript(script string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = []byte(script)
}

func (s *Server) SetBootstrapStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootstrapStatus = code
}

// SetAssignment assigns the device to a single cluster with a single host.
func (s *Server) SetAssignment(host string) {
	s.SetAssignmentBody([]any{
		map[string]any{
			"value": map[string]any{
				"clusters": map[string]any{
					"values": []any{
						map[string]any{"hosts": map[string]any{"values": []string{host}}},
					},
				},
			},
		},
	})
}

// SetAssignmentBody sets the raw JSON value returned by the redirector.
func (s *Server) SetAssignmentBody(body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignment = body
}

func (s *Server) SetRedirectStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirectStatus = code
}

// Headers returns the headers of the last bootstrap request.
func (s *Server) Headers() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers.Clone()
}

// Host returns the Host of the last bootstrap request.
func (s *Server) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Serials returns the system IDs sent to the redirector, in order.
func (s *Server) Serials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.serials...)
}

func (s *Server) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *Server) redirect(c *gin.Context) {
	var req struct {
		Key struct {
			SystemID string `json:"system_id"`
		} `json:"key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.serials = append(s.serials, req.Key.SystemID)
	status, body := s.redirectStatus, s.assignment
	s.mu.Unlock()

	if status != http.StatusOK {
		c.JSON(status, gin.H{"error": "redirector unavailable"})
		return
	}
	if body == nil {
		body = []any{}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) bootstrap(c *gin.Context) {
	s.mu.Lock()
	s.headers = c.Request.Header.Clone()
	s.host = c.Request.Host
	s.fetches++
	status, script := s.bootstrapStatus, s.script
	s.mu.Unlock()

	if status != http.StatusOK {
		c.String(status, "device not provisioned")
		return
	}
	c.Data(http.StatusOK, "text/plain", script)
}
