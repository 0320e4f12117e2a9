package controller_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/address"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/certs"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/certs/certstest"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/controller"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/controller/controllertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*controllertest.Server, *controller.Client) {
	t.Helper()
	pki := certstest.New(t)
	srv := controllertest.New(t, pki)

	client, err := controller.NewClient(controller.Config{
		Credential: pki.Client,
		CAFile:     pki.CACertFile,
	})
	require.NoError(t, err)
	return srv, client
}

func TestRedirect(t *testing.T) {
	srv, client := setup(t)
	srv.SetAssignment("www.cv-staging.corp.arista.io")

	host, err := client.Redirect(context.Background(), srv.URL+address.RedirectorPath, "JPE00000000")
	require.NoError(t, err)
	assert.Equal(t, "www.cv-staging.corp.arista.io", host)
	assert.Equal(t, []string{"JPE00000000"}, srv.Serials())
}

func TestRedirectEmptyCollections(t *testing.T) {
	cases := map[string]any{
		"no assignments": []any{},
		"no clusters": []any{map[string]any{
			"value": map[string]any{"clusters": map[string]any{"values": []any{}}},
		}},
		"no hosts": []any{map[string]any{
			"value": map[string]any{"clusters": map[string]any{"values": []any{
				map[string]any{"hosts": map[string]any{"values": []string{}}},
			}}},
		}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv, client := setup(t)
			srv.SetAssignmentBody(body)

			_, err := client.Redirect(context.Background(), srv.URL+address.RedirectorPath, "JPE00000000")
			assert.ErrorIs(t, err, controller.ErrNoAssignment)
		})
	}
}

func TestRedirectStatusError(t *testing.T) {
	srv, client := setup(t)
	srv.SetRedirectStatus(http.StatusServiceUnavailable)

	_, err := client.Redirect(context.Background(), srv.URL+address.RedirectorPath, "JPE00000000")
	var statusErr *controller.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Status)
}

func TestFetchScript(t *testing.T) {
	srv, client := setup(t)
	srv.SetScript("#!/bin/sh\necho configured\n")

	dest := filepath.Join(t.TempDir(), "bootstrap-script")
	require.NoError(t, os.WriteFile(dest, []byte("stale content from a previous run that is longer"), 0644))

	headers := map[string]string{
		"X-Arista-Serial":    "JPE00000000",
		"X-Arista-SecureZtp": "True",
	}
	err := client.FetchScript(context.Background(), srv.URL+address.DefaultBootstrapPath, headers, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho configured\n", string(data))

	got := srv.Headers()
	assert.Equal(t, "JPE00000000", got.Get("X-Arista-Serial"))
	assert.Equal(t, "True", got.Get("X-Arista-SecureZtp"))
}

func TestFetchScriptNon2xxIsFatal(t *testing.T) {
	srv, client := setup(t)
	srv.SetBootstrapStatus(http.StatusNotFound)

	dest := filepath.Join(t.TempDir(), "bootstrap-script")
	err := client.FetchScript(context.Background(), srv.URL+address.DefaultBootstrapPath, nil, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "device not provisioned")
	assert.NoFileExists(t, dest)
}

func TestClientWithoutTrustedCAFails(t *testing.T) {
	pki := certstest.New(t)
	srv := controllertest.New(t, pki)

	client, err := controller.NewClient(controller.Config{Credential: pki.Client})
	require.NoError(t, err)

	err = client.FetchScript(context.Background(), srv.URL+address.DefaultBootstrapPath, nil, filepath.Join(t.TempDir(), "s"))
	assert.Error(t, err)
	assert.Equal(t, 0, srv.Fetches())
}

func TestServerRejectsUntrustedClient(t *testing.T) {
	pki := certstest.New(t)
	srv := controllertest.New(t, pki)
	other := certstest.New(t)

	client, err := controller.NewClient(controller.Config{Credential: other.Client, CAFile: pki.CACertFile})
	require.NoError(t, err)

	err = client.FetchScript(context.Background(), srv.URL+address.DefaultBootstrapPath, nil, filepath.Join(t.TempDir(), "s"))
	assert.Error(t, err)
	assert.Equal(t, 0, srv.Fetches())
}

func TestNewClientErrors(t *testing.T) {
	pki := certstest.New(t)

	_, err := controller.NewClient(controller.Config{Credential: certs.Credential{CertFile: "/nonexistent", KeyFile: "/nonexistent"}})
	assert.Error(t, err)

	_, err = controller.NewClient(controller.Config{Credential: pki.Client, Proxy: "http://[::1"})
	assert.Error(t, err)
}
