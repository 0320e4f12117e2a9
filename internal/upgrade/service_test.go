package upgrade

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const newImage = "new image bytes"

type fakeCLI struct {
	mu       sync.Mutex
	sessions [][]string
	failOn   string
}

func (f *fakeCLI) Run(_ context.Context, commands ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, commands)
	for _, c := range commands {
		if c == f.failOn {
			return []byte("% Error"), errors.New("cli failed")
		}
	}
	return nil, nil
}

// imageServer serves /images/<key> both as plain HTTP and as a path-style S3
// bucket named "images".
func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := gin.New()
	r.GET("/images/*key", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("key"), "/") != "EOS-4.30.swi" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "application/octet-stream", []byte(newImage))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, eosURL string, cli *fakeCLI) (*Service, string) {
	t.Helper()
	flash := t.TempDir()
	svc, err := NewService(cli, Config{EOSURL: eosURL, FlashDir: flash}, "")
	require.NoError(t, err)
	return svc, flash
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestUpgradeWithoutURL(t *testing.T) {
	cli := &fakeCLI{}
	svc, _ := newTestService(t, "", cli)

	err := svc.Upgrade(context.Background())
	assert.ErrorIs(t, err, ErrImageURLMissing)
	assert.Contains(t, err.Error(), "specify eosUrl")
	assert.Empty(t, cli.sessions)
}

func TestUpgradeOverHTTP(t *testing.T) {
	srv := imageServer(t)
	cli := &fakeCLI{}
	svc, flash := newTestService(t, srv.URL+"/images/EOS-4.30.swi", cli)
	require.NoError(t, os.WriteFile(filepath.Join(flash, "EOS.swi"), []byte("old image"), 0644))

	err := svc.Upgrade(context.Background())
	assert.ErrorIs(t, err, ErrRebooting)

	assert.Equal(t, newImage, readFile(t, filepath.Join(flash, "EOS.swi")))
	assert.NoFileExists(t, filepath.Join(flash, "EOS.swi.bak"))
	assert.NoFileExists(t, filepath.Join(flash, "EOS.swi.part"))
	assert.Equal(t, [][]string{
		{"configure", "boot system flash:EOS.swi", "end", "write memory"},
		{"reload now"},
	}, cli.sessions)
}

func TestUpgradeFromS3(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	srv := imageServer(t)
	cli := &fakeCLI{}
	svc, flash := newTestService(t, "s3://images/EOS-4.30.swi?region=eu-west-1&endpoint="+srv.URL, cli)

	err := svc.Upgrade(context.Background())
	assert.ErrorIs(t, err, ErrRebooting)
	assert.Equal(t, newImage, readFile(t, filepath.Join(flash, "EOS.swi")))
	assert.Len(t, cli.sessions, 2)
}

func TestUpgradeRestoresBackupWhenDownloadFails(t *testing.T) {
	srv := imageServer(t)
	cli := &fakeCLI{}
	svc, flash := newTestService(t, srv.URL+"/images/missing.swi", cli)
	require.NoError(t, os.WriteFile(filepath.Join(flash, "EOS.swi"), []byte("old image"), 0644))

	err := svc.Upgrade(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRebooting)
	assert.Contains(t, err.Error(), "404")

	assert.Equal(t, "old image", readFile(t, filepath.Join(flash, "EOS.swi")))
	assert.NoFileExists(t, filepath.Join(flash, "EOS.swi.bak"))
	assert.Empty(t, cli.sessions)
}

func TestUpgradeRestoresBackupWhenBootConfigFails(t *testing.T) {
	srv := imageServer(t)
	cli := &fakeCLI{failOn: "write memory"}
	svc, flash := newTestService(t, srv.URL+"/images/EOS-4.30.swi", cli)
	require.NoError(t, os.WriteFile(filepath.Join(flash, "EOS.swi"), []byte("old image"), 0644))

	err := svc.Upgrade(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRebooting)

	assert.Equal(t, "old image", readFile(t, filepath.Join(flash, "EOS.swi")))
	require.Len(t, cli.sessions, 1)
	assert.NotContains(t, cli.sessions[0], "reload now")
}

func TestUpgradeWithoutPriorImage(t *testing.T) {
	srv := imageServer(t)
	cli := &fakeCLI{}
	svc, flash := newTestService(t, srv.URL+"/images/missing.swi", cli)

	require.Error(t, svc.Upgrade(context.Background()))
	assert.NoFileExists(t, filepath.Join(flash, "EOS.swi"))
	assert.NoFileExists(t, filepath.Join(flash, "EOS.swi.bak"))
}

func TestUpgradeUnsupportedScheme(t *testing.T) {
	cli := &fakeCLI{}
	svc, flash := newTestService(t, "ftp://images.example.com/EOS.swi", cli)
	require.NoError(t, os.WriteFile(filepath.Join(flash, "EOS.swi"), []byte("old image"), 0644))

	err := svc.Upgrade(context.Background())
	assert.ErrorContains(t, err, "unsupported")
	assert.Equal(t, "old image", readFile(t, filepath.Join(flash, "EOS.swi")))
}
