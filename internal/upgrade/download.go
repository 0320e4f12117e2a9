package upgrade

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

const defaultS3Region = "us-east-1"

// download fetches rawURL into dest. dest is only replaced once the whole
// image has arrived.
func (s *Service) download(ctx context.Context, rawURL, dest string) error {
	src, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid image url: %w", err)
	}

	part := dest + ".part"
	f, err := os.OpenFile(part, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer os.Remove(part)

	var n int64
	switch src.Scheme {
	case "http", "https":
		n, err = s.downloadHTTP(ctx, src, f)
	case "s3":
		n, err = s.downloadS3(ctx, src, f)
	default:
		err = fmt.Errorf("unsupported image url scheme %q", src.Scheme)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("downloaded image from %s is empty", src.Redacted())
	}

	if err := os.Rename(part, dest); err != nil {
		return fmt.Errorf("failed to install image: %w", err)
	}
	slog.Info("Downloaded image", "url", src.Redacted(), "path", dest, "bytes", n)
	return nil
}

func (s *Service) downloadHTTP(ctx context.Context, src *url.URL, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("image download from %s failed: unexpected status %d", src.Redacted(), resp.StatusCode)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("image download interrupted: %w", err)
	}
	return n, nil
}

// downloadS3 handles s3://bucket/key[?region=...&endpoint=...]. Credentials
// come from the usual AWS environment and shared config chain.
func (s *Service) downloadS3(ctx context.Context, src *url.URL, w io.WriterAt) (int64, error) {
	bucket := src.Host
	key := strings.TrimPrefix(src.Path, "/")
	if bucket == "" || key == "" {
		return 0, fmt.Errorf("s3 image url needs a bucket and a key")
	}

	query := src.Query()
	region := query.Get("region")
	if region == "" {
		region = s.config.S3Region
	}
	if region == "" {
		region = defaultS3Region
	}

	cfg := aws.Config{
		Region:     aws.String(region),
		HTTPClient: s.httpClient,
	}
	if endpoint := query.Get("endpoint"); endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to create AWS session: %w", err)
	}

	downloader := s3manager.NewDownloader(sess)
	n, err := downloader.DownloadWithContext(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	return n, nil
}
