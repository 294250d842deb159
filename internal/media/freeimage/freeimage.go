// Package freeimage hosts product images on freeimage.host.
package freeimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("catalogsync.internal.media.freeimage")

const DefaultEndpoint = "https://freeimage.host/api/1/upload"

var (
	ErrMissingAPIKey     = errors.New("freeimage api key is not configured")
	ErrUnsupportedScheme = errors.New("image url must be http or https")
)

type Config struct {
	Endpoint              string  `json:"endpoint"`
	ApiKey                string  `json:"api_key"`
	ConnectTimeoutSeconds float64 `json:"connect_timeout_seconds"`
	ReadTimeoutSeconds    float64 `json:"read_timeout_seconds"`
	MaxRetries            int     `json:"max_retries"`
	UserAgent             string  `json:"user_agent"`
}

type Client struct {
	http       *resty.Client
	endpoint   string
	apiKey     string
	maxRetries int
	backoff    func(attempt int) time.Duration
}

func seconds(s float64, fallback time.Duration) time.Duration {
	if s <= 0 {
		return fallback
	}
	return time.Duration(s * float64(time.Second))
}

func NewClient(config Config) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}

	client := resty.New()
	client.SetTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: seconds(config.ConnectTimeoutSeconds, 15*time.Second),
		}).DialContext,
	})
	client.SetTimeout(seconds(config.ReadTimeoutSeconds, 60*time.Second))
	if config.UserAgent != "" {
		client.SetHeader("user-agent", config.UserAgent)
	}
	telemetry.InstrumentResty(client, "catalogsync.internal.media.freeimage/http")

	return &Client{
		http:       client,
		endpoint:   config.Endpoint,
		apiKey:     config.ApiKey,
		maxRetries: max(config.MaxRetries, 0),
		backoff: func(attempt int) time.Duration {
			return min(time.Second<<attempt, 5*time.Second)
		},
	}
}

type uploadResponse struct {
	StatusCode int `json:"status_code"`
	Success    *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"success"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
	Image struct {
		URL       string `json:"url"`
		URLViewer string `json:"url_viewer"`
		Thumb     struct {
			URL string `json:"url"`
		} `json:"thumb"`
	} `json:"image"`
}

func (r uploadResponse) entry() (catalog.ImageCacheEntry, error) {
	if r.Error != nil {
		return catalog.ImageCacheEntry{}, fmt.Errorf("freeimage error %d: %s", r.Error.Code, r.Error.Message)
	}
	if r.Success != nil && r.Success.Code != http.StatusOK {
		return catalog.ImageCacheEntry{}, fmt.Errorf("freeimage responded with code %d: %s", r.Success.Code, r.Success.Message)
	}
	if r.Image.URL == "" {
		return catalog.ImageCacheEntry{}, fmt.Errorf("freeimage response is missing the image url")
	}
	return catalog.ImageCacheEntry{
		DirectURL: r.Image.URL,
		ViewerURL: r.Image.URLViewer,
		ThumbURL:  r.Image.Thumb.URL,
	}, nil
}

// UploadBytes uploads an image as a multipart file. The returned entry does
// not carry a hash, callers hash the bytes themselves.
func (c *Client) UploadBytes(ctx context.Context, data []byte, filename string) (catalog.ImageCacheEntry, error) {
	ctx, span := tracer.Start(ctx, "UploadBytes")
	defer span.End()

	if c.apiKey == "" {
		return catalog.ImageCacheEntry{}, ErrMissingAPIKey
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return catalog.ImageCacheEntry{}, ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		entry, retry, err := c.upload(ctx, data, filename)
		if err == nil {
			return entry, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "failed to upload image")
	return catalog.ImageCacheEntry{}, fmt.Errorf("upload after %d attempt(s): %w", c.maxRetries+1, lastErr)
}

// upload makes a single attempt, the multipart body is rebuilt every time
// since its reader is consumed by the request.
func (c *Client) upload(ctx context.Context, data []byte, filename string) (entry catalog.ImageCacheEntry, retry bool, err error) {
	var body uploadResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"key":    c.apiKey,
			"action": "upload",
			"format": "json",
		}).
		SetFileReader("source", filename, bytes.NewReader(data)).
		SetResult(&body).
		SetError(&body).
		Post(c.endpoint)
	if err != nil {
		return catalog.ImageCacheEntry{}, ctx.Err() == nil, err
	}
	if res.StatusCode() >= 500 || res.StatusCode() == http.StatusTooManyRequests {
		return catalog.ImageCacheEntry{}, true, fmt.Errorf("freeimage responded with status %d", res.StatusCode())
	}
	if res.StatusCode() != http.StatusOK {
		if body.Error != nil {
			return catalog.ImageCacheEntry{}, false, fmt.Errorf("freeimage responded with status %d: %s", res.StatusCode(), body.Error.Message)
		}
		return catalog.ImageCacheEntry{}, false, fmt.Errorf("freeimage responded with status %d", res.StatusCode())
	}
	entry, err = body.entry()
	return entry, err != nil, err
}

// Download fetches the original image bytes, redirects are followed.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Download")
	defer span.End()

	u, err := url.Parse(imageURL)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrUnsupportedScheme
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(imageURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if res.IsError() {
		err = fmt.Errorf("download %s: status %d", imageURL, res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(res.Body()) == 0 {
		return nil, fmt.Errorf("download %s: empty body", imageURL)
	}
	return res.Body(), nil
}
