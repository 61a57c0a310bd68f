package feed

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/renix-codex/feedsync/internal/logger"
	"github.com/renix-codex/feedsync/internal/models"
	"github.com/renix-codex/feedsync/internal/telemetry"
)

//go:embed posts.schema.json
var postsSchemaJSON string

var postsSchema = jsonschema.MustCompileString("posts.schema.json", postsSchemaJSON)

// maxResponseBytes bounds the size of a posts payload.
const maxResponseBytes = 32 << 20

type HTTPCollector struct {
	Client    *http.Client
	SourceURL string

	// Validate checks the payload against the posts schema before decoding.
	Validate bool
}

var _ CollectorPort = (*HTTPCollector)(nil)

func NewHTTPCollector(sourceURL string, timeout time.Duration) *HTTPCollector {
	return &HTTPCollector{
		SourceURL: sourceURL,
		Validate:  true,
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch retrieves the full post list. Every failure is a KindRemoteFetch error.
func (c *HTTPCollector) Fetch(ctx context.Context) ([]models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.collector.fetch", attribute.String("url", c.SourceURL))
	defer span.End()

	posts, err := c.fetch(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, RemoteFetchError("fetch posts", err)
	}
	span.SetAttributes(attribute.Int("posts", len(posts)))
	return posts, nil
}

func (c *HTTPCollector) fetch(ctx context.Context) ([]models.Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SourceURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	if c.Validate {
		if err := validatePosts(body); err != nil {
			return nil, err
		}
	}

	var posts []models.Post
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}

	logger.DebugCtx(ctx, "fetched posts", logger.KeyURL, c.SourceURL,
		logger.KeyCount, len(posts), logger.KeyDuration, logger.Duration(start))
	return posts, nil
}

func validatePosts(body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode posts: %w", err)
	}
	if err := postsSchema.Validate(doc); err != nil {
		return fmt.Errorf("posts payload does not match schema: %w", err)
	}
	return nil
}
