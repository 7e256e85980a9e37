package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/rulekey"
	"github.com/vk/buildgridgo/internal/serverhealth"
)

// DefaultHealthWindow is the sample window consulted when ranking replicas.
const DefaultHealthWindow = time.Minute

// HTTPCache is the remote tier: a set of redundant replicas speaking a
// plain HTTP contract, GET/PUT /artifacts/<hex fingerprint> with a zip
// payload. Each request goes to the currently healthiest replica; request
// outcomes and latencies feed back into the health registry.
type HTTPCache struct {
	servers []string
	mode    Mode
	client  *resty.Client
	health  *serverhealth.Registry
	window  time.Duration
	now     func() time.Time
}

// NewHTTPCache creates the remote tier over the given replica base URLs.
func NewHTTPCache(servers []string, mode Mode, health *serverhealth.Registry) (*HTTPCache, error) {
	if len(servers) == 0 {
		return nil, errors.New("http cache needs at least one server")
	}
	return &HTTPCache{
		servers: servers,
		mode:    mode,
		client:  resty.New(),
		health:  health,
		window:  DefaultHealthWindow,
		now:     time.Now,
	}, nil
}

// Name implements Cache.
func (c *HTTPCache) Name() string { return "http" }

// Mode implements Cache.
func (c *HTTPCache) Mode() Mode { return c.mode }

// Close releases the underlying HTTP client.
func (c *HTTPCache) Close() error { return c.client.Close() }

// SetHealthWindow overrides the replica ranking window. Non-positive values
// are ignored.
func (c *HTTPCache) SetHealthWindow(window time.Duration) {
	if window > 0 {
		c.window = window
	}
}

func artifactURL(server string, key rulekey.Fingerprint) string {
	return fmt.Sprintf("%s/artifacts/%s", server, key)
}

// Fetch implements Cache. Replicas are tried healthiest-first; a replica
// returning 404 answers authoritatively with a miss, while transport and
// server errors fall through to the next replica.
func (c *HTTPCache) Fetch(ctx context.Context, key rulekey.Fingerprint, destDir string) (FetchResult, error) {
	logger := ctxlog.FromContext(ctx)
	var errs []error
	for _, server := range c.health.Pick(c.servers, c.now(), c.window) {
		tracker := c.health.Tracker(server)
		started := c.now()
		resp, err := c.client.R().SetContext(ctx).Get(artifactURL(server, key))
		if err != nil {
			tracker.ReportRequestError(c.now())
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			logger.Debug("Cache replica unreachable, trying next.", "server", server, "error", err)
			continue
		}
		tracker.ReportPingLatency(c.now(), c.now().Sub(started))

		switch {
		case resp.StatusCode() == http.StatusNotFound:
			tracker.ReportRequestSuccess(c.now())
			observeFetch(c.Name(), Miss)
			return FetchResult{Outcome: Miss}, nil
		case resp.IsSuccess():
			tracker.ReportRequestSuccess(c.now())
			files, err := unpackPayload(resp.Bytes(), destDir)
			if err != nil {
				observeFetch(c.Name(), Error)
				return FetchResult{Outcome: Error}, fmt.Errorf("payload from %s: %w", server, err)
			}
			observeFetch(c.Name(), Hit)
			return FetchResult{Outcome: Hit, Files: files}, nil
		default:
			tracker.ReportRequestError(c.now())
			errs = append(errs, fmt.Errorf("%s: unexpected status %d", server, resp.StatusCode()))
		}
	}
	observeFetch(c.Name(), Error)
	return FetchResult{Outcome: Error}, fmt.Errorf("all cache replicas failed: %w", errors.Join(errs...))
}

// Store implements Cache. The payload goes to the healthiest replica;
// replication between replicas is the server side's business.
func (c *HTTPCache) Store(ctx context.Context, key rulekey.Fingerprint, root string, files []string) error {
	if c.mode == ReadOnly {
		observeStore(c.Name(), "rejected")
		return ErrReadOnly
	}
	payload, err := packPayload(root, files)
	if err != nil {
		observeStore(c.Name(), "error")
		return err
	}

	var errs []error
	for _, server := range c.health.Pick(c.servers, c.now(), c.window) {
		tracker := c.health.Tracker(server)
		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/zip").
			SetBody(payload).
			Put(artifactURL(server, key))
		if err != nil {
			tracker.ReportRequestError(c.now())
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}
		if !resp.IsSuccess() {
			tracker.ReportRequestError(c.now())
			errs = append(errs, fmt.Errorf("%s: unexpected status %d", server, resp.StatusCode()))
			continue
		}
		tracker.ReportRequestSuccess(c.now())
		observeStore(c.Name(), "ok")
		return nil
	}
	observeStore(c.Name(), "error")
	return fmt.Errorf("storing %s: %w", key, errors.Join(errs...))
}
