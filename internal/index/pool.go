package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"golang.org/x/sync/semaphore"

	"github.com/siftd/sift/internal/config"
)

const (
	// requestTimeout bounds every backend call.
	requestTimeout = 30 * time.Second
	// healthTimeout bounds each cluster-health probe during startup.
	healthTimeout = 5 * time.Second
	// transportRetries is the per-request retry budget inside the client.
	transportRetries = 10
)

// Pool owns the shared Elasticsearch client and the query concurrency
// limiter. The client is created lazily on first use, gated on cluster
// health. With a single runtime scheduler the per-context client map of the
// design collapses to one slot.
type Pool struct {
	settings *config.Settings
	log      *slog.Logger

	mu     sync.Mutex
	client *elasticsearch.Client

	queries *semaphore.Weighted
}

// NewPool creates a pool for the given settings. No connection is made until
// Client is first called.
func NewPool(settings *config.Settings, log *slog.Logger) *Pool {
	return &Pool{
		settings: settings,
		log:      log,
		queries:  semaphore.NewWeighted(int64(settings.QueryConcurrency)),
	}
}

// Client returns the shared client, connecting and health-checking on first
// use. Connection attempts retry with squared backoff; after exhaustion the
// call fails with ErrBackendUnavailable.
func (p *Pool) Client(ctx context.Context) (*elasticsearch.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	var client *elasticsearch.Client
	probe := func() error {
		es, err := p.connect()
		if err != nil {
			// A bad config never becomes healthy by waiting.
			return backoff.Permanent(err)
		}
		if err := p.checkHealth(ctx, es); err != nil {
			p.log.Error("cannot connect to Elasticsearch", "error", err)
			return err
		}
		client = es
		return nil
	}
	if err := backoff.Retry(probe, backoff.WithContext(newSquaredBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	p.client = client
	return p.client, nil
}

// connect builds a client from settings without touching the network.
func (p *Pool) connect() (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Username:             p.settings.ESUsername,
		Password:             p.settings.ESPassword,
		RetryOnStatus:        []int{502, 503, 504, 429},
		MaxRetries:           transportRetries,
		EnableRetryOnTimeout: true,
	}
	if p.settings.ESCloudID != "" {
		cfg.CloudID = p.settings.ESCloudID
	} else {
		cfg.Addresses = []string{p.settings.ESURL}
	}
	if p.settings.ESSniff {
		cfg.DiscoverNodesOnStart = true
		cfg.DiscoverNodesInterval = time.Minute
	}
	if p.settings.ESCACert != "" {
		cert, err := os.ReadFile(p.settings.ESCACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		cfg.CACert = cert
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	return es, nil
}

// checkHealth waits for the cluster to reach at least yellow status.
func (p *Pool) checkHealth(ctx context.Context, es *elasticsearch.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	res, err := es.Cluster.Health(
		es.Cluster.Health.WithContext(ctx),
		es.Cluster.Health.WithWaitForStatus("yellow"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("cluster health probe failed: %s", res.Status())
	}
	return nil
}

// AcquireQuery blocks until a query slot is free. Every search call must
// hold a slot.
func (p *Pool) AcquireQuery(ctx context.Context) error {
	return p.queries.Acquire(ctx, 1)
}

// ReleaseQuery returns a query slot.
func (p *Pool) ReleaseQuery() {
	p.queries.Release(1)
}

// Close detaches and discards the client. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return
	}
	p.log.Info("closing Elasticsearch client")
	p.client = nil
}

// squaredBackOff waits r² seconds for r = 2..8, then stops. This keeps the
// total connection budget at a few minutes while backing off hard on a
// cluster that is still coming up.
type squaredBackOff struct {
	r int
}

func newSquaredBackOff() backoff.BackOff {
	return &squaredBackOff{r: 2}
}

func (b *squaredBackOff) NextBackOff() time.Duration {
	if b.r > 8 {
		return backoff.Stop
	}
	d := time.Duration(b.r*b.r) * time.Second
	b.r++
	return d
}

func (b *squaredBackOff) Reset() {
	b.r = 2
}
