package pixelprompt

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eringen/pixelprompt/docstore"
	"github.com/eringen/pixelprompt/engage"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	toggles      *prometheus.CounterVec
	heroToggles  *prometheus.CounterVec
	migrations   *prometheus.CounterVec
	migrated     *prometheus.CounterVec
	remoteErrors *prometheus.CounterVec
	feedPages    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprompt_toggles_total",
			Help: "Like and save toggles by kind, mode and final state.",
		}, []string{"kind", "mode", "state"}),
		heroToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprompt_hero_toggles_total",
			Help: "Hero promotions and demotions by outcome.",
		}, []string{"action", "outcome"}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprompt_migrations_total",
			Help: "Guest preference migrations by outcome.",
		}, []string{"outcome"}),
		migrated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprompt_migrated_records_total",
			Help: "Engagement records written by migrations.",
		}, []string{"kind"}),
		remoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprompt_remote_errors_total",
			Help: "Failed document store calls by operation and kind.",
		}, []string{"op", "kind"}),
		feedPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprompt_feed_pages_total",
			Help: "Public feed page requests by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.toggles,
		m.heroToggles,
		m.migrations,
		m.migrated,
		m.remoteErrors,
		m.feedPages,
	)

	return m
}

// RecordToggle counts a like or save toggle.
func (m *Metrics) RecordToggle(kind string, hosted bool, state string) {
	mode := "guest"
	if hosted {
		mode = "hosted"
	}
	m.toggles.WithLabelValues(kind, mode, state).Inc()
}

// RecordHeroToggle counts a hero flag change.
func (m *Metrics) RecordHeroToggle(enable bool, outcome string) {
	action := "demote"
	if enable {
		action = "promote"
	}
	m.heroToggles.WithLabelValues(action, outcome).Inc()
}

// RecordMigration counts a migration run and the records it wrote.
func (m *Metrics) RecordMigration(r engage.Report, err error) {
	if err != nil {
		m.migrations.WithLabelValues("failed").Inc()
	} else {
		m.migrations.WithLabelValues("ok").Inc()
	}
	m.migrated.WithLabelValues("like").Add(float64(r.Likes))
	m.migrated.WithLabelValues("save").Add(float64(r.Saves))
}

// RecordFeedPage counts a feed page request.
func (m *Metrics) RecordFeedPage(outcome string) {
	m.feedPages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordRemote(op string, err error) {
	if err == nil {
		return
	}
	m.remoteErrors.WithLabelValues(op, docstore.KindOf(err).String()).Inc()
}

// Instrument wraps c so every failing call is counted.
func (m *Metrics) Instrument(c docstore.Client) docstore.Client {
	return &instrumentedClient{Client: c, m: m}
}

// MetricsHandler serves the metrics gathered by g.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type instrumentedClient struct {
	docstore.Client
	m *Metrics
}

func (c *instrumentedClient) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	d, err := c.Client.Get(ctx, collection, id)
	// Reads of absent engagement records are routine.
	if !docstore.IsNotFound(err) {
		c.m.recordRemote("get", err)
	}
	return d, err
}

func (c *instrumentedClient) Query(ctx context.Context, q docstore.Query) (docstore.Page, error) {
	p, err := c.Client.Query(ctx, q)
	c.m.recordRemote("query", err)
	return p, err
}

func (c *instrumentedClient) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id, err := c.Client.Create(ctx, collection, fields)
	c.m.recordRemote("create", err)
	return id, err
}

func (c *instrumentedClient) Set(ctx context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	err := c.Client.Set(ctx, collection, id, fields, merge)
	c.m.recordRemote("set", err)
	return err
}

func (c *instrumentedClient) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	err := c.Client.Update(ctx, collection, id, fields)
	c.m.recordRemote("update", err)
	return err
}

func (c *instrumentedClient) Delete(ctx context.Context, collection, id string) error {
	err := c.Client.Delete(ctx, collection, id)
	c.m.recordRemote("delete", err)
	return err
}

func (c *instrumentedClient) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	s, err := c.Client.Subscribe(ctx, q)
	c.m.recordRemote("subscribe", err)
	return s, err
}
