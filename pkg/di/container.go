package di

import (
	"github.com/goliatone/go-querystate/cache"
	"github.com/goliatone/go-querystate/internal/cacheinfra"
	"github.com/goliatone/go-querystate/logging"
	"github.com/goliatone/go-querystate/querystate"
	"github.com/goliatone/go-querystate/reconcile"
	"github.com/goliatone/go-querystate/record"
	"github.com/goliatone/go-querystate/session"
	"github.com/goliatone/go-querystate/transport"
)

// Container provides dependency injection for the query state stack.
// It owns one result cache, one cached transport and one session, and provides
// factory methods for the typed stores and writers built on them.
type Container struct {
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	config        cacheinfra.Config
	transport     *transport.Cached
	session       *session.Session
	sink          logging.Sink
}

// Option configures a Container.
type Option func(*Container)

// WithSink sets the sink shared by the session, its stores and its writers.
func WithSink(sink logging.Sink) Option {
	return func(c *Container) {
		c.sink = sink
	}
}

// NewContainer creates a new DI container around base with the provided cache
// configuration. The cache service uses the sturdyc adapter and the default key
// serializer; base is wrapped in a transport.Cached before the session sees it.
func NewContainer(config cacheinfra.Config, base transport.Transport, opts ...Option) (*Container, error) {
	cacheService, err := cacheinfra.NewSturdycService(config)
	if err != nil {
		return nil, err
	}

	c := &Container{
		cacheService:  cacheService,
		keySerializer: cache.NewDefaultKeySerializer(),
		config:        config,
		sink:          logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.transport = transport.NewCached(base, c.cacheService, c.keySerializer)
	c.session = session.New(c.transport, session.WithSink(c.sink))
	return c, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
func NewContainerWithDefaults(base transport.Transport, opts ...Option) (*Container, error) {
	return NewContainer(cacheinfra.DefaultConfig(), base, opts...)
}

// CacheService returns the singleton cache service instance.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cacheinfra.Config {
	return c.config
}

// Transport returns the cached transport every query goes through.
func (c *Container) Transport() *transport.Cached {
	return c.transport
}

// Session returns the singleton session. Sign it in before expecting data.
func (c *Container) Session() *session.Session {
	return c.session
}

func (c *Container) Sink() logging.Sink {
	return c.sink
}

// NewStore creates a query state store for records of type R on the container's session.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewStore[Todo](container, querystate.WithName("todos"))
func NewStore[R record.Remote](container *Container, opts ...querystate.StoreOption) *querystate.Store[R] {
	opts = append([]querystate.StoreOption{querystate.WithSink(container.sink)}, opts...)
	return querystate.NewStore[R](container.session, opts...)
}

// NewWriter creates a writer for records of type R on the container's session.
func NewWriter[R record.Remote](container *Container) *reconcile.Writer[R] {
	return reconcile.NewWriter[R](container.session, reconcile.WithSink(container.sink))
}
