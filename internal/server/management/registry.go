package management

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
)

// DefaultDomain is the object name domain used by exsim.
const DefaultDomain = "exsim"

// Attributer is implemented by objects that describe themselves.
type Attributer interface {
	Attributes() map[string]any
}

// ObjectInfo is a snapshot of one registered object.
type ObjectInfo struct {
	Name         string         `json:"name" yaml:"name"`
	Type         string         `json:"type" yaml:"type"`
	RegisteredAt time.Time      `json:"registered_at" yaml:"registered_at"`
	Attributes   map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

type entry struct {
	name         string
	obj          any
	registeredAt time.Time
	collector    prometheus.Collector
}

// Registry holds the managed objects.
type Registry struct {
	domain  string
	prom    prometheus.Registerer
	logger  *slog.Logger
	now     func() time.Time
	entropy io.Reader

	mu      sync.RWMutex
	objects map[string]*entry
}

// NewRegistry creates a registry. prom may be nil, in which case no
// collectors are published.
func NewRegistry(domainName string, prom prometheus.Registerer, logger *slog.Logger) *Registry {
	if domainName == "" {
		domainName = DefaultDomain
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		domain:  domainName,
		prom:    prom,
		logger:  logger,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
		objects: make(map[string]*entry),
	}
}

// Register publishes obj and returns its object name.
//
// Registering the same object twice fails with ErrRegistration, as does a
// collector the metrics registry refuses.
func (r *Registry) Register(obj any) (string, error) {
	if obj == nil {
		return "", domain.ErrRegistration.WithDetails("cannot register nil object")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if reflect.TypeOf(obj).Comparable() {
		for _, e := range r.objects {
			if reflect.TypeOf(e.obj) == reflect.TypeOf(obj) && e.obj == obj {
				return "", domain.ErrRegistration.WithDetailsf("object already registered as %s", e.name)
			}
		}
	}

	now := r.now()
	id, err := ulid.New(ulid.Timestamp(now), r.entropy)
	if err != nil {
		return "", domain.ErrRegistration.WithDetails("generate object id").Wrap(err)
	}
	name := fmt.Sprintf("%s:type=Connector,role=Acceptor,id=%s", r.domain, id)

	e := &entry{name: name, obj: obj, registeredAt: now}
	if c, ok := obj.(prometheus.Collector); ok && r.prom != nil {
		if err := r.registerer(name).Register(c); err != nil {
			return "", domain.ErrRegistration.WithDetailsf("publish metrics for %s", name).Wrap(err)
		}
		e.collector = c
	}

	r.objects[name] = e
	r.logger.Debug("object registered", "name", name, "type", fmt.Sprintf("%T", obj))
	return name, nil
}

// Unregister removes the object registered under name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.objects[name]
	if !ok {
		return domain.ErrRegistration.WithDetailsf("object %s is not registered", name)
	}
	delete(r.objects, name)
	if e.collector != nil {
		r.registerer(name).Unregister(e.collector)
	}
	r.logger.Debug("object unregistered", "name", name)
	return nil
}

// registerer labels every series of an object with its name so several
// acceptors of the same type can be published side by side.
func (r *Registry) registerer(name string) prometheus.Registerer {
	return prometheus.WrapRegistererWith(prometheus.Labels{"object": name}, r.prom)
}

// Get returns the object registered under name.
func (r *Registry) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.objects[name]
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// Describe returns a snapshot of the object registered under name.
func (r *Registry) Describe(name string) (ObjectInfo, bool) {
	r.mu.RLock()
	e, ok := r.objects[name]
	r.mu.RUnlock()
	if !ok {
		return ObjectInfo{}, false
	}
	return describe(e), true
}

// List returns snapshots of all objects sorted by name.
func (r *Registry) List() []ObjectInfo {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.objects))
	for _, e := range r.objects {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	out := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, describe(e))
	}
	return out
}

// Len returns the number of registered objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// describe runs outside the registry lock: Attributes may take the
// object's own locks.
func describe(e *entry) ObjectInfo {
	info := ObjectInfo{
		Name:         e.name,
		Type:         fmt.Sprintf("%T", e.obj),
		RegisteredAt: e.registeredAt,
	}
	if a, ok := e.obj.(Attributer); ok {
		info.Attributes = a.Attributes()
	}
	return info
}
