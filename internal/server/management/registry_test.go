package management

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
)

type fakeAcceptor struct {
	sessions float64
}

func (f *fakeAcceptor) Attributes() map[string]any {
	return map[string]any{"sessions": f.sessions}
}

var fakeDesc = prometheus.NewDesc("exsim_engine_sessions", "Sessions.", nil, nil)

func (f *fakeAcceptor) Describe(ch chan<- *prometheus.Desc) { ch <- fakeDesc }

func (f *fakeAcceptor) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(fakeDesc, prometheus.GaugeValue, f.sessions)
}

func TestRegistry_RegisterName(t *testing.T) {
	r := NewRegistry("", nil, nil)

	name, err := r.Register(&fakeAcceptor{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !strings.HasPrefix(name, "exsim:type=Connector,role=Acceptor,id=") {
		t.Errorf("name = %q", name)
	}
	id := strings.TrimPrefix(name, "exsim:type=Connector,role=Acceptor,id=")
	if len(id) != 26 {
		t.Errorf("id %q should be a 26 character ULID", id)
	}

	other, err := r.Register(&fakeAcceptor{})
	if err != nil {
		t.Fatalf("Register() second object error = %v", err)
	}
	if other == name {
		t.Error("two objects must get distinct names")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry("test", nil, nil)
	obj := &fakeAcceptor{}

	if _, err := r.Register(obj); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, err := r.Register(obj)
	if !errors.Is(err, domain.ErrRegistration) {
		t.Errorf("duplicate Register() error = %v, want ErrRegistration", err)
	}

	if _, err := r.Register(nil); !errors.Is(err, domain.ErrRegistration) {
		t.Errorf("Register(nil) error = %v, want ErrRegistration", err)
	}

	// Non-comparable objects are accepted without the duplicate check.
	if _, err := r.Register(map[string]int{}); err != nil {
		t.Errorf("Register(map) error = %v", err)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry("test", nil, nil)
	name, _ := r.Register(&fakeAcceptor{})

	if err := r.Unregister(name); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if _, ok := r.Get(name); ok {
		t.Error("object should be gone after Unregister")
	}
	if err := r.Unregister(name); !errors.Is(err, domain.ErrRegistration) {
		t.Errorf("second Unregister() error = %v, want ErrRegistration", err)
	}
}

func TestRegistry_Collectors(t *testing.T) {
	prom := prometheus.NewRegistry()
	r := NewRegistry("test", prom, nil)

	a, b := &fakeAcceptor{sessions: 2}, &fakeAcceptor{sessions: 3}
	nameA, err := r.Register(a)
	if err != nil {
		t.Fatalf("Register(a) error = %v", err)
	}
	if _, err := r.Register(b); err != nil {
		t.Fatalf("Register(b) error = %v", err)
	}

	if got := testutil.CollectAndCount(prom, "exsim_engine_sessions"); got != 2 {
		t.Errorf("series = %d, want 2", got)
	}

	if err := r.Unregister(nameA); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if got := testutil.CollectAndCount(prom, "exsim_engine_sessions"); got != 1 {
		t.Errorf("series after Unregister = %d, want 1", got)
	}
}

func TestRegistry_ListAndDescribe(t *testing.T) {
	r := NewRegistry("test", nil, nil)
	n1, _ := r.Register(&fakeAcceptor{sessions: 1})
	n2, _ := r.Register(&fakeAcceptor{sessions: 2})

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List() = %d objects, want 2", len(list))
	}
	if list[0].Name != n1 || list[1].Name != n2 {
		t.Errorf("List() order = %s, %s; want %s, %s", list[0].Name, list[1].Name, n1, n2)
	}
	if list[1].Attributes["sessions"] != float64(2) {
		t.Errorf("attributes = %v", list[1].Attributes)
	}
	if list[0].Type != "*management.fakeAcceptor" {
		t.Errorf("Type = %q", list[0].Type)
	}

	if _, ok := r.Describe("test:type=Connector,role=Acceptor,id=missing"); ok {
		t.Error("Describe() of unknown name should fail")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry("test", prometheus.NewRegistry(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := r.Register(&fakeAcceptor{})
			if err != nil {
				t.Errorf("Register() error = %v", err)
				return
			}
			_ = r.List()
			if err := r.Unregister(name); err != nil {
				t.Errorf("Unregister() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}
