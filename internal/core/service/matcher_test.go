package service

import (
	"sync"
	"testing"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
	"github.com/sudheendrakatikar/exsim/internal/settings"
)

const twoTemplatesCFG = `
[DEFAULT]
ConnectionType=acceptor
BeginString=FIX.4.4
TargetCompID=*
AcceptorTemplate=Y
SocketAcceptPort=9876
HeartBtInt=30

[SESSION]
SenderCompID=COMPA
HeartBtInt=20

[SESSION]
SenderCompID=COMPB
`

func newTestMatcher(t testing.TB, cfg string) (*DynamicSessionMatcher, *settings.Settings) {
	t.Helper()
	s := mustParse(t, cfg)
	table, err := ResolveTemplates(s)
	if err != nil {
		t.Fatalf("ResolveTemplates() error = %v", err)
	}
	addr := table.Addresses()[0]
	return NewDynamicSessionMatcher(addr, table.Templates(addr), s, nil), s
}

func peer(sender, target string) domain.SessionID {
	return domain.SessionID{BeginString: "FIX.4.4", SenderCompID: sender, TargetCompID: target}
}

func TestDynamicSessionMatcher_Scenario(t *testing.T) {
	m, _ := newTestMatcher(t, twoTemplatesCFG)

	tests := []struct {
		name         string
		peer         domain.SessionID
		wantTemplate string
		wantNoMatch  bool
	}{
		{"template A", peer("COMPA", "X"), "COMPA", false},
		{"template B", peer("COMPB", "Y"), "COMPB", false},
		{"no template", peer("COMPC", "Z"), "", true},
		{"wrong version", domain.SessionID{BeginString: "FIX.4.2", SenderCompID: "COMPA", TargetCompID: "X"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(tt.peer)
			if tt.wantNoMatch {
				if !domain.IsNoMatch(err) {
					t.Errorf("Match() error = %v, want no match", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got != tt.peer {
				t.Errorf("Match() = %v, want %v", got, tt.peer)
			}
			mapping, ok := m.Lookup(tt.peer)
			if !ok || mapping.TemplateID.SenderCompID != tt.wantTemplate {
				t.Errorf("Lookup() = %v, %v; want template %s", mapping, ok, tt.wantTemplate)
			}
		})
	}
}

func TestDynamicSessionMatcher_FirstTemplateWins(t *testing.T) {
	m, _ := newTestMatcher(t, `
[DEFAULT]
BeginString=FIX.4.4
AcceptorTemplate=Y
SocketAcceptPort=9876

[SESSION]
SenderCompID=EXEC
TargetCompID=*
SessionQualifier=broad

[SESSION]
SenderCompID=EXEC
TargetCompID=VIP
`)

	mapping, ok := m.Lookup(peer("EXEC", "VIP"))
	if !ok {
		t.Fatal("Lookup() found nothing")
	}
	if mapping.TemplateID.Qualifier != "broad" {
		t.Errorf("Lookup() = %v, want the earlier wildcard template", mapping)
	}
}

func TestDynamicSessionMatcher_SessionSpec(t *testing.T) {
	m, s := newTestMatcher(t, twoTemplatesCFG)
	p := peer("COMPA", "CLIENT1")

	spec, err := m.SessionSpec(p)
	if err != nil {
		t.Fatalf("SessionSpec() error = %v", err)
	}
	if spec.ID != p || !spec.Dynamic {
		t.Errorf("SessionSpec() = %+v, want dynamic spec for %v", spec, p)
	}
	if spec.TemplateID.TargetCompID != domain.Wildcard {
		t.Errorf("TemplateID = %v, want the wildcard template", spec.TemplateID)
	}
	if spec.Settings[settings.TargetCompID] != "CLIENT1" {
		t.Errorf("TargetCompID = %q, want CLIENT1", spec.Settings[settings.TargetCompID])
	}
	if spec.Settings[settings.HeartBtInt] != "20" {
		t.Errorf("HeartBtInt = %q, want template value 20", spec.Settings[settings.HeartBtInt])
	}

	// The shared repository still holds the wildcard.
	v, _ := s.GetString(spec.TemplateID, settings.TargetCompID)
	if v != domain.Wildcard {
		t.Errorf("repository TargetCompID = %q, want it unchanged", v)
	}

	if _, err := m.SessionSpec(peer("COMPC", "Z")); !domain.IsNoMatch(err) {
		t.Errorf("SessionSpec() error = %v, want no match", err)
	}
}

func TestDynamicSessionMatcher_CopiesMappings(t *testing.T) {
	mappings := []domain.TemplateMapping{{
		Pattern:    peer("EXEC", domain.Wildcard),
		TemplateID: peer("EXEC", domain.Wildcard),
	}}
	m := NewDynamicSessionMatcher(domain.ListeningAddress{Host: domain.AnyHost, Port: 1}, mappings, mustParse(t, ""), nil)

	mappings[0].Pattern = peer("OTHER", "OTHER")
	if _, ok := m.Lookup(peer("EXEC", "ANY")); !ok {
		t.Error("matcher should not observe caller mutations")
	}
}

func TestDynamicSessionMatcher_Concurrent(t *testing.T) {
	m, _ := newTestMatcher(t, twoTemplatesCFG)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "COMPA"
			if i%2 == 1 {
				sender = "COMPB"
			}
			for j := 0; j < 100; j++ {
				if _, err := m.SessionSpec(peer(sender, "CLIENT")); err != nil {
					t.Errorf("SessionSpec() error = %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func BenchmarkDynamicSessionMatcher_Match(b *testing.B) {
	m, _ := newTestMatcher(b, twoTemplatesCFG)
	peers := []domain.SessionID{peer("COMPA", "X"), peer("COMPB", "Y"), peer("COMPC", "Z")}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Match(peers[i%len(peers)])
	}
}
