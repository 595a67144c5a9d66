package facets

import (
	"testing"

	"github.com/vanderheijden86/issuescope/pkg/query"
)

var (
	noFilter   = query.Query{}
	owaspQ     = query.Query{OwaspTop10: []string{"a1"}}
	sansQ      = query.Query{SansTop25: []string{"insecure-interaction"}}
	cweQ       = query.Query{CWE: []string{"79"}}
	sonarQ     = query.Query{SonarsourceSecurity: []string{"sql-injection"}}
	severityQ  = query.Query{Severities: []string{"MAJOR"}}
	standards  = query.FacetStandards
	owasp      = query.StandardOwaspTop10
	sans       = query.StandardSansTop25
	cwe        = query.StandardCWE
	sonarsrc   = query.StandardSonarsourceSecurity
	umbrellaOn = map[string]bool{standards: true}
)

func TestShouldOpenStandardsFacet(t *testing.T) {
	tests := []struct {
		name string
		open map[string]bool
		q    query.Query
		want bool
	}{
		{"nothing open nothing filtered", map[string]bool{}, noFilter, false},
		{"unrelated filter", map[string]bool{}, severityQ, false},
		{"umbrella open", umbrellaOn, noFilter, true},
		{"owasp filtered", map[string]bool{}, owaspQ, true},
		{"sans filtered", map[string]bool{}, sansQ, true},
		{"cwe filtered", map[string]bool{}, cweQ, true},
		{"sonarsource filtered", map[string]bool{}, sonarQ, true},
		{"umbrella closed but filtered", map[string]bool{standards: false}, owaspQ, true},
		{"umbrella closed nothing filtered", map[string]bool{standards: false}, noFilter, false},
		{"child open alone does not open umbrella", map[string]bool{owasp: true}, noFilter, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldOpenStandardsFacet(tt.open, tt.q); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestShouldOpenStandardsChildFacet(t *testing.T) {
	tests := []struct {
		name string
		open map[string]bool
		q    query.Query
		std  string
		want bool
	}{
		{"nothing", map[string]bool{}, noFilter, owasp, false},
		{"filtered with umbrella unset", map[string]bool{}, owaspQ, owasp, true},
		{"filtered with umbrella open", umbrellaOn, owaspQ, owasp, true},
		{"filtered with umbrella closed", map[string]bool{standards: false}, owaspQ, owasp, false},
		{"explicitly open", map[string]bool{sans: true}, noFilter, sans, true},
		{"explicitly open umbrella closed", map[string]bool{standards: false, sans: true}, noFilter, sans, false},
		{"cwe filtered is not enough", map[string]bool{}, cweQ, cwe, false},
		{"cwe explicitly open", map[string]bool{cwe: true}, noFilter, cwe, true},
		{"cwe open umbrella closed", map[string]bool{standards: false, cwe: true}, cweQ, cwe, false},
		{"other standard filtered", map[string]bool{}, owaspQ, sans, false},
		{"sonarsource filtered", map[string]bool{}, sonarQ, sonarsrc, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldOpenStandardsChildFacet(tt.open, tt.q, tt.std); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestShouldOpenSonarSourceSecurityFacet(t *testing.T) {
	tests := []struct {
		name string
		open map[string]bool
		q    query.Query
		want bool
	}{
		{"nothing", map[string]bool{}, noFilter, false},
		{"umbrella open is the default sub-facet", umbrellaOn, noFilter, true},
		{"umbrella open with owasp open", map[string]bool{standards: true, owasp: true}, noFilter, false},
		{"umbrella open with sans open", map[string]bool{standards: true, sans: true}, noFilter, false},
		{"umbrella open with cwe open", map[string]bool{standards: true, cwe: true}, noFilter, false},
		{"own filter", map[string]bool{}, sonarQ, true},
		{"explicitly open", map[string]bool{sonarsrc: true}, noFilter, true},
		{"owasp filter opens owasp instead", map[string]bool{}, owaspQ, false},
		{"cwe filter opens umbrella but not cwe", map[string]bool{}, cweQ, true},
		{"umbrella closed with own filter", map[string]bool{standards: false}, sonarQ, true},
		{"umbrella closed without filter", map[string]bool{standards: false}, noFilter, false},
		{"unrelated filter", map[string]bool{}, severityQ, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldOpenSonarSourceSecurityFacet(tt.open, tt.q); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestInitialOpen(t *testing.T) {
	open := InitialOpen(noFilter)
	if !open[query.ParamSeverities] || !open[query.ParamTypes] {
		t.Error("severities and types start open")
	}
	if open[standards] || open[sonarsrc] || open[owasp] || open[sans] {
		t.Errorf("no standards facet should start open: %v", open)
	}

	open = InitialOpen(owaspQ)
	if !open[standards] || !open[owasp] {
		t.Errorf("owasp filter should open the umbrella and owasp: %v", open)
	}
	if open[sonarsrc] {
		t.Error("sonarsource should stay closed when owasp opens")
	}

	open = InitialOpen(cweQ)
	if !open[standards] || !open[sonarsrc] {
		t.Errorf("cwe filter should open the umbrella with the default sub-facet: %v", open)
	}
}
