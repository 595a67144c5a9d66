package facets

import (
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
)

// Refs are lookup tables of the entities referenced by search results,
// used to turn facet values into labels.
type Refs struct {
	ComponentsByKey  map[string]model.Component
	ComponentsByUUID map[string]model.Component
	Languages        map[string]model.Language
	Rules            map[string]model.Rule
	Users            map[string]model.User
}

// NewRefs returns empty lookup tables.
func NewRefs() *Refs {
	r := &Refs{}
	r.reset()
	return r
}

func (r *Refs) reset() {
	r.ComponentsByKey = make(map[string]model.Component)
	r.ComponentsByUUID = make(map[string]model.Component)
	r.Languages = make(map[string]model.Language)
	r.Rules = make(map[string]model.Rule)
	r.Users = make(map[string]model.User)
}

// Replace installs the entities of a first page.
func (r *Refs) Replace(res *model.SearchResult) {
	r.reset()
	r.Merge(res)
}

// Merge adds the entities of a facet or page fetch.
func (r *Refs) Merge(res *model.SearchResult) {
	if res == nil {
		return
	}
	for _, c := range res.Components {
		r.ComponentsByKey[c.Key] = c
		if c.UUID != "" {
			r.ComponentsByUUID[c.UUID] = c
		}
	}
	for _, l := range res.Languages {
		r.Languages[l.Key] = l
	}
	for _, rule := range res.Rules {
		r.Rules[rule.Key] = rule
	}
	for _, u := range res.Users {
		r.Users[u.Login] = u
	}
}

// Label returns a display label for a facet value, falling back to the
// value itself.
func (r *Refs) Label(property, value string) string {
	switch property {
	case query.ParamRules:
		if rule, ok := r.Rules[value]; ok && rule.Name != "" {
			return rule.Name
		}
	case query.ParamLanguages:
		if l, ok := r.Languages[value]; ok && l.Name != "" {
			return l.Name
		}
	case query.ParamAssignees, query.ParamAuthor:
		if u, ok := r.Users[value]; ok && u.Name != "" {
			return u.Name
		}
	case query.ParamProjects:
		if c, ok := r.ComponentsByKey[value]; ok && c.Name != "" {
			return c.Name
		}
	case query.FacetFiles, query.FacetModules, query.ParamDirectories:
		if c, ok := r.ComponentsByUUID[value]; ok {
			if c.Path != "" {
				return c.Path
			}
			return c.Name
		}
	}
	return value
}
