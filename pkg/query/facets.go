package query

// Facet property names that differ from their parameter names, plus the
// client-side "standards" umbrella which has no counts of its own.
const (
	FacetFiles     = "files"
	FacetModules   = "modules"
	FacetStandards = "standards"
)

// Security standard sub-facets of the standards umbrella.
const (
	StandardOwaspTop10          = ParamOwaspTop10
	StandardSansTop25           = ParamSansTop25
	StandardCWE                 = ParamCWE
	StandardSonarsourceSecurity = ParamSonarsourceSecurity
)

// SecurityStandards lists the sub-facets of the standards umbrella.
var SecurityStandards = []string{StandardOwaspTop10, StandardSansTop25, StandardCWE, StandardSonarsourceSecurity}

// MapFacet converts a facet property to the parameter the endpoint expects.
func MapFacet(facet string) string {
	switch facet {
	case FacetFiles:
		return ParamFileUUIDs
	case FacetModules:
		return ParamModuleUUIDs
	}
	return facet
}

// UnmapFacet converts an endpoint facet property back to its client name.
func UnmapFacet(property string) string {
	switch property {
	case ParamFileUUIDs:
		return FacetFiles
	case ParamModuleUUIDs:
		return FacetModules
	}
	return property
}
