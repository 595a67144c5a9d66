package client

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vanderheijden86/issuescope/pkg/model"
)

// Endpoint paths.
const (
	PathSearch        = "/api/issues/search"
	PathDoTransition  = "/api/issues/do_transition"
	PathAssign        = "/api/issues/assign"
	PathSetSeverity   = "/api/issues/set_severity"
	PathSetType       = "/api/issues/set_type"
	PathSetTags       = "/api/issues/set_tags"
	PathBulkChange    = "/api/issues/bulk_change"
	PathProjectStatus = "/api/qualitygates/project_status"
	PathCurrentUser   = "/api/users/current"
)

// Form parameter names of the mutation endpoints.
const (
	FormIssue             = "issue"
	FormIssues            = "issues"
	FormTransition        = "transition"
	FormAssignee          = "assignee"
	FormSeverity          = "severity"
	FormType              = "type"
	FormTags              = "tags"
	FormSendNotifications = "sendNotifications"
	FormOperationID       = "operationId"
)

var changePaths = map[model.ChangeKind]string{
	model.ChangeTransition: PathDoTransition,
	model.ChangeAssign:     PathAssign,
	model.ChangeSeverity:   PathSetSeverity,
	model.ChangeType:       PathSetType,
	model.ChangeTags:       PathSetTags,
}

var changeParams = map[model.ChangeKind]string{
	model.ChangeTransition: FormTransition,
	model.ChangeAssign:     FormAssignee,
	model.ChangeSeverity:   FormSeverity,
	model.ChangeType:       FormType,
	model.ChangeTags:       FormTags,
}

// bulk_change names each action after the single-issue endpoint.
var bulkParams = map[model.ChangeKind]string{
	model.ChangeTransition: "do_transition",
	model.ChangeAssign:     "assign",
	model.ChangeSeverity:   "set_severity",
	model.ChangeType:       "set_type",
	model.ChangeTags:       "set_tags",
}

// ChangeForm returns the endpoint path and form for a single-issue change.
func ChangeForm(key string, change model.IssueChange) (string, url.Values, error) {
	path, ok := changePaths[change.Kind]
	if !ok {
		return "", nil, fmt.Errorf("unknown change kind %q", change.Kind)
	}
	form := url.Values{FormIssue: {key}}
	form.Set(changeParams[change.Kind], changeValue(change))
	return path, form, nil
}

// ParseChangeForm is the inverse of ChangeForm for the endpoint at path.
func ParseChangeForm(path string, form url.Values) (string, model.IssueChange, error) {
	for kind, p := range changePaths {
		if p != path {
			continue
		}
		key := form.Get(FormIssue)
		if key == "" {
			return "", model.IssueChange{}, fmt.Errorf("missing %q parameter", FormIssue)
		}
		return key, parseChangeValue(kind, form.Get(changeParams[kind])), nil
	}
	return "", model.IssueChange{}, fmt.Errorf("no change endpoint at %s", path)
}

// BulkChangeForm encodes a bulk change request.
func BulkChangeForm(req model.BulkChangeRequest) url.Values {
	form := url.Values{FormIssues: {strings.Join(req.Issues, ",")}}
	for _, c := range req.Changes {
		form.Set(bulkParams[c.Kind], changeValue(c))
	}
	if req.SendNotifications {
		form.Set(FormSendNotifications, "true")
	}
	if req.OperationID != "" {
		form.Set(FormOperationID, req.OperationID)
	}
	return form
}

// ParseBulkChangeForm decodes a bulk change request.
func ParseBulkChangeForm(form url.Values) (model.BulkChangeRequest, error) {
	req := model.BulkChangeRequest{
		OperationID:       form.Get(FormOperationID),
		SendNotifications: form.Get(FormSendNotifications) == "true",
	}
	for _, k := range strings.Split(form.Get(FormIssues), ",") {
		if k = strings.TrimSpace(k); k != "" {
			req.Issues = append(req.Issues, k)
		}
	}
	if len(req.Issues) == 0 {
		return req, fmt.Errorf("missing %q parameter", FormIssues)
	}
	// fixed order so the same form always yields the same request
	for _, kind := range []model.ChangeKind{model.ChangeTransition, model.ChangeAssign, model.ChangeSeverity, model.ChangeType, model.ChangeTags} {
		if _, ok := form[bulkParams[kind]]; ok {
			req.Changes = append(req.Changes, parseChangeValue(kind, form.Get(bulkParams[kind])))
		}
	}
	return req, nil
}

func changeValue(c model.IssueChange) string {
	if c.Kind == model.ChangeTags {
		return strings.Join(c.Values, ",")
	}
	return c.Value
}

func parseChangeValue(kind model.ChangeKind, v string) model.IssueChange {
	if kind != model.ChangeTags {
		return model.IssueChange{Kind: kind, Value: v}
	}
	c := model.IssueChange{Kind: kind, Values: []string{}}
	for _, tag := range strings.Split(v, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			c.Values = append(c.Values, tag)
		}
	}
	return c
}
