package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/vanderheijden86/issuescope/pkg/model"
)

// bulkValues are the fields of the bulk change dialog. Empty fields leave
// the attribute unchanged.
type bulkValues struct {
	Transition string
	Assignee   string
	Severity   string
	Type       string
	Tags       string
	Notify     bool
}

// Changes returns the changes the dialog asks for.
func (v *bulkValues) Changes() []model.IssueChange {
	var out []model.IssueChange
	if v.Transition != "" {
		out = append(out, model.IssueChange{Kind: model.ChangeTransition, Value: v.Transition})
	}
	if a := strings.TrimSpace(v.Assignee); a != "" {
		out = append(out, model.IssueChange{Kind: model.ChangeAssign, Value: a})
	}
	if v.Severity != "" {
		out = append(out, model.IssueChange{Kind: model.ChangeSeverity, Value: v.Severity})
	}
	if v.Type != "" {
		out = append(out, model.IssueChange{Kind: model.ChangeType, Value: v.Type})
	}
	if tags := splitTags(v.Tags); len(tags) > 0 {
		out = append(out, model.IssueChange{Kind: model.ChangeTags, Values: tags})
	}
	return out
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		tags = append(tags, strings.ToLower(t))
	}
	return tags
}

// bulkDialog wraps the huh form of a bulk change.
type bulkDialog struct {
	form   *huh.Form
	values *bulkValues
	label  string
	err    string
	// submitted is set once the changes were handed to the controller.
	submitted bool
}

var transitionOptions = []huh.Option[string]{
	huh.NewOption("(keep)", ""),
	huh.NewOption("Confirm", model.TransitionConfirm),
	huh.NewOption("Unconfirm", model.TransitionUnconfirm),
	huh.NewOption("Reopen", model.TransitionReopen),
	huh.NewOption("Resolve as fixed", model.TransitionResolve),
	huh.NewOption("Resolve as false positive", model.TransitionFalsePositive),
	huh.NewOption("Resolve as won't fix", model.TransitionWontFix),
}

func severityOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("(keep)", "")}
	for _, s := range model.Severities {
		opts = append(opts, huh.NewOption(string(s), string(s)))
	}
	return opts
}

func typeOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("(keep)", "")}
	for _, t := range model.IssueTypes {
		opts = append(opts, huh.NewOption(strings.ReplaceAll(string(t), "_", " "), string(t)))
	}
	return opts
}

// newBulkDialog builds the dialog titled label. values carries over the
// answers of a failed attempt.
func newBulkDialog(label string, values *bulkValues, errMsg string) *bulkDialog {
	if values == nil {
		values = &bulkValues{}
	}
	keys := huh.NewDefaultKeyMap()
	keys.Quit = key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "cancel"))

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title("Transition").Options(transitionOptions...).Value(&values.Transition),
			huh.NewInput().Title("Assign to").Placeholder("login (keep empty to leave as is)").Value(&values.Assignee),
			huh.NewSelect[string]().Title("Severity").Options(severityOptions()...).Value(&values.Severity),
			huh.NewSelect[string]().Title("Type").Options(typeOptions()...).Value(&values.Type),
			huh.NewInput().Title("Set tags").Placeholder("comma separated").Value(&values.Tags),
			huh.NewConfirm().Title("Send notifications?").Value(&values.Notify),
		).Title(label),
	).WithTheme(huh.ThemeDracula()).WithKeyMap(keys).WithShowHelp(true)
	return &bulkDialog{form: form, values: values, label: label, err: errMsg}
}

func (d *bulkDialog) Init() tea.Cmd {
	return d.form.Init()
}

// Update forwards msg to the form.
func (d *bulkDialog) Update(msg tea.Msg) tea.Cmd {
	next, cmd := d.form.Update(msg)
	if f, ok := next.(*huh.Form); ok {
		d.form = f
	}
	return cmd
}

func (d *bulkDialog) View() string {
	var b strings.Builder
	if d.err != "" {
		b.WriteString(errorStyle.Render(d.err))
		b.WriteString("\n\n")
	}
	b.WriteString(d.form.View())
	return b.String()
}
