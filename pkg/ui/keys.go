package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the issue explorer.
type KeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Open  key.Binding
	Close key.Binding

	// Location navigator. Any other key leaves it.
	LocationUp   key.Binding
	LocationDown key.Binding
	FlowPrev     key.Binding
	FlowNext     key.Binding

	// Digits toggle facets in the list and pick a flow of the open issue.
	Digit   key.Binding
	Primary key.Binding

	Check    key.Binding
	CheckAll key.Binding
	Bulk     key.Binding
	Confirm  key.Binding // confirm or unconfirm one issue
	Preview  key.Binding // severities of the selected issue's rule

	MyIssues key.Binding
	Filter   key.Binding // cycle saved filters
	Search   key.Binding // free-text filter
	Reset    key.Binding
	Back     key.Binding
	More     key.Binding
	Copy     key.Binding
	Quit     key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter", "right", "l"),
		key.WithHelp("→", "open"),
	),
	Close: key.NewBinding(
		key.WithKeys("esc", "left", "h"),
		key.WithHelp("←", "close"),
	),
	LocationUp: key.NewBinding(
		key.WithKeys("alt+up", "alt+k"),
		key.WithHelp("M-↑", "prev location"),
	),
	LocationDown: key.NewBinding(
		key.WithKeys("alt+down", "alt+j"),
		key.WithHelp("M-↓", "next location"),
	),
	FlowPrev: key.NewBinding(
		key.WithKeys("alt+left", "alt+h"),
		key.WithHelp("M-←", "prev flow"),
	),
	FlowNext: key.NewBinding(
		key.WithKeys("alt+right", "alt+l"),
		key.WithHelp("M-→", "next flow"),
	),
	Digit: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("1-9", "facet/flow"),
	),
	Primary: key.NewBinding(
		key.WithKeys("0"),
		key.WithHelp("0", "primary location"),
	),
	Check: key.NewBinding(
		key.WithKeys("x", " "),
		key.WithHelp("x", "check"),
	),
	CheckAll: key.NewBinding(
		key.WithKeys("X"),
		key.WithHelp("X", "check all"),
	),
	Bulk: key.NewBinding(
		key.WithKeys("b"),
		key.WithHelp("b", "bulk change"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "confirm"),
	),
	Preview: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "rule preview"),
	),
	MyIssues: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "my issues"),
	),
	Filter: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "saved filter"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Reset: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reset"),
	),
	Back: key.NewBinding(
		key.WithKeys("backspace"),
		key.WithHelp("⌫", "back"),
	),
	More: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "load more"),
	),
	Copy: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "copy key"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp lists the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.Close, k.Digit, k.Check, k.Bulk, k.Confirm, k.MyIssues, k.Filter, k.Search, k.Back, k.More, k.Quit}
}
