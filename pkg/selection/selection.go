// Package selection tracks which issue is selected or open and, for the
// open issue, which flow and location are highlighted.
//
// The machine has two modes. In Listing no issue is open and Next/Prev move
// the selection. In Viewing an issue is open; Next/Prev open the neighbour
// directly and Close returns to Listing. While Viewing, the locations
// navigator sub-mode moves through the flows and locations of the open
// issue.
//
// The machine never changes the open issue on its own: the open issue is
// part of the navigational context, so commands that would change it return
// an Intent and the owner applies the new context through SetOpen.
package selection

import "github.com/vanderheijden86/issuescope/pkg/model"

// Issues is the ordered collection the selection moves through.
type Issues interface {
	Len() int
	KeyAt(i int) string
	IndexOf(key string) int
	Get(key string) (model.Issue, bool)
}

// Index is an optional position. The zero value is unset.
type Index struct {
	v   int
	set bool
}

// At returns a set index.
func At(i int) Index {
	return Index{v: i, set: true}
}

// Get returns the index and whether it is set.
func (i Index) Get() (int, bool) {
	return i.v, i.set
}

// IsSet reports whether the index is set.
func (i Index) IsSet() bool {
	return i.set
}

// PrimaryLocation is the location index designating the issue itself
// rather than one of its secondary locations.
const PrimaryLocation = -1

// Mode is the top-level state.
type Mode int

const (
	Listing Mode = iota
	Viewing
)

func (m Mode) String() string {
	if m == Viewing {
		return "viewing"
	}
	return "listing"
}

// Command is a keyboard-level navigation command.
type Command int

const (
	CmdNext Command = iota
	CmdPrev
	CmdOpen
	CmdClose
	CmdEnterLocations
	CmdExitLocations
	CmdNextLocation
	CmdPrevLocation
	CmdNextFlow
	CmdPrevFlow
)

var commandNames = map[Command]string{
	CmdNext:           "next",
	CmdPrev:           "prev",
	CmdOpen:           "open",
	CmdClose:          "close",
	CmdEnterLocations: "locations-on",
	CmdExitLocations:  "locations-off",
	CmdNextLocation:   "location-next",
	CmdPrevLocation:   "location-prev",
	CmdNextFlow:       "flow-next",
	CmdPrevFlow:       "flow-prev",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// IntentKind says how the navigational context should change.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentOpen
	IntentClose
)

// Intent is a requested change of the open issue.
type Intent struct {
	Kind IntentKind
	Key  string
}

// State is a snapshot of the selection.
type State struct {
	Selected  string
	Open      string
	Flow      Index
	Location  Index
	Navigator bool
}

// Machine is the selection state machine. The zero value is an empty
// Listing state.
type Machine struct {
	st State
}

// State returns the current snapshot.
func (m *Machine) State() State {
	return m.st
}

// Mode returns Viewing when an issue is open.
func (m *Machine) Mode() Mode {
	if m.st.Open != "" {
		return Viewing
	}
	return Listing
}

func (m *Machine) clearLocations() {
	m.st.Flow = Index{}
	m.st.Location = Index{}
	m.st.Navigator = false
}

// Select moves the selection to key without opening it.
func (m *Machine) Select(key string) {
	m.st.Selected = key
	m.clearLocations()
}

// SetOpen applies the open issue of the navigational context. An issue
// that is not part of issues cannot be viewed and leaves the machine in
// Listing. A change of open issue clears flow and location and leaves the
// navigator.
func (m *Machine) SetOpen(key string, issues Issues) {
	if _, ok := issues.Get(key); !ok {
		key = ""
	}
	if key == m.st.Open {
		return
	}
	m.st.Open = key
	m.clearLocations()
	if key != "" {
		m.st.Selected = key
	}
}

// ResetLocations returns to the top of the open issue: flow and location
// cleared, navigator off.
func (m *Machine) ResetLocations() {
	m.clearLocations()
}

// Repair re-validates the state after the collection was replaced. The
// open issue is kept when still present; the selection falls back to the
// open issue, then to the previous selection, then to the first issue.
func (m *Machine) Repair(openKey string, issues Issues) {
	m.SetOpen(openKey, issues)
	switch {
	case m.st.Open != "":
		m.st.Selected = m.st.Open
	case issues.IndexOf(m.st.Selected) >= 0:
	case issues.Len() > 0:
		m.st.Selected = issues.KeyAt(0)
	default:
		m.st.Selected = ""
	}
}

// Handle applies a command. singleIssue reports whether the active query
// designates exactly one issue, in which case Close is ignored.
func (m *Machine) Handle(cmd Command, issues Issues, singleIssue bool) Intent {
	switch cmd {
	case CmdNext, CmdPrev:
		return m.step(cmd == CmdNext, issues)
	case CmdOpen:
		if m.st.Open == "" && m.st.Selected != "" {
			if _, ok := issues.Get(m.st.Selected); ok {
				return Intent{Kind: IntentOpen, Key: m.st.Selected}
			}
		}
	case CmdClose:
		if m.st.Open != "" && !singleIssue {
			return Intent{Kind: IntentClose}
		}
	case CmdEnterLocations:
		m.enterNavigator(issues)
	case CmdExitLocations:
		m.st.Navigator = false
	case CmdNextLocation, CmdPrevLocation:
		if m.st.Navigator {
			m.moveLocation(cmd == CmdNextLocation, issues)
		}
	case CmdNextFlow, CmdPrevFlow:
		if m.st.Navigator {
			m.moveFlow(cmd == CmdNextFlow, issues)
		}
	}
	return Intent{}
}

func (m *Machine) step(forward bool, issues Issues) Intent {
	idx := issues.IndexOf(m.st.Selected)
	next := -1
	switch {
	case forward && idx < issues.Len()-1:
		next = idx + 1
	case !forward && idx > 0:
		next = idx - 1
	}
	if next < 0 {
		return Intent{}
	}
	key := issues.KeyAt(next)
	if m.st.Open != "" {
		return Intent{Kind: IntentOpen, Key: key}
	}
	m.Select(key)
	return Intent{}
}

func (m *Machine) openIssue(issues Issues) (model.Issue, bool) {
	if m.st.Open == "" {
		return model.Issue{}, false
	}
	return issues.Get(m.st.Open)
}

func (m *Machine) enterNavigator(issues Issues) {
	issue, ok := m.openIssue(issues)
	if !ok || !issue.HasLocations() {
		return
	}
	m.st.Navigator = true
	if !m.st.Flow.IsSet() && len(issue.Flows) > 0 {
		m.st.Flow = At(0)
	}
	if loc, set := m.st.Location.Get(); !set || loc < 0 {
		m.st.Location = At(0)
	}
}

func (m *Machine) locations(issues Issues) ([]model.Location, bool) {
	issue, ok := m.openIssue(issues)
	if !ok {
		return nil, false
	}
	flow, hasFlow := m.st.Flow.Get()
	return issue.LocationsOf(flow, hasFlow), true
}

func (m *Machine) moveLocation(forward bool, issues Issues) {
	locs, ok := m.locations(issues)
	if !ok {
		return
	}
	idx, set := m.st.Location.Get()
	if !set {
		idx = PrimaryLocation
	}
	switch {
	case forward && idx < len(locs)-1:
		m.st.Location = At(idx + 1)
	case !forward && set && idx > PrimaryLocation:
		m.st.Location = At(idx - 1)
	}
}

func (m *Machine) moveFlow(forward bool, issues Issues) {
	issue, ok := m.openIssue(issues)
	if !ok {
		return
	}
	flow, set := m.st.Flow.Get()
	if !set {
		return
	}
	switch {
	case forward && flow+1 < len(issue.Flows):
		m.st.Flow = At(flow + 1)
		m.st.Location = At(0)
	case !forward && flow > 0:
		m.st.Flow = At(flow - 1)
		m.st.Location = At(0)
	}
}

// SelectLocation highlights location i of the open issue and enters the
// navigator. Selecting the highlighted location again returns to the
// primary location.
func (m *Machine) SelectLocation(i int, issues Issues) {
	locs, ok := m.locations(issues)
	if !ok || i < 0 || i >= len(locs) {
		return
	}
	m.st.Navigator = true
	if cur, set := m.st.Location.Get(); set && cur == i {
		m.st.Location = At(PrimaryLocation)
		return
	}
	m.st.Location = At(i)
}

// SelectFlow highlights flow i of the open issue, starting at its first
// location.
func (m *Machine) SelectFlow(i int, issues Issues) {
	issue, ok := m.openIssue(issues)
	if !ok || i < 0 || i >= len(issue.Flows) {
		return
	}
	m.st.Flow = At(i)
	m.st.Location = At(0)
}
