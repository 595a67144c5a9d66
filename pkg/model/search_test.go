package model

import "testing"

func loc(line, offset int, msg string) Location {
	return Location{Component: "p:src/a.go", TextRange: &TextRange{StartLine: line, EndLine: line, StartOffset: offset}, Msg: msg}
}

func TestParseIssue_SingleLocationFlowsBecomeSecondary(t *testing.T) {
	raw := RawIssue{
		Key:       "A",
		Component: "p:src/a.go",
		Flows: []Flow{
			{Locations: []Location{loc(20, 0, "second")}},
			{Locations: []Location{loc(10, 4, "first")}},
			{Locations: []Location{loc(10, 1, "zeroth")}},
		},
	}
	components := map[string]Component{"p:src/a.go": {Key: "p:src/a.go", LongName: "src/a.go"}}

	issue := ParseIssue(raw, components)

	if len(issue.Flows) != 0 {
		t.Fatalf("expected no flows, got %d", len(issue.Flows))
	}
	if len(issue.SecondaryLocations) != 3 {
		t.Fatalf("expected 3 secondary locations, got %d", len(issue.SecondaryLocations))
	}
	want := []string{"zeroth", "first", "second"}
	for i, w := range want {
		if got := issue.SecondaryLocations[i].Msg; got != w {
			t.Errorf("location %d: expected %q, got %q", i, w, got)
		}
	}
	if issue.ComponentLongName != "src/a.go" {
		t.Errorf("expected component long name, got %q", issue.ComponentLongName)
	}
	if issue.SecondaryLocations[0].ComponentName != "src/a.go" {
		t.Errorf("expected location component name, got %q", issue.SecondaryLocations[0].ComponentName)
	}
}

func TestParseIssue_MultiStepFlowsAreReversed(t *testing.T) {
	raw := RawIssue{
		Key: "A",
		Flows: []Flow{
			{Locations: []Location{loc(3, 0, "c"), loc(2, 0, "b"), loc(1, 0, "a")}},
			{Locations: []Location{loc(9, 0, "only")}},
		},
	}

	issue := ParseIssue(raw, nil)

	if len(issue.SecondaryLocations) != 0 {
		t.Fatalf("expected no secondary locations, got %d", len(issue.SecondaryLocations))
	}
	if len(issue.Flows) != 2 {
		t.Fatalf("expected 2 flows, got %d", len(issue.Flows))
	}
	got := issue.Flows[0].Locations
	if got[0].Msg != "a" || got[1].Msg != "b" || got[2].Msg != "c" {
		t.Errorf("expected flow in reading order, got %q %q %q", got[0].Msg, got[1].Msg, got[2].Msg)
	}
}

func TestParseIssue_DropsLocationsWithoutRange(t *testing.T) {
	raw := RawIssue{
		Key: "A",
		Flows: []Flow{
			{Locations: []Location{{Msg: "no range"}, loc(1, 0, "kept")}},
		},
	}

	issue := ParseIssue(raw, nil)

	if len(issue.SecondaryLocations) != 1 || issue.SecondaryLocations[0].Msg != "kept" {
		t.Errorf("expected only the ranged location, got %+v", issue.SecondaryLocations)
	}
}

func TestIssueClone_IsDeep(t *testing.T) {
	orig := Issue{
		Key:       "A",
		Tags:      []string{"x"},
		TextRange: &TextRange{StartLine: 1},
		Flows:     []Flow{{Locations: []Location{loc(1, 0, "a")}}},
	}
	clone := orig.Clone()
	clone.Tags[0] = "y"
	clone.TextRange.StartLine = 5
	clone.Flows[0].Locations[0].TextRange.StartLine = 7

	if orig.Tags[0] != "x" {
		t.Error("tags shared between clone and original")
	}
	if orig.TextRange.StartLine != 1 {
		t.Error("text range shared between clone and original")
	}
	if orig.Flows[0].Locations[0].TextRange.StartLine != 1 {
		t.Error("flow locations shared between clone and original")
	}
}

func TestPaging_Exhausted(t *testing.T) {
	tests := []struct {
		paging Paging
		want   bool
	}{
		{Paging{PageIndex: 1, PageSize: 100, Total: 120}, false},
		{Paging{PageIndex: 2, PageSize: 100, Total: 120}, true},
		{Paging{PageIndex: 1, PageSize: 100, Total: 100}, true},
		{Paging{PageIndex: 1, PageSize: 100, Total: 0}, true},
	}
	for _, tt := range tests {
		if got := tt.paging.Exhausted(); got != tt.want {
			t.Errorf("%+v: expected %v, got %v", tt.paging, tt.want, got)
		}
	}
}

func TestIssueValidate(t *testing.T) {
	valid := Issue{Key: "A", Component: "c", Severity: SeverityMajor, Type: TypeBug, Status: StatusOpen}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid issue, got %v", err)
	}
	bad := valid
	bad.Severity = "URGENT"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for invalid severity")
	}
	bad = valid
	bad.Key = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected error for empty key")
	}
}
