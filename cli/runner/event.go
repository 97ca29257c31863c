package runner

// event.go contains decoding of the test2json event stream.

import (
	"encoding/json"
	"strings"
	"time"
)

// Action values emitted by test2json.
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPause  = "pause"
	ActionCont   = "cont"
	ActionPass   = "pass"
	ActionBench  = "bench"
	ActionFail   = "fail"
	ActionOutput = "output"
	ActionSkip   = "skip"
)

// Event is a single test2json record.
type Event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// ParseEvent decodes one line of test2json output.
func ParseEvent(line []byte) (Event, bool) {
	var ev Event
	if len(line) == 0 || line[0] != '{' {
		return ev, false
	}
	if err := json.Unmarshal(line, &ev); err != nil {
		return ev, false
	}
	return ev, ev.Action != ""
}

// TopLevel returns the top-level test name and whether ev belongs to a subtest.
func (ev Event) TopLevel() (name string, subtest bool) {
	name, _, subtest = strings.Cut(ev.Test, "/")
	return name, subtest
}

// IsOutcome reports whether ev finishes a test.
func (ev Event) IsOutcome() bool {
	switch ev.Action {
	case ActionPass, ActionFail, ActionSkip:
		return true
	}
	return false
}
