package domain

import "time"

// Project kinds supported by the designer.
const (
	KindVoice = "voice"
	KindSMS   = "sms"
	KindUSSD  = "ussd"
)

// Kinds lists every known project kind.
var Kinds = []string{KindVoice, KindSMS, KindUSSD}

// IsKnownKind reports whether kind is one of Kinds.
func IsKnownKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// StateHeader is the project metadata stored at the top of the state file.
// An empty Owner means the project is owner-less.
type StateHeader struct {
	ProjectKind   string `json:"projectKind" validate:"required"`
	StartNodeName string `json:"startNodeName" validate:"required"`
	Version       int    `json:"version" validate:"gte=1"`
	Owner         string `json:"owner,omitempty"`
}

// ProjectState is the full call-flow definition as persisted in the state file.
type ProjectState struct {
	LastStepID int         `json:"lastStepId"`
	LastNodeID int         `json:"lastNodeId"`
	Nodes      []Node      `json:"nodes" validate:"dive"`
	Header     StateHeader `json:"header"`
}

// Node is one module of the call flow, holding an ordered list of steps.
type Node struct {
	Name  string `json:"name" validate:"required"`
	Label string `json:"label"`
	Kind  string `json:"kind,omitempty"`
	Steps []Step `json:"steps" validate:"dive"`
}

// Step is a single verb inside a node. Config is free-form and interpreted
// by the runtime for the given Kind.
type Step struct {
	Kind   string         `json:"kind" validate:"required"`
	Name   string         `json:"name" validate:"required"`
	Label  string         `json:"label,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// FindNode returns the node with the given name.
func (s *ProjectState) FindNode(name string) (*Node, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].Name == name {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// ProjectSettings is a free-form build configuration record.
type ProjectSettings struct {
	Logging       bool           `json:"logging"`
	LoggingRCML   bool           `json:"loggingRCML"`
	UssdMaxLength int            `json:"ussdMaxLength,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// CallControlInfo binds an external call-control web application to the project.
type CallControlInfo struct {
	Lanes []CallControlLane `json:"lanes"`
}

// CallControlLane is one configured call-control endpoint.
type CallControlLane struct {
	StartPoint CallControlStartPoint `json:"startPoint"`
}

// CallControlStartPoint describes how to reach the call-control application.
type CallControlStartPoint struct {
	RcmlURL  string         `json:"rcmlUrl"`
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// WavItem is a WAV asset stored under the project's wavs directory.
type WavItem struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ProjectItem is a row of the project listing.
type ProjectItem struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Owner    string `json:"owner,omitempty"`
	Version  int    `json:"version"`
	StartURL string `json:"startUrl,omitempty"`
}
