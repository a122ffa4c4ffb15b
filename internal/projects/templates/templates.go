// Package templates holds the initial call flow of each project kind and the
// step kinds each kind may use.
package templates

import (
	"embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
)

//go:embed kinds/*.yaml
var kindFS embed.FS

type template struct {
	Kind      string     `yaml:"kind"`
	StartNode string     `yaml:"startNode"`
	StepKinds []string   `yaml:"stepKinds"`
	Nodes     []nodeTmpl `yaml:"nodes"`
}

type nodeTmpl struct {
	Name  string     `yaml:"name"`
	Label string     `yaml:"label"`
	Steps []stepTmpl `yaml:"steps"`
}

type stepTmpl struct {
	Kind   string         `yaml:"kind"`
	Name   string         `yaml:"name"`
	Label  string         `yaml:"label"`
	Config map[string]any `yaml:"config"`
}

var (
	loadOnce sync.Once
	loaded   map[string]*template
	loadErr  error
)

func load() (map[string]*template, error) {
	loadOnce.Do(func() {
		loaded = make(map[string]*template)
		for _, kind := range domain.Kinds {
			b, err := kindFS.ReadFile("kinds/" + kind + ".yaml")
			if err != nil {
				loadErr = fmt.Errorf("read %s template: %w", kind, err)
				return
			}
			var t template
			if err := yaml.Unmarshal(b, &t); err != nil {
				loadErr = fmt.Errorf("parse %s template: %w", kind, err)
				return
			}
			if t.Kind != kind {
				loadErr = fmt.Errorf("template kinds/%s.yaml declares kind %q", kind, t.Kind)
				return
			}
			loaded[kind] = &t
		}
	})
	return loaded, loadErr
}

// Initial returns the starting state of a new project of the given kind.
func Initial(kind string, version int, owner string) (*domain.ProjectState, error) {
	all, err := load()
	if err != nil {
		return nil, err
	}
	t, ok := all[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown project kind %q", domain.ErrInvalidServiceParameters, kind)
	}

	state := &domain.ProjectState{
		Nodes: make([]domain.Node, 0, len(t.Nodes)),
		Header: domain.StateHeader{
			ProjectKind:   kind,
			StartNodeName: t.StartNode,
			Version:       version,
			Owner:         owner,
		},
	}
	for _, n := range t.Nodes {
		node := domain.Node{Name: n.Name, Label: n.Label, Kind: kind, Steps: make([]domain.Step, 0, len(n.Steps))}
		for _, s := range n.Steps {
			node.Steps = append(node.Steps, domain.Step{
				Kind:   s.Kind,
				Name:   s.Name,
				Label:  s.Label,
				Config: cloneConfig(s.Config),
			})
			state.LastStepID++
		}
		state.Nodes = append(state.Nodes, node)
		state.LastNodeID++
	}
	return state, nil
}

// StepKinds returns the step kinds allowed in projects of the given kind,
// sorted.
func StepKinds(kind string) ([]string, error) {
	all, err := load()
	if err != nil {
		return nil, err
	}
	t, ok := all[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown project kind %q", domain.ErrInvalidServiceParameters, kind)
	}
	out := append([]string(nil), t.StepKinds...)
	sort.Strings(out)
	return out, nil
}

func cloneConfig(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
