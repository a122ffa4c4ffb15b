package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/templates"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/workspace"
)

// StateValidator checks a submitted project state before it is stored or
// built. Struct rules come from the validate tags on the domain types; the
// cross-node rules are checked here.
type StateValidator struct {
	v *validator.Validate
}

func NewStateValidator() *StateValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &StateValidator{v: v}
}

// Validate returns a *ValidationError listing every problem, or nil.
func (sv *StateValidator) Validate(state *domain.ProjectState) error {
	if state == nil {
		return &domain.ValidationError{Items: []domain.ValidationItem{{Field: "state", Message: "missing"}}}
	}

	var items []domain.ValidationItem
	if err := sv.v.Struct(state); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate state: %w", err)
		}
		for _, fe := range verrs {
			items = append(items, domain.ValidationItem{
				Field:   strings.TrimPrefix(fe.Namespace(), "ProjectState."),
				Message: ruleMessage(fe),
			})
		}
	}

	items = append(items, semanticProblems(state)...)
	if len(items) > 0 {
		return &domain.ValidationError{Items: items}
	}
	return nil
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func semanticProblems(state *domain.ProjectState) []domain.ValidationItem {
	var items []domain.ValidationItem

	allowed := map[string]bool{}
	if kinds, err := templates.StepKinds(state.Header.ProjectKind); err != nil {
		items = append(items, domain.ValidationItem{Field: "header.projectKind", Message: "unknown project kind"})
	} else {
		for _, k := range kinds {
			allowed[k] = true
		}
	}

	nodes := map[string]bool{}
	for i, n := range state.Nodes {
		if n.Name != "" && nodes[n.Name] {
			items = append(items, domain.ValidationItem{
				Field:   fmt.Sprintf("nodes[%d].name", i),
				Message: fmt.Sprintf("duplicate node name %q", n.Name),
			})
		}
		nodes[n.Name] = true
		if n.Name != "" && workspace.ValidateName(n.Name) != nil {
			items = append(items, domain.ValidationItem{
				Field:   fmt.Sprintf("nodes[%d].name", i),
				Message: fmt.Sprintf("node name %q contains illegal characters", n.Name),
			})
		}

		steps := map[string]bool{}
		for j, s := range n.Steps {
			if s.Name != "" && steps[s.Name] {
				items = append(items, domain.ValidationItem{
					Field:   fmt.Sprintf("nodes[%d].steps[%d].name", i, j),
					Message: fmt.Sprintf("duplicate step name %q", s.Name),
				})
			}
			steps[s.Name] = true
			if len(allowed) > 0 && s.Kind != "" && !allowed[s.Kind] {
				items = append(items, domain.ValidationItem{
					Field:   fmt.Sprintf("nodes[%d].steps[%d].kind", i, j),
					Message: fmt.Sprintf("step kind %q is not allowed in %s projects", s.Kind, state.Header.ProjectKind),
				})
			}
		}
	}

	if start := state.Header.StartNodeName; start != "" && !nodes[start] {
		items = append(items, domain.ValidationItem{
			Field:   "header.startNodeName",
			Message: fmt.Sprintf("start node %q does not exist", start),
		})
	}
	return items
}
