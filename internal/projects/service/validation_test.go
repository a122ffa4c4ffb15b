package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
)

func validState() *domain.ProjectState {
	return &domain.ProjectState{
		Nodes: []domain.Node{
			{Name: "start", Steps: []domain.Step{{Kind: "say", Name: "step1"}}},
			{Name: "menu", Steps: []domain.Step{{Kind: "gather", Name: "step1"}}},
		},
		Header: domain.StateHeader{ProjectKind: domain.KindVoice, StartNodeName: "start", Version: 3},
	}
}

func fields(err error) []string {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]string, 0, len(ve.Items))
	for _, it := range ve.Items {
		out = append(out, it.Field)
	}
	return out
}

func TestStateValidator(t *testing.T) {
	v := NewStateValidator()

	require.NoError(t, v.Validate(validState()))

	tests := []struct {
		name   string
		mutate func(*domain.ProjectState)
		field  string
	}{
		{"missing kind", func(s *domain.ProjectState) { s.Header.ProjectKind = "" }, "header.projectKind"},
		{"unknown kind", func(s *domain.ProjectState) { s.Header.ProjectKind = "fax" }, "header.projectKind"},
		{"version zero", func(s *domain.ProjectState) { s.Header.Version = 0 }, "header.version"},
		{"missing start", func(s *domain.ProjectState) { s.Header.StartNodeName = "" }, "header.startNodeName"},
		{"dangling start", func(s *domain.ProjectState) { s.Header.StartNodeName = "gone" }, "header.startNodeName"},
		{"unnamed node", func(s *domain.ProjectState) { s.Nodes[1].Name = "" }, "nodes[1].name"},
		{"duplicate node", func(s *domain.ProjectState) { s.Nodes[1].Name = "start" }, "nodes[1].name"},
		{"node name with slash", func(s *domain.ProjectState) { s.Nodes[1].Name = "a/b" }, "nodes[1].name"},
		{"step without kind", func(s *domain.ProjectState) { s.Nodes[0].Steps[0].Kind = "" }, "nodes[0].steps[0].kind"},
		{"step kind of other project kind", func(s *domain.ProjectState) { s.Nodes[0].Steps[0].Kind = "ussdCollect" }, "nodes[0].steps[0].kind"},
		{"duplicate step", func(s *domain.ProjectState) {
			s.Nodes[0].Steps = append(s.Nodes[0].Steps, domain.Step{Kind: "say", Name: "step1"})
		}, "nodes[0].steps[1].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validState()
			tt.mutate(s)
			err := v.Validate(s)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Contains(t, fields(err), tt.field)
		})
	}

	t.Run("nil state", func(t *testing.T) {
		assert.ErrorIs(t, v.Validate(nil), domain.ErrValidation)
	})
}
