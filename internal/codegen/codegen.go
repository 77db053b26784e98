// Package codegen implements the Mesh's Code Generator collaborator as
// a template-driven stub: it never calls an LLM, it substitutes a
// design spec's component name into one of two fixed templates — the
// full code generator is an explicit Non-goal, but the process
// boundary (subscribe design_specs, publish components) still belongs
// in the repo, grounded on
// original_source/.../code_generator/service.py's simple_generate.
package codegen

import (
	"context"
	"encoding/json"
	"strings"
	"text/template"
	"time"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/envelope"
)

var buttonTmpl = template.Must(template.New("button").Parse(
	`<button class='px-4 py-2 bg-blue-500 text-white rounded'>Click</button>`))

var genericTmpl = template.Must(template.New("generic").Parse(`<div>{{.Component}}</div>`))

// Service subscribes to design_specs and publishes a stub ComponentRecord
// for each, mirroring simple_generate's component-name switch.
type Service struct {
	busClient bus.Client
	logger    commons.Logger
}

// New builds a Service.
func New(busClient bus.Client, logger commons.Logger) *Service {
	return &Service{busClient: busClient, logger: logger}
}

// Run subscribes to the design_specs channel and blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) {
	s.busClient.Subscribe(ctx, []string{string(envelope.ChannelDesignSpecs)}, func(channel string, payload []byte) {
		s.handleDesignSpec(ctx, payload)
	})
}

func (s *Service) handleDesignSpec(ctx context.Context, payload []byte) {
	var spec envelope.DesignSpec
	if err := json.Unmarshal(payload, &spec); err != nil {
		s.logger.Warnf("codegen: malformed design_spec payload: %v", err)
		return
	}

	record := Generate(spec)

	out, err := json.Marshal(record)
	if err != nil {
		s.logger.Warnf("codegen: marshal component: %v", err)
		return
	}
	if err := s.busClient.Publish(ctx, string(envelope.ChannelComponents), out); err != nil {
		s.logger.Warnf("codegen: publish component for %s: %v", spec.SpecID, err)
	}
}

// Generate builds a trivial component from spec without any LLM call.
func Generate(spec envelope.DesignSpec) envelope.ComponentRecord {
	var jsx strings.Builder
	namedExports := []string{"MockComponent"}

	if strings.EqualFold(spec.Component, "button") {
		_ = buttonTmpl.Execute(&jsx, nil)
		namedExports = []string{"MockButton"}
	} else {
		_ = genericTmpl.Execute(&jsx, struct{ Component string }{spec.Component})
	}

	return envelope.ComponentRecord{
		Kind:         envelope.KindComponent,
		SpecID:       spec.SpecID,
		JSX:          jsx.String(),
		NamedExports: namedExports,
		Tailwind:     true,
		LintPassed:   true,
		GeneratedAt:  time.Now().UTC(),
	}
}
