package agent

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/cyzus/suzent-sub001/tools"
)

// Registry holds the tools available to the agent, in registration order.
type Registry struct {
	defs  map[string]tools.Definition
	order []string
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(defs ...tools.Definition) *Registry {
	r := &Registry{defs: make(map[string]tools.Definition)}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(d tools.Definition) {
	if _, exists := r.defs[d.Name]; !exists {
		r.order = append(r.order, d.Name)
	}
	r.defs[d.Name] = d
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (tools.Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ToAPITools converts the registry to Anthropic API tool parameters.
func (r *Registry) ToAPITools() []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(r.order))
	for _, name := range r.order {
		d := r.defs[name]
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: d.Properties,
					Required:   d.Required,
				},
			},
		})
	}
	return out
}
