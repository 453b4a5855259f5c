package prefect

import (
	"fmt"
	"time"

	"github.com/hboehmer-IW/prefect/pkg/api"
)

// FlowBuilder provides a fluent API for defining flows:
//
//	flow := prefect.NewFlow("fetch-repo-stats", fetchRepoStats).
//	    WithDescription("Fetch stargazer and fork counts").
//	    WithRetries(3, 200*time.Millisecond)
//
//	if err := flow.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
//
//	run, err := prefect.Run(ctx, engine, flow.Name(), params)
type FlowBuilder struct {
	def api.FlowDefinition
}

// NewFlow creates a new flow builder with the given name and function.
func NewFlow(name string, fn FlowFunc) *FlowBuilder {
	if name == "" {
		panic("prefect: flow name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("prefect: flow %q has nil function", name))
	}
	return &FlowBuilder{
		def: api.FlowDefinition{
			Name: name,
			Fn:   fn,
		},
	}
}

// Name returns the flow name.
func (b *FlowBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying FlowDefinition.
// Typically used when interacting with lower-level APIs.
func (b *FlowBuilder) Definition() FlowDefinition {
	return b.def
}

// WithDescription sets a human-readable description.
func (b *FlowBuilder) WithDescription(desc string) *FlowBuilder {
	b.def.Description = desc
	return b
}

// WithTags attaches tags to the flow definition.
func (b *FlowBuilder) WithTags(tags ...string) *FlowBuilder {
	b.def.Tags = append(b.def.Tags, tags...)
	return b
}

// WithRetries configures a fixed-delay retry policy: the flow function is
// invoked once, plus up to 'retries' more times, waiting 'delay' between
// attempts.
func (b *FlowBuilder) WithRetries(retries int, delay time.Duration) *FlowBuilder {
	if retries < 0 {
		panic(fmt.Sprintf("prefect: flow %q has negative retries", b.def.Name))
	}
	b.def.Retry = &api.RetryPolicy{
		Retries:    retries,
		RetryDelay: delay,
	}
	return b
}

// WithRetryPolicy sets the full retry policy, e.g. one built with Retry.
func (b *FlowBuilder) WithRetryPolicy(policy RetryPolicy) *FlowBuilder {
	// Make a copy so callers can mutate their RetryPolicy after the call
	// without affecting the stored definition.
	p := policy
	b.def.Retry = &p
	return b
}

// WithTimeout bounds each individual attempt of the flow function.
func (b *FlowBuilder) WithTimeout(d time.Duration) *FlowBuilder {
	b.def.Timeout = d
	return b
}

// Register registers the built flow with the given engine.
func (b *FlowBuilder) Register(eng Engine) error {
	return eng.RegisterFlow(b.def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *FlowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
