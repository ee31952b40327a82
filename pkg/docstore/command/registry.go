// Package command exposes document operations as named commands with typed
// arguments. Every transport (REST connector, MCP server, admin CLI) calls
// the same Registry.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
)

var (
	// ErrUnknownCommand indicates no command is registered under the name
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidArguments indicates the arguments do not decode into the
	// command's parameter type or miss a required parameter
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Param types used in command schemas
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
)

// Param describes one command argument
type Param struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Spec describes a command
type Spec struct {
	Name        string  `json:"name"`
	Group       string  `json:"group"`
	Description string  `json:"description"`
	Params      []Param `json:"params,omitempty"`
}

// NoArgs reports whether the command can be called without arguments
func (s Spec) NoArgs() bool {
	for _, p := range s.Params {
		if p.Required {
			return false
		}
	}
	return true
}

// Result is what every command returns to its transport
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	Data    any    `json:"data,omitempty"`
	// NotFound marks failures caused by a missing document or template
	NotFound bool `json:"-"`
	// Invalid marks failures caused by bad input or an undecodable document
	Invalid bool `json:"-"`
}

// Text renders the result as the human readable message, followed by the
// data as indented JSON when present
func (r Result) Text() string {
	if r.Data == nil {
		return r.Message
	}
	b, err := json.MarshalIndent(r.Data, "", "  ")
	if err != nil {
		return r.Message
	}
	if r.Message == "" {
		return string(b)
	}
	return r.Message + "\n" + string(b)
}

type handlerFunc func(ctx context.Context, raw json.RawMessage) (Result, error)

type entry struct {
	spec Spec
	call handlerFunc
}

// Registry maps command names to handlers. It is populated once at start-up
// and read-only afterwards.
type Registry struct {
	entries map[string]*entry
	order   []string
	logger  *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{entries: make(map[string]*entry), logger: logger}
}

// Register adds a command whose arguments decode into T. It panics when
// the name is empty or already registered.
func Register[T any](r *Registry, spec Spec, fn func(ctx context.Context, args T) (Result, error)) {
	if spec.Name == "" {
		panic("command: empty command name")
	}
	if _, dup := r.entries[spec.Name]; dup {
		panic("command: duplicate command " + spec.Name)
	}
	r.entries[spec.Name] = &entry{
		spec: spec,
		call: func(ctx context.Context, raw json.RawMessage) (Result, error) {
			var args T
			if err := decodeArgs(raw, spec, &args); err != nil {
				return Result{}, err
			}
			return fn(ctx, args)
		},
	}
	r.order = append(r.order, spec.Name)
}

func decodeArgs(raw json.RawMessage, spec Spec, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(raw, &present); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	var missing []string
	for _, p := range spec.Params {
		if v, ok := present[p.Name]; p.Required && (!ok || bytes.Equal(v, []byte("null")) || bytes.Equal(v, []byte(`""`))) {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidArguments, strings.Join(missing, ", "))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// Specs returns the registered command specs in registration order
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].spec)
	}
	return out
}

// Lookup returns the spec of a command
func (r *Registry) Lookup(name string) (Spec, bool) {
	e, ok := r.entries[name]
	if !ok {
		return Spec{}, false
	}
	return e.spec, true
}

// Len returns the number of registered commands
func (r *Registry) Len() int {
	return len(r.order)
}

// Restrict returns a registry holding only the named commands, in the
// order they are registered in r
func (r *Registry) Restrict(names []string) (*Registry, error) {
	var unknown []string
	for _, n := range names {
		if _, ok := r.entries[n]; !ok {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, strings.Join(unknown, ", "))
	}
	sub := NewRegistry(r.logger)
	for _, name := range r.order {
		if slices.Contains(names, name) {
			sub.entries[name] = r.entries[name]
			sub.order = append(sub.order, name)
		}
	}
	return sub, nil
}

// Dispatch runs a command. Unknown commands and undecodable arguments are
// returned as errors; failures inside the command, panics included, are
// reported through a Result with OK false.
func (r *Registry) Dispatch(ctx context.Context, name string, raw json.RawMessage) (res Result, err error) {
	e, ok := r.entries[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("command panicked", "command", name, "panic", p, "stack", string(debug.Stack()))
			res, err = Result{OK: false, Message: fmt.Sprintf("internal error in %s", name)}, nil
		}
	}()

	res, err = e.call(ctx, raw)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, ErrInvalidArguments):
		return Result{}, fmt.Errorf("%s: %w", name, err)
	default:
		r.logger.Warn("command failed", "command", name, "error", err)
		return failure(err), nil
	}
}

// DispatchMap is Dispatch for transports that decode arguments into a map
func (r *Registry) DispatchMap(ctx context.Context, name string, args map[string]any) (Result, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return r.Dispatch(ctx, name, raw)
}
