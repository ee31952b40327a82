package command

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// AllCommands is the tools value selecting every registered command
const AllCommands = "all"

// Profile is a named subset of commands exposed by a transport
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	UseCase     string `yaml:"use_case"`
	// Tools lists command names; nil means every command
	Tools []string `yaml:"-"`
}

// UnmarshalYAML accepts tools as either the string "all" or a list of names
func (p *Profile) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name        string    `yaml:"name"`
		Description string    `yaml:"description"`
		UseCase     string    `yaml:"use_case"`
		Tools       yaml.Node `yaml:"tools"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	p.Name, p.Description, p.UseCase = raw.Name, raw.Description, raw.UseCase
	p.Tools = nil

	switch raw.Tools.Kind {
	case 0:
	case yaml.ScalarNode:
		if raw.Tools.Value != AllCommands {
			return fmt.Errorf("line %d: tools must be %q or a list", raw.Tools.Line, AllCommands)
		}
	case yaml.SequenceNode:
		if err := raw.Tools.Decode(&p.Tools); err != nil {
			return err
		}
		if p.Tools == nil {
			p.Tools = []string{}
		}
	default:
		return fmt.Errorf("line %d: tools must be %q or a list", raw.Tools.Line, AllCommands)
	}
	return nil
}

// Profiles maps profile ids to profiles
type Profiles map[string]Profile

type profileFile struct {
	Profiles Profiles `yaml:"profiles"`
}

// ParseProfiles decodes a profiles document:
//
//	profiles:
//	  proposal-generator:
//	    name: Proposal generator
//	    tools: [list_document_templates, create_document_from_template]
//	  full:
//	    tools: all
func ParseProfiles(data []byte) (Profiles, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(f.Profiles) == 0 {
		return nil, errors.New("parse profiles: no profiles defined")
	}
	return f.Profiles, nil
}

// LoadProfiles reads a profiles file
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(data)
}

// Apply restricts r to the commands of the named profile. An empty name
// returns r unchanged.
func (ps Profiles) Apply(r *Registry, name string) (*Registry, error) {
	if name == "" {
		return r, nil
	}
	p, ok := ps[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %v)", name, slices.Sorted(maps.Keys(ps)))
	}
	if p.Tools == nil {
		return r, nil
	}
	sub, err := r.Restrict(p.Tools)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}
	return sub, nil
}

// ApplyProfile loads path and restricts r to the named profile. An empty
// path or name returns r unchanged.
func ApplyProfile(r *Registry, path, name string) (*Registry, error) {
	if path == "" || name == "" {
		return r, nil
	}
	ps, err := LoadProfiles(path)
	if err != nil {
		return nil, err
	}
	return ps.Apply(r, name)
}
