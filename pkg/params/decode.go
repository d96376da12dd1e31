package params

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seeds is an ordered set of seed addresses. It decodes from either a comma
// separated string or a list.
type Seeds []string

// ParseSeeds splits a comma separated list, trimming blanks and dropping
// duplicates while keeping first-seen order
func ParseSeeds(s string) Seeds {
	return normalizeSeeds(strings.Split(s, ","))
}

func normalizeSeeds(in []string) Seeds {
	seen := make(map[string]struct{}, len(in))
	out := make(Seeds, 0, len(in))
	for _, raw := range in {
		seed := strings.TrimSpace(raw)
		if seed == "" {
			continue
		}
		if _, ok := seen[seed]; ok {
			continue
		}
		seen[seed] = struct{}{}
		out = append(out, seed)
	}
	return out
}

// String joins the seeds the way cassandra.yaml expects them
func (s Seeds) String() string {
	return strings.Join(s, ",")
}

// UnmarshalYAML implements yaml.Unmarshaler
func (s *Seeds) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = ParseSeeds(value.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = normalizeSeeds(list)
		return nil
	default:
		return fmt.Errorf("seeds: expected string or list at line %d", value.Line)
	}
}

// UnmarshalTOML implements toml.Unmarshaler
func (s *Seeds) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case string:
		*s = ParseSeeds(val)
		return nil
	case []any:
		list := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("seeds: expected string entries, got %T", item)
			}
			list = append(list, str)
		}
		*s = normalizeSeeds(list)
		return nil
	default:
		return fmt.Errorf("seeds: expected string or array, got %T", v)
	}
}

// UnmarshalYAML accepts java_version written as a number or a string
func (j *JavaVersion) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("java_version: expected scalar at line %d", value.Line)
	}
	*j = JavaVersion(strings.TrimSpace(value.Value))
	return nil
}

// UnmarshalTOML accepts java_version written as an integer or a string
func (j *JavaVersion) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case string:
		*j = JavaVersion(strings.TrimSpace(val))
	case int64:
		*j = JavaVersion(fmt.Sprintf("%d", val))
	default:
		return fmt.Errorf("java_version: expected string or integer, got %T", v)
	}
	return nil
}
