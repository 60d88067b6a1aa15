package config

import (
	"fmt"
	"strings"
)

type VariableResolver interface {
	ResolveValue(value string) (string, error)
}

type environmentVariableResolver struct {
	env map[string]string
}

// NewEnvironmentVariableResolver resolves "$VAR" and "${VAR}" values against
// the given KEY=VALUE pairs. Other values are returned unchanged.
func NewEnvironmentVariableResolver(env []string) VariableResolver {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m[k] = v
	}
	return &environmentVariableResolver{env: m}
}

func (r *environmentVariableResolver) ResolveValue(value string) (string, error) {
	if !strings.HasPrefix(value, "$") {
		return value, nil
	}

	name := strings.TrimPrefix(value, "$")
	if strings.HasPrefix(name, "{") && strings.HasSuffix(name, "}") {
		name = name[1 : len(name)-1]
	}

	v, ok := r.env[name]
	if !ok || v == "" {
		return "", fmt.Errorf("environment variable %q not set", name)
	}
	return v, nil
}

// ResolveMap resolves every value of m, failing on the first error.
func ResolveMap(r VariableResolver, m map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(m))
	for k, v := range m {
		rv, err := r.ResolveValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		resolved[k] = rv
	}
	return resolved, nil
}
