package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultEnvPrefix = "ACCOUNTS_"

// EnvConfigLoader reads PREFIX_SECTION__KEY variables, optionally seeded from
// dotenv files. Nested keys are separated by a double underscore.
type EnvConfigLoader struct {
	Prefix   string
	DotEnv   []string
	LookupFn func() []string
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.DotEnv) > 0 {
		if err := godotenv.Load(l.DotEnv...); err != nil {
			return nil, fmt.Errorf("core: load dotenv: %w", err)
		}
	}
	prefix := l.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	environ := os.Environ
	if l.LookupFn != nil {
		environ = l.LookupFn
	}

	out := map[string]any{}
	for _, entry := range environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, prefix)), "__")
		setNested(out, path, coerceScalar(value))
	}
	return out, nil
}

// FileConfigLoader reads a YAML document.
type FileConfigLoader struct {
	Path     string
	Optional bool
}

func (l FileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config file: %w", err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("core: decode config file: %w", err)
	}
	return out, nil
}

// LayeredConfigLoader merges loaders in order; later loaders win.
type LayeredConfigLoader []RawConfigLoader

func (l LayeredConfigLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	for _, loader := range l {
		if loader == nil {
			continue
		}
		raw, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		mergeRaw(out, raw)
	}
	return out, nil
}

func setNested(target map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		target[path[0]] = value
		return
	}
	child, ok := target[path[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		target[path[0]] = child
	}
	setNested(child, path[1:], value)
}

func mergeRaw(dst, src map[string]any) {
	for key, value := range src {
		srcChild, srcIsMap := value.(map[string]any)
		dstChild, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeRaw(dstChild, srcChild)
			continue
		}
		dst[key] = value
	}
}

func coerceScalar(value string) any {
	trimmed := strings.TrimSpace(value)
	if parsed, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return parsed
	}
	if parsed, err := strconv.ParseBool(trimmed); err == nil {
		return parsed
	}
	return trimmed
}
