package config

import (
	"context"
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMisspelledRepositoriesKey documents the open question from spec §9:
// some source trees spell the fleet key "reposotories". We only ever read
// "repositories"; this error exists so callers can surface a clear
// diagnostic if they find the typo in a config file instead of silently
// treating the whole repositories block as absent.
var ErrMisspelledRepositoriesKey = errors.New(`config: found "reposotories" key; the recognized key is "repositories"`)

// RemoteFileFetcher fetches the repo-root config file content at a given
// base ref. It is satisfied by the GitHub client's repository-contents
// call; kept as a narrow interface so Resolver has no import-time
// dependency on internal/githubclient.
type RemoteFileFetcher interface {
	FetchFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

// Resolver implements the three-tier configuration lookup of spec §6:
//  1. .github-webhook-server.yaml at the repository root, base ref of the PR
//  2. the per-repository block in the central config.yaml
//  3. the root of config.yaml
//
// The first tier that contains the key (even if explicitly null) wins;
// an explicit null means "use the caller's default", not "keep looking".
type Resolver struct {
	repoFile map[string]any // tier 1, per-delivery, may be nil
	repoTier map[string]any // tier 2
	rootTier map[string]any // tier 3
}

// NewResolver parses the central config.yaml bytes (tiers 2 & 3) for one
// repository slug. repoFileYAML is the optional tier-1 document fetched
// from the repo itself for this delivery's base ref; pass nil when it
// doesn't exist or couldn't be fetched (fetch failures fall through, they
// are not fatal per §7).
func NewResolver(centralYAML []byte, repoSlug string, repoFileYAML []byte) (*Resolver, error) {
	var root map[string]any
	if len(centralYAML) > 0 {
		if err := yaml.Unmarshal(centralYAML, &root); err != nil {
			return nil, err
		}
	}
	if _, bad := root["reposotories"]; bad {
		return nil, ErrMisspelledRepositoriesKey
	}

	var repoTier map[string]any
	if repos, ok := root["repositories"].(map[string]any); ok {
		if m, ok := repos[repoSlug].(map[string]any); ok {
			repoTier = m
		}
	}

	var repoFile map[string]any
	if len(repoFileYAML) > 0 {
		if err := yaml.Unmarshal(repoFileYAML, &repoFile); err != nil {
			return nil, err
		}
	}

	return &Resolver{repoFile: repoFile, repoTier: repoTier, rootTier: root}, nil
}

// GetValue implements the "get_value" lookup of spec §9: consult tier 1,
// then tier 2, then tier 3; the first tier where the key is *present*
// wins, even if its value is an explicit YAML null — in that case
// returnOnNone is returned immediately rather than falling through to a
// lower-priority tier.
func (r *Resolver) GetValue(key string, returnOnNone any) any {
	for _, tier := range []map[string]any{r.repoFile, r.repoTier, r.rootTier} {
		if tier == nil {
			continue
		}
		if v, present := tier[key]; present {
			if v == nil {
				return returnOnNone
			}
			return v
		}
	}
	return returnOnNone
}

// GetBool, GetString, GetInt, GetStringSlice are typed convenience
// wrappers over GetValue for the common config shapes used throughout the
// state machine and runners.
func (r *Resolver) GetBool(key string, def bool) bool {
	v := r.GetValue(key, def)
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func (r *Resolver) GetString(key, def string) string {
	v := r.GetValue(key, def)
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func (r *Resolver) GetInt(key string, def int) int {
	v := r.GetValue(key, def)
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return def
}

func (r *Resolver) GetStringSlice(key string, def []string) []string {
	v := r.GetValue(key, def)
	if raw, ok := v.([]any); ok {
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	if ss, ok := v.([]string); ok {
		return ss
	}
	return def
}

// decodeInto re-marshals a generic GetValue result back through yaml.v3 into
// a typed destination, letting the resolver stay a pure map[string]any
// reader while callers needing a structured shape (container config, custom
// check runs) get one without a second parsing path.
func decodeInto(v any, dst any) bool {
	if v == nil {
		return false
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return false
	}
	return yaml.Unmarshal(b, dst) == nil
}

// GetContainerConfig resolves the "container" key into a ContainerConfig,
// or nil if unset.
func (r *Resolver) GetContainerConfig() *ContainerConfig {
	v := r.GetValue("container", nil)
	if v == nil {
		return nil
	}
	var c ContainerConfig
	if !decodeInto(v, &c) {
		return nil
	}
	return &c
}

// GetPyPIConfig resolves the "pypi" key into a PyPIConfig, or nil if unset.
func (r *Resolver) GetPyPIConfig() *PyPIConfig {
	v := r.GetValue("pypi", nil)
	if v == nil {
		return nil
	}
	var c PyPIConfig
	if !decodeInto(v, &c) {
		return nil
	}
	return &c
}

// GetCustomCheckRuns resolves the "custom-check-runs" key.
func (r *Resolver) GetCustomCheckRuns() []CustomCheckRun {
	v := r.GetValue("custom-check-runs", nil)
	if v == nil {
		return nil
	}
	var c []CustomCheckRun
	if !decodeInto(v, &c) {
		return nil
	}
	return c
}

// GetPRSizeThresholds resolves the "pr-size-thresholds" key into the
// labels engine's rule shape.
func (r *Resolver) GetPRSizeThresholds() map[string]SizeRule {
	v := r.GetValue("pr-size-thresholds", nil)
	if v == nil {
		return nil
	}
	var m map[string]SizeRule
	if !decodeInto(v, &m) {
		return nil
	}
	return m
}

// GetTestOracleConfig resolves the "test-oracle" key.
func (r *Resolver) GetTestOracleConfig() *TestOracleConfig {
	v := r.GetValue("test-oracle", nil)
	if v == nil {
		return nil
	}
	var c TestOracleConfig
	if !decodeInto(v, &c) {
		return nil
	}
	return &c
}

// LoadFleetConfig reads and parses the central config.yaml from disk; used
// at process bootstrap and by cmd/webhookctl's validate subcommand.
func LoadFleetConfig(path string) (*FleetConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc FleetConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, err
	}
	if fc.Repositories == nil {
		var raw map[string]any
		if err := yaml.Unmarshal(b, &raw); err == nil {
			if _, bad := raw["reposotories"]; bad {
				return nil, ErrMisspelledRepositoriesKey
			}
		}
	}
	return &fc, nil
}
