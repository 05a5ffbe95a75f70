package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
)

const gitSection = appName

// gitConfigLoader allows tests to replace the git config source.
var gitConfigLoader = readGitConfig

// readGitConfig returns the raw options of the lazystage section.
func readGitConfig(globalOnly bool, repoPath string) (map[string][]string, error) {
	var (
		cfg *gitconfig.Config
		err error
	)
	if globalOnly {
		cfg, err = gitconfig.LoadConfig(gitconfig.GlobalScope)
	} else {
		var repo *git.Repository
		repo, err = git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return map[string][]string{}, nil
		}
		if err != nil {
			return nil, err
		}
		cfg, err = repo.ConfigScoped(gitconfig.LocalScope)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read git config: %w", err)
	}

	out := make(map[string][]string)
	if cfg.Raw == nil || !cfg.Raw.HasSection(gitSection) {
		return out, nil
	}
	for _, opt := range cfg.Raw.Section(gitSection).Options {
		key := normalizeKey(opt.Key)
		out[key] = append(out[key], opt.Value)
	}
	return out, nil
}

// normalizeKey maps git's dash spelling onto the YAML underscore keys;
// git config variable names cannot contain underscores.
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "-", "_")
}

// convertGitConfigToParseConfig converts to format expected by parseConfig().
func convertGitConfigToParseConfig(gitCfg map[string][]string) map[string]any {
	result := make(map[string]any)

	for key, values := range gitCfg {
		if len(values) == 0 {
			continue
		}

		// parseConfig expects []any, not []string
		if len(values) > 1 {
			anySlice := make([]any, len(values))
			for i, v := range values {
				anySlice[i] = v
			}
			result[key] = anySlice
			continue
		}

		result[key] = values[0]
	}

	return result
}

// loadGitConfig reads git config values and returns map for parseConfig.
func loadGitConfig(globalOnly bool, repoPath string) (map[string]any, error) {
	gitCfg, err := gitConfigLoader(globalOnly, repoPath)
	if err != nil {
		return nil, err
	}
	return convertGitConfigToParseConfig(gitCfg), nil
}

// parseCLIConfigOverrides parses --config=lazystage.key=value format.
func parseCLIConfigOverrides(overrides []string) (map[string]any, error) {
	const prefix = gitSection + "."

	gitCfg := make(map[string][]string)
	for _, override := range overrides {
		fullKey, value, ok := strings.Cut(override, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config override: %q, expected format: %skey=value (note: use = not space)", override, prefix)
		}

		if !strings.HasPrefix(fullKey, prefix) {
			return nil, fmt.Errorf("config override key must start with '%s': %q", prefix, fullKey)
		}

		key := normalizeKey(strings.TrimPrefix(fullKey, prefix))
		if key == "" {
			return nil, fmt.Errorf("empty config key in override: %q", override)
		}
		gitCfg[key] = append(gitCfg[key], value)
	}

	return convertGitConfigToParseConfig(gitCfg), nil
}
