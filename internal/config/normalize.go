package config

import "strings"

func normalizeRedisRawURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://") {
		return trimmed
	}
	return "redis://" + trimmed
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	trimmed := strings.ToLower(strings.TrimSpace(env))
	if trimmed == "" {
		return defaultEnv
	}
	return trimmed
}

func normalizeProviders(in []AIProvider) []AIProvider {
	out := make([]AIProvider, 0, len(in))
	for _, p := range in {
		p.ID = strings.TrimSpace(p.ID)
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		p.Endpoint = strings.TrimRight(strings.TrimSpace(p.Endpoint), "/")
		p.APIKey = strings.TrimSpace(p.APIKey)
		p.DefaultModel = strings.TrimSpace(p.DefaultModel)
		if p.ID == "" {
			continue
		}
		if p.Type == "" {
			p.Type = "openai-compatible"
		}
		out = append(out, p)
	}
	return out
}

func copyStringMap(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
