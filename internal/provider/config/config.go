package config

import (
	"fmt"
	"strings"
)

const envSecretRefPrefix = "env://"

// Getenv reads one environment variable. os.Getenv satisfies it.
type Getenv func(string) string

// ResolveSecretRef resolves "env://NAME" or a bare "NAME" through getenv.
func ResolveSecretRef(getenv Getenv, ref string) (string, error) {
	name, err := parseSecretRefName(ref)
	if err != nil {
		return "", err
	}
	if getenv == nil {
		return "", fmt.Errorf("secret lookup function is required")
	}
	value := strings.TrimSpace(getenv(name))
	if value == "" {
		return "", fmt.Errorf("secret_ref %q resolved empty value", name)
	}
	return value, nil
}

// ResolveLiteralOrSecret prefers the secret ref when one is set.
func ResolveLiteralOrSecret(getenv Getenv, literal, secretRef string) (string, error) {
	ref := strings.TrimSpace(secretRef)
	if ref == "" {
		return strings.TrimSpace(literal), nil
	}
	return ResolveSecretRef(getenv, ref)
}

// ResolveEnvValue reads literalEnvVar, falling back to fallback, and lets a
// secret ref in secretRefEnvVar override both. An unresolvable ref keeps the literal.
func ResolveEnvValue(getenv Getenv, literalEnvVar, secretRefEnvVar, fallback string) string {
	literal := strings.TrimSpace(getenv(literalEnvVar))
	if literal == "" {
		literal = fallback
	}
	value, err := ResolveLiteralOrSecret(getenv, literal, getenv(secretRefEnvVar))
	if err != nil {
		return strings.TrimSpace(literal)
	}
	return value
}

// DefaultString returns fallback when v is blank.
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

// RedactSecret hides non-empty secret material in logs and summaries.
func RedactSecret(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return "***redacted***"
}

func parseSecretRefName(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", fmt.Errorf("secret_ref is required")
	}
	if strings.HasPrefix(trimmed, envSecretRefPrefix) {
		name := strings.TrimSpace(strings.TrimPrefix(trimmed, envSecretRefPrefix))
		if name == "" {
			return "", fmt.Errorf("secret_ref %q is missing env var name", ref)
		}
		if strings.Contains(name, "/") {
			return "", fmt.Errorf("secret_ref %q contains unsupported path separator", ref)
		}
		return name, nil
	}
	if strings.Contains(trimmed, "://") {
		return "", fmt.Errorf("secret_ref %q uses unsupported scheme", ref)
	}
	if strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("secret_ref %q contains unsupported path separator", ref)
	}
	return trimmed, nil
}
