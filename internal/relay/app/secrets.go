package app

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// legacySecretEnv maps the per-LMS variables of older deployments to the
// consumer keys those LMSs were configured with.
var legacySecretEnv = map[string]string{
	"LTI_MOODLE_SECRET":  "moodle_key",
	"LTI_OPENEDX_SECRET": "openedx_key",
}

type consumersFile struct {
	Consumers map[string]string `yaml:"consumers"`
}

// LoadConsumerSecrets builds the consumer key to secret map. Sources, lowest
// precedence first:
//   - the legacy LTI_MOODLE_SECRET / LTI_OPENEDX_SECRET variables
//   - the YAML file at path, shaped as "consumers: {key: secret}"
//   - inline "key:secret,key:secret"
//
// Entries with an empty key or secret are dropped.
func LoadConsumerSecrets(path, inline string) (map[string]string, error) {
	secrets := make(map[string]string)

	for env, key := range legacySecretEnv {
		if v := os.Getenv(env); v != "" {
			secrets[key] = v
		}
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read consumers file: %w", err)
		}
		var f consumersFile
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("parse consumers file %s: %w", path, err)
		}
		maps.Copy(secrets, f.Consumers)
	}

	parsed, err := ParseConsumerSecrets(inline)
	if err != nil {
		return nil, err
	}
	maps.Copy(secrets, parsed)

	maps.DeleteFunc(secrets, func(k, v string) bool {
		return strings.TrimSpace(k) == "" || v == ""
	})
	return secrets, nil
}

// ParseConsumerSecrets parses "key:secret,key:secret". Only the first colon
// separates, so secrets may contain colons.
func ParseConsumerSecrets(s string) (map[string]string, error) {
	out := make(map[string]string)
	for pair := range strings.SplitSeq(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, secret, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("consumer secret %q: expected key:secret", key)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(secret)
	}
	return out, nil
}
