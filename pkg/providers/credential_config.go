package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

type credentialCandidate struct {
	mode   string
	source string
	field  string
}

func selectSingleCredential(
	candidates []credentialCandidate,
	missingMessage string,
	multiPrefix string,
) (mode string, source string, err error) {
	switch len(candidates) {
	case 0:
		return "", "", fmt.Errorf("%s", strings.TrimSpace(missingMessage))
	case 1:
		chosen := candidates[0]
		return chosen.mode, chosen.source, nil
	default:
		fields := make([]string, 0, len(candidates))
		for _, item := range candidates {
			fields = append(fields, item.field)
		}
		sort.Strings(fields)
		return "", "", fmt.Errorf(
			"%s (%s); set exactly one",
			strings.TrimSpace(multiPrefix),
			strings.Join(fields, ", "),
		)
	}
}

// resolveAPIKey picks exactly one of the inline key or the key file for a
// provider section.
func resolveAPIKey(providerLabel, keyField, key, fileField, keyFile string) (mode string, source string, err error) {
	candidates := make([]credentialCandidate, 0, 2)
	if key = strings.TrimSpace(key); key != "" {
		candidates = append(candidates, credentialCandidate{mode: authModeAPIKey, source: key, field: keyField})
	}
	if keyFile = strings.TrimSpace(keyFile); keyFile != "" {
		candidates = append(candidates, credentialCandidate{mode: authModeKeyFile, source: keyFile, field: fileField})
	}
	mode, source, err = selectSingleCredential(
		candidates,
		fmt.Sprintf("%s credentials are required (set %s or %s)", providerLabel, keyField, fileField),
		fmt.Sprintf("multiple %s credential sources configured", providerLabel),
	)
	if err != nil {
		return "", "", err
	}
	if err := validateKeyFileSource(mode, source, providerLabel); err != nil {
		return "", "", err
	}
	return mode, source, nil
}

func validateKeyFileSource(mode, source, providerLabel string) error {
	if mode != authModeKeyFile {
		return nil
	}
	resolved := expandHome(strings.TrimSpace(source))
	if _, err := os.Stat(resolved); err != nil {
		label := strings.TrimSpace(providerLabel)
		if label == "" {
			label = "Provider"
		}
		return fmt.Errorf("%s key file not accessible at %s: %w", label, resolved, err)
	}
	return nil
}
