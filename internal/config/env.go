package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LoadEnvFiles loads .env files without overriding variables already set
func LoadEnvFiles() error {
	envPaths := []string{
		"./.env",
	}

	if home, err := os.UserHomeDir(); err == nil {
		envPaths = append(envPaths,
			filepath.Join(home, ".takeoff", ".env"),
			filepath.Join(home, ".config", "takeoff", ".env"),
		)
	}

	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			if err := loadEnvFile(path); err != nil {
				return err
			}
		}
	}

	return nil
}

func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			value = strings.Trim(value, `"`)
		} else if strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'") {
			value = strings.Trim(value, `'`)
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

var envAliases = map[string][]string{
	"TAKEOFF_STORAGE_DATA_DIR":       {"TAKEOFF_DATA_DIR"},
	"TAKEOFF_SERVER_PORT":            {"PORT"},
	"TAKEOFF_OCR_TESSERACT_PATH":     {"TESSERACT_PATH"},
	"TAKEOFF_OCR_LANGUAGES":          {"TESSERACT_LANGS"},
	"TAKEOFF_RENDER_PDFTOPPM_PATH":   {"PDFTOPPM_PATH"},
	"TAKEOFF_RENDER_PDFTOCAIRO_PATH": {"PDFTOCAIRO_PATH"},
}

func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	if aliases, ok := envAliases[canonicalKey]; ok {
		for _, alias := range aliases {
			if val := os.Getenv(alias); val != "" {
				return val
			}
		}
	}

	return ""
}
