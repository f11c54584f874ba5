package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Port        int
	DataDir     string
	CatalogPath string
	AreasPath   string
	DatabaseURL string
	RedisAddr   string
	RedisPass   string
	RedisDB     int
	CacheTTL    time.Duration
	LogLevel    string
	LogPretty   bool
}

func Load() (Config, error) {
	envPath := filepath.Join(".", ".env")

	values := map[string]string{}
	if _, err := os.Stat(envPath); err == nil {
		fileValues, err := loadDotEnvFile(envPath)
		if err != nil {
			return Config{}, err
		}
		values = fileValues
	} else if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("stat %s: %w", envPath, err)
	}

	get := func(key string) string {
		return firstNonEmpty(os.Getenv(key), values[key])
	}

	cfg := Config{
		Port:     8080,
		CacheTTL: 30 * time.Minute,
		LogLevel: "info",
	}
	if portRaw := get("PORT"); portRaw != "" {
		port, err := strconv.Atoi(portRaw)
		if err != nil || port <= 0 {
			return Config{}, fmt.Errorf("invalid PORT: %q", portRaw)
		}
		cfg.Port = port
	}

	cfg.DataDir = get("DATA_DIR")
	if cfg.DataDir == "" {
		return Config{}, fmt.Errorf("DATA_DIR is required (environment variable or .env)")
	}

	cfg.CatalogPath = get("CATALOG_PATH")
	cfg.AreasPath = get("AREAS_PATH")
	cfg.DatabaseURL = get("DATABASE_URL")
	cfg.RedisAddr = get("REDIS_ADDR")
	cfg.RedisPass = get("REDIS_PASSWORD")
	if dbRaw := get("REDIS_DB"); dbRaw != "" {
		db, err := strconv.Atoi(dbRaw)
		if err != nil || db < 0 {
			return Config{}, fmt.Errorf("invalid REDIS_DB: %q", dbRaw)
		}
		cfg.RedisDB = db
	}
	if ttlRaw := get("CACHE_TTL_SECONDS"); ttlRaw != "" {
		secs, err := strconv.Atoi(ttlRaw)
		if err != nil || secs < 0 {
			return Config{}, fmt.Errorf("invalid CACHE_TTL_SECONDS: %q", ttlRaw)
		}
		cfg.CacheTTL = time.Duration(secs) * time.Second
	}
	if lvl := get("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	cfg.LogPretty = isTruthy(get("LOG_PRETTY"))

	return cfg, nil
}

// LoadAreas merges the floor-area overrides from a TOML file over the given
// defaults. A missing path returns the defaults untouched.
func LoadAreas(path string, defaults map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("read areas file %s: %w", path, err)
	}
	var doc struct {
		Areas map[string]float64 `toml:"areas"`
	}
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse areas file %s: %w", path, err)
	}
	for k, v := range doc.Areas {
		if v > 0 {
			out[strings.ToUpper(strings.TrimSpace(k))] = v
		}
	}
	return out, nil
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func firstNonEmpty(candidates ...string) string {
	for _, candidate := range candidates {
		if value := strings.TrimSpace(candidate); value != "" {
			return value
		}
	}
	return ""
}

func loadDotEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s not found; create it from .env.example", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(file)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		keyValue := strings.SplitN(line, "=", 2)
		if len(keyValue) != 2 {
			return nil, fmt.Errorf("invalid .env line %d: %q", lineNo, line)
		}

		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "" {
			return nil, fmt.Errorf("invalid .env line %d: empty key", lineNo)
		}

		if strings.HasPrefix(key, "export ") {
			key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		}

		if len(value) >= 2 {
			if (value[0] == '\'' && value[len(value)-1] == '\'') ||
				(value[0] == '"' && value[len(value)-1] == '"') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return values, nil
}
