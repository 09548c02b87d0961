// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` — first `<root>/conf/.env`, then jail-wide fallback.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `GAMEHOST_`, where `__` maps to “.”
     (e.g., `GAMEHOST_PANEL__BASE_URL → panel.base_url`).

After merging, the tree is unmarshalled into strongly-typed structs,
validated, enriched with the runtime root path, and cached in an
`atomic.Pointer` for lock-free reads.  `Reload()` simply calls `Load()`
again and swaps the pointer.

Secret material (panel application key, payment secret) may be written as
`vault:<path>#<key>` URIs; `ResolveSecrets` swaps those for real values via
the injected resolver.  Validation runs before resolution, so a missing
Vault URI and a missing literal fail the same way: `ErrMissingSetting`.

Instrumentation
---------------
  • DEBUG spans — root discovery, YAML read, env overlay.
  • ERROR spans — YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  — final “config loaded” with key highlights.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

var current atomic.Pointer[Config]

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves GAMEHOST_ROOT or climbs directories until
// conf/global.yaml is found.  Falls back to executable heuristic for the
// production layout.
func rootDir() string {
	if r := os.Getenv("GAMEHOST_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, validates, and caches Config.
func Load() (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: GAMEHOST_PANEL__BASE_URL → panel.base_url
	if err := k.Load(env.Provider("GAMEHOST_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "GAMEHOST_")
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrMissingSetting, err)
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"panel_base_url", cfg.Panel.BaseURL,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

/*──────────────────────────── secret resolution ───────────────────────────*/

// SecretResolver resolves one key inside a KV secret.  The Vault client
// wrapper satisfies this signature; tests inject a map-backed stub.
type SecretResolver interface {
	GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error)
}

// ResolveSecrets replaces every `vault:<path>#<key>` value in cfg with the
// secret it names.  Fields holding literal values pass through untouched.
func ResolveSecrets(ctx context.Context, cfg *Config, r SecretResolver) error {
	fields := []*string{
		&cfg.Database.DSN,
		&cfg.Panel.ApplicationKey,
		&cfg.Panel.ClientKey,
		&cfg.Payment.SecretKey,
	}
	for _, f := range fields {
		v, err := resolveValue(ctx, *f, r)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

func resolveValue(ctx context.Context, raw string, r SecretResolver) (string, error) {
	const prefix = "vault:"
	if !strings.HasPrefix(raw, prefix) {
		return raw, nil
	}
	ref := strings.TrimPrefix(raw, prefix)
	path, key, ok := strings.Cut(ref, "#")
	if !ok {
		return "", fmt.Errorf("%w: malformed vault reference %q", ErrMissingSetting, raw)
	}
	val, err := r.GetKV(ctx, path, key, 5*time.Minute)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %q: %v", ErrMissingSetting, raw, err)
	}
	return val, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config  { return current.Load() }
func Reload() error { _, err := Load(); return err }
