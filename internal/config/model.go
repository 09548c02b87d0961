// internal/config/model.go
//
// Typed configuration model for the control panel.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                           – dotenv values,
//   • `conf/global.yaml`                        – primary static file,
//   • `GAMEHOST_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *after* unmarshalling, so secrets never live in
// flat files or git history—only the Vault URI does.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import "errors"

// ErrMissingSetting is wrapped around every configuration-absence failure
// so callers can classify it separately from upstream or domain errors.
var ErrMissingSetting = errors.New("required setting missing")

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
}

//
// Database section
//

// Database holds the control-plane DSN.  The password portion may be a
// `vault:` URI resolved at boot.
type Database struct {
	DSN string `koanf:"dsn" validate:"required"`
}

//
// Panel section
//

// Panel configures the remote provisioning panel.  The application key is
// the service-level credential used for administrative calls (suspend,
// delete, create user); per-user client keys arrive with each request and
// are never configured here.
type Panel struct {
	BaseURL        string `koanf:"base_url" validate:"required,url"`
	ApplicationKey string `koanf:"application_key" validate:"required"`
	ClientKey      string `koanf:"client_key"`
}

//
// Payment section
//

// Payment configures checkout-session creation with the payment provider.
type Payment struct {
	BaseURL   string `koanf:"base_url" validate:"required,url"`
	ShopID    string `koanf:"shop_id" validate:"required"`
	SecretKey string `koanf:"secret_key" validate:"required"`
	ReturnURL string `koanf:"return_url" validate:"required,url"`
}

//
// Sweep section
//

// Sweep controls the expiry sweep worker.  The schedule uses standard cron
// syntax; an empty string disables the sweep entirely.
type Sweep struct {
	Schedule string `koanf:"schedule"`
}

//
// Geo section
//

// Geo points at the MaxMind database used to annotate audit entries.  The
// path is optional; without it audit entries simply omit the country code.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Log section
//

// Log holds logging tunables.
type Log struct {
	Level string `koanf:"level"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or GAMEHOST_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Panel    Panel    `koanf:"panel"`
	Payment  Payment  `koanf:"payment"`
	Sweep    Sweep    `koanf:"sweep"`
	Geo      Geo      `koanf:"geo"`
	Log      Log      `koanf:"log"`
	Paths    Paths    `koanf:"-"` // not loaded from config files
}
