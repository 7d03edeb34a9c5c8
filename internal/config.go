package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/perch/daybook/internal/devserver"
	"github.com/perch/daybook/internal/reminder"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	API       APIConfig         `yaml:"api"`
	Diary     DiaryConfig       `yaml:"diary"`
	Reminders RemindersConfig   `yaml:"reminders"`
	Push      PushConfig        `yaml:"push"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	State     StateConfig       `yaml:"state"`
	Fixtures  FixturesConfig    `yaml:"fixtures"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.App, &c.API, &c.Diary, &c.Reminders, &c.Push, &c.SQLite, &c.State, &c.Fixtures, &c.Auth,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// APIConfig points the client commands (remind, subscribe, mcp) at a record
// store backend, which may be this process's own dev server.
type APIConfig struct {
	BaseURL  string `yaml:"base_url"`
	Timezone string `yaml:"timezone"`
	Token    string `yaml:"token"`
}

// Validate validates the API configuration.
func (c *APIConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Timezone, validation.Required),
	); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("api: unknown timezone %q", c.Timezone)
	}
	return nil
}

// Location returns the configured timezone. Validate must have passed.
func (c *APIConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DiaryConfig controls diary edit-window behavior.
type DiaryConfig struct {
	EditPolicy devserver.EditPolicy `yaml:"edit_policy"`
}

// Validate validates the diary configuration. An empty policy defaults to
// until-midnight.
func (c *DiaryConfig) Validate() error {
	if c.EditPolicy == "" {
		c.EditPolicy = devserver.EditPolicyUntilMidnight
	}
	if !c.EditPolicy.Valid() {
		return fmt.Errorf("diary: unknown edit policy %q", c.EditPolicy)
	}
	return nil
}

// RemindersConfig holds the evening reminder slots.
type RemindersConfig struct {
	Slots []string `yaml:"slots"`
}

// Validate validates the reminders configuration.
func (c *RemindersConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Slots, validation.Required, validation.Each(validation.By(func(v interface{}) error {
			s, _ := v.(string)
			_, _, err := reminder.ParseSlot(s)
			return err
		}))),
	)
}

// PushConfig holds the web push subscription settings.
type PushConfig struct {
	CaregiverID int    `yaml:"caregiver_id"`
	KeyFile     string `yaml:"key_file"`
}

// Validate validates the push configuration.
func (c *PushConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CaregiverID, validation.Required, validation.Min(1)),
		validation.Field(&c.KeyFile, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// StateConfig holds the local state directory used for the selected date,
// reminder markers, and the stored push subscription id.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// FixturesConfig holds the path to the daily-record fixture directory.
type FixturesConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the fixtures configuration.
func (c *FixturesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		API: APIConfig{
			BaseURL:  "http://localhost:8080",
			Timezone: "America/New_York",
		},
		Diary: DiaryConfig{
			EditPolicy: devserver.EditPolicyUntilMidnight,
		},
		Reminders: RemindersConfig{
			Slots: []string{"18:00", "21:00"},
		},
		Push: PushConfig{
			CaregiverID: 1,
			KeyFile:     "./push_key.json",
		},
		SQLite: SQLiteConfig{
			Path: "./daybook.db",
		},
		State: StateConfig{
			Path: "./state",
		},
		Fixtures: FixturesConfig{
			Path: "./fixtures",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
