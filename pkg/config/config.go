// Package config assembles the tool's runtime configuration from flags,
// environment variables (including a local .env file), and an optional
// YAML config file. Precedence: flags > environment > config file >
// defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-schema-uploader/pkg/model"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Environment variables honored when the matching flag is absent
const (
	EnvServer   = "BLOODHOUND_SERVER"
	EnvUsername = "BLOODHOUND_USERNAME"
	EnvPassword = "BLOODHOUND_PASSWORD"
	EnvModel    = "BLOODHOUND_MODEL"
)

// DefaultTimeout bounds each API request
const DefaultTimeout = 30 * time.Second

// Config holds the runtime configuration
type Config struct {
	ServerURL string        `yaml:"server" validate:"required,url"`
	Username  string        `yaml:"username" validate:"required"`
	Password  string        `yaml:"password" validate:"required"`
	ModelPath string        `yaml:"model" validate:"required"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	Reset     bool          `yaml:"reset_custom_nodes"`
	Verbose   bool          `yaml:"verbose"`
	LogFormat string        `yaml:"log_format" validate:"oneof=text json"`
}

// UsageError reports invalid invocation; the CLI maps it to exit code 2
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// Parse builds the configuration from command-line arguments. The second
// return value is true when the program should exit cleanly (help).
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	flagSet := flag.NewFlagSet("schema-uploader", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, usageText)
		flagSet.PrintDefaults()
		fmt.Fprint(output, usageExamples)
	}

	var (
		server    string
		username  string
		password  string
		modelPath string
		timeout   time.Duration
		reset     bool
		verbose   bool
		logFormat string
		filePath  string
	)

	flagSet.StringVar(&server, "s", "", "Server URL (e.g. https://bloodhound.example.com)")
	flagSet.StringVar(&server, "server", "", "Server URL (long form)")
	flagSet.StringVar(&username, "u", "", "Username for authentication")
	flagSet.StringVar(&username, "username", "", "Username (long form)")
	flagSet.StringVar(&password, "p", "", "Password for authentication")
	flagSet.StringVar(&password, "password", "", "Password (long form)")
	flagSet.StringVar(&modelPath, "m", "", "Model file to upload")
	flagSet.StringVar(&modelPath, "model", "", "Model file (long form)")
	flagSet.DurationVar(&timeout, "timeout", 0, "Per-request timeout")
	flagSet.BoolVar(&reset, "reset-custom-nodes", false, "Delete all existing custom nodes before uploading")
	flagSet.BoolVar(&verbose, "v", false, "Enable verbose (debug) logging")
	flagSet.StringVar(&logFormat, "log-format", "", "Log output format: 'text' or 'json'")
	flagSet.StringVar(&filePath, "config", "", "YAML config file")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &UsageError{Message: err.Error()}
	}

	cfg := &Config{
		ModelPath: model.DefaultPath,
		Timeout:   DefaultTimeout,
		LogFormat: "text",
	}

	if filePath != "" {
		if err := cfg.loadFile(filePath); err != nil {
			return nil, false, &UsageError{Message: err.Error()}
		}
	}

	cfg.loadEnv()

	// Explicit flags win over everything
	if server != "" {
		cfg.ServerURL = server
	}
	if username != "" {
		cfg.Username = username
	}
	if password != "" {
		cfg.Password = password
	}
	if modelPath != "" {
		cfg.ModelPath = modelPath
	}
	if timeout != 0 {
		cfg.Timeout = timeout
	}
	if logFormat != "" {
		cfg.LogFormat = strings.ToLower(logFormat)
	}
	if reset {
		cfg.Reset = true
	}
	if verbose {
		cfg.Verbose = true
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, false, &UsageError{Message: err.Error()}
	}
	return cfg, false, nil
}

// loadFile merges values from a YAML config file
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// loadEnv merges values from the environment. A .env file in the working
// directory is folded into the environment first, if present.
func (c *Config) loadEnv() {
	// Missing .env is the normal case
	_ = godotenv.Load()

	if v := os.Getenv(EnvServer); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv(EnvUsername); v != "" {
		c.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Password = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.ModelPath = v
	}
}

// normalize cleans the server address so validation and the client agree:
// trailing slashes are dropped and a missing scheme defaults to http
func (c *Config) normalize() {
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")
	if c.ServerURL != "" && !strings.Contains(c.ServerURL, "://") {
		c.ServerURL = "http://" + c.ServerURL
	}
}

// Validate checks the assembled configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError turns validator output into operator-readable text
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() {
		case "ServerURL":
			if fe.Tag() == "required" {
				msgs = append(msgs, "server URL is required (-s)")
			} else {
				msgs = append(msgs, fmt.Sprintf("server URL %q is not a valid URL", fe.Value()))
			}
		case "Username":
			msgs = append(msgs, "username is required (-u)")
		case "Password":
			msgs = append(msgs, "password is required (-p)")
		case "ModelPath":
			msgs = append(msgs, "model file path is required (-m)")
		case "Timeout":
			msgs = append(msgs, "timeout must be positive")
		case "LogFormat":
			msgs = append(msgs, "log-format must be 'text' or 'json'")
		default:
			msgs = append(msgs, fe.Error())
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

const usageText = `schema-uploader - Register a custom node/edge model with a BloodHound-compatible server

This is a pre-ingest preparation step: it registers custom kinds (icons,
styles, kind names) so the UI can render externally-sourced graph data.
It does not ingest any graph data and is safe to run multiple times.

Usage:
  schema-uploader [options]

Options:
`

const usageExamples = `
Examples:
  # Basic usage:
  schema-uploader -s https://bloodhound.example.com -u admin@domain.com -p password

  # With verbose logging:
  schema-uploader -s https://bloodhound.example.com -u admin -p pass -v

  # Reset existing custom nodes before upload:
  schema-uploader -s https://bloodhound.example.com -u admin -p pass --reset-custom-nodes
`
