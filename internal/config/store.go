package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hnrobert/gridlogin/internal/auth"
	"github.com/hnrobert/gridlogin/internal/hostfs"
)

const (
	DefaultMaxFails      = 5
	DefaultFailCache     = 120 * time.Second
	DefaultSweepInterval = time.Minute
	DefaultListenAddr    = "127.0.0.1:9180"

	envPrefix = "GRIDLOGIN_"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the per-daemon configuration, fixed at startup.
type Config struct {
	RootDir          string        `yaml:"root_dir" validate:"required"`
	LinkHome         string        `yaml:"link_home"`
	Protocol         string        `yaml:"protocol" validate:"required,oneof=ssh sftp scp rsync dav davs ftp ftps"`
	AllowPublicKey   bool          `yaml:"allow_publickey"`
	AllowPassword    bool          `yaml:"allow_password"`
	AllowDigest      bool          `yaml:"allow_digest"`
	UserAlias        string        `yaml:"user_alias,omitempty"`
	ChrootExceptions []string      `yaml:"chroot_exceptions,omitempty" validate:"dive,startswith=/"`
	ChmodExceptions  []string      `yaml:"chmod_exceptions,omitempty" validate:"dive,startswith=/"`
	MaxFails         int           `yaml:"max_fails" validate:"gte=1"`
	FailCache        time.Duration `yaml:"fail_cache" validate:"gt=0"`
	SweepInterval    time.Duration `yaml:"sweep_interval" validate:"gte=0"`
	Watch            bool          `yaml:"watch"`
	LogDir           string        `yaml:"log_dir,omitempty"`
	LogLevel         string        `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	ListenAddr       string        `yaml:"listen_addr,omitempty" validate:"omitempty,hostname_port"`
	AdminSecret      string        `yaml:"admin_secret,omitempty"`
}

func Default() Config {
	return Config{
		RootDir:        "/var/lib/grid/user_home",
		LinkHome:       "/var/lib/grid/sessid_to_mrsl_link_home",
		Protocol:       "sftp",
		AllowPublicKey: true,
		AllowPassword:  true,
		MaxFails:       DefaultMaxFails,
		FailCache:      DefaultFailCache,
		SweepInterval:  DefaultSweepInterval,
		LogLevel:       "info",
		ListenAddr:     DefaultListenAddr,
	}
}

// WithDefaults fills zero numeric and string fields from Default.
func (c Config) WithDefaults() Config {
	d := Default()
	if c.RootDir == "" {
		c.RootDir = d.RootDir
	}
	if c.Protocol == "" {
		c.Protocol = d.Protocol
	}
	if c.MaxFails <= 0 {
		c.MaxFails = d.MaxFails
	}
	if c.FailCache <= 0 {
		c.FailCache = d.FailCache
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.RootDir = filepath.Clean(c.RootDir)
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !c.AllowPublicKey && !c.AllowPassword && !c.AllowDigest {
		return fmt.Errorf("%w: no authentication method allowed", ErrInvalidConfig)
	}
	if c.AdminSecret != "" {
		if _, err := auth.DecodeSecret(c.AdminSecret); err != nil {
			return fmt.Errorf("%w: admin_secret: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from GRIDLOGIN_* environment variables.
func (c Config) ApplyEnv(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	str := map[string]*string{
		"ROOT_DIR":     &c.RootDir,
		"LINK_HOME":    &c.LinkHome,
		"PROTOCOL":     &c.Protocol,
		"USER_ALIAS":   &c.UserAlias,
		"LOG_DIR":      &c.LogDir,
		"LOG_LEVEL":    &c.LogLevel,
		"LISTEN_ADDR":  &c.ListenAddr,
		"ADMIN_SECRET": &c.AdminSecret,
	}
	for k, p := range str {
		if v := getenv(envPrefix + k); v != "" {
			*p = v
		}
	}
	flags := map[string]*bool{
		"ALLOW_PUBLICKEY": &c.AllowPublicKey,
		"ALLOW_PASSWORD":  &c.AllowPassword,
		"ALLOW_DIGEST":    &c.AllowDigest,
		"WATCH":           &c.Watch,
	}
	for k, p := range flags {
		v := getenv(envPrefix + k)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, envPrefix, k, v)
		}
		*p = b
	}
	if v := getenv(envPrefix + "MAX_FAILS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%w: %sMAX_FAILS=%q", ErrInvalidConfig, envPrefix, v)
		}
		c.MaxFails = n
	}
	for k, p := range map[string]*time.Duration{"FAIL_CACHE": &c.FailCache, "SWEEP_INTERVAL": &c.SweepInterval} {
		v := getenv(envPrefix + k)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, envPrefix, k, v)
		}
		*p = d
	}
	for k, p := range map[string]*[]string{"CHROOT_EXCEPTIONS": &c.ChrootExceptions, "CHMOD_EXCEPTIONS": &c.ChmodExceptions} {
		if v := getenv(envPrefix + k); v != "" {
			*p = filepath.SplitList(v)
		}
	}
	return c, nil
}

// Store guards one YAML config file.
type Store struct {
	mu     sync.Mutex
	path   string
	getenv func(string) string
}

func NewStore(path string) *Store {
	return &Store{path: path, getenv: os.Getenv}
}

func DefaultPath() string {
	return filepath.Join("/etc", "gridlogin", "gridlogind.yaml")
}

func (s *Store) Path() string { return s.path }

// Ensure writes the default config when the file does not exist yet.
func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := hostfs.EnsureDir(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	return s.saveLocked(Default())
}

// Get reads the file, fills defaults, applies the environment and validates.
// A missing file yields the defaults.
func (s *Store) Get() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.getLocked()
	if err != nil {
		return Config{}, err
	}
	cfg, err = cfg.WithDefaults().ApplyEnv(s.getenv)
	if err != nil {
		return Config{}, err
	}
	cfg.RootDir = filepath.Clean(cfg.RootDir)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (s *Store) Save(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(cfg)
}

func (s *Store) getLocked() (Config, error) {
	cfg := Default()
	b, err := hostfs.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, s.path, err)
	}
	return cfg, nil
}

func (s *Store) saveLocked(cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return hostfs.WriteFileAtomic(s.path, b, 0600)
}

// Load is a shortcut for NewStore(path).Get().
func Load(path string) (Config, error) {
	return NewStore(path).Get()
}
