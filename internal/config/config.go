package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for pdm.
type Config struct {
	ClientID   string           `toml:"client_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Repo       RepoConfig       `toml:"repo"`
	Guard      GuardConfig      `toml:"guard"`
	Blobstores []BlobConfig     `toml:"blobstores"`
	Encryption EncryptionConfig `toml:"encryption"`
	Journal    JournalConfig    `toml:"journal"`
	Identity   IdentityConfig   `toml:"identity"`
}

// RepoConfig describes the shared record repository and the naming scheme
// of the files it manages.
type RepoConfig struct {
	RemoteURL string `toml:"remote_url"`
	Branch    string `toml:"branch"`
	WorkDir   string `toml:"work_dir"`

	// AuthorDomain forms commit author emails as <user>@<domain>.
	AuthorDomain string `toml:"author_domain"`

	// PartNumberWidth is the count of leading digits that form a part
	// number; RevisionSep separates it from the revision label.
	PartNumberWidth int    `toml:"part_number_width"`
	RevisionSep     string `toml:"revision_sep"`

	// ConflictRetries bounds how often a rejected save is recomputed
	// before the conflict surfaces. 0 selects the built-in default.
	ConflictRetries int `toml:"conflict_retries"`
}

// GuardConfig configures the cross-process working-copy lock.
type GuardConfig struct {
	Type string `toml:"type"` // "flock" (default) or "memory"

	// LockPath overrides the lock file location; empty derives
	// <work_dir>.lock.
	LockPath string `toml:"lock_path,omitempty"`

	// WaitSeconds bounds how long to wait for the lock before failing
	// busy. 0 selects the built-in default.
	WaitSeconds int `toml:"wait_seconds"`
}

// BlobConfig configures a blob storage backend for managed-file content.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type BlobConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for at-rest blob
// encryption. Enabled turns encryption of new content on.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// JournalConfig configures the local operation journal.
type JournalConfig struct {
	Type    string `toml:"type"`               // "sqlite" (default) or "none"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// IdentityConfig configures how the acting identity is resolved when the
// PDM_USER environment variable and token are absent.
type IdentityConfig struct {
	User       string `toml:"user,omitempty"`
	TokenPath  string `toml:"token_path,omitempty"`
	AuthSecret string `toml:"auth_secret,omitempty"`
}

// NewConfig creates a Config with the provided values and default paths.
func NewConfig(clientID, baseDir string) *Config {
	return &Config{
		ClientID: clientID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Repo: RepoConfig{
			Branch:          "main",
			WorkDir:         filepath.Join(baseDir, "repo"),
			AuthorDomain:    "pdm.local",
			PartNumberWidth: 7,
			RevisionSep:     "-",
		},
		Guard: GuardConfig{Type: "flock"},
		Blobstores: []BlobConfig{
			{Type: "filesystem", Name: "local", FSRoot: filepath.Join(baseDir, "blobs")},
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "pdm.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "pdm.key"),
		},
		Journal: JournalConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "journal")},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
