package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Credentials is what the CLI remembers between invocations.
type Credentials struct {
	ServerURL    string `json:"serverUrl,omitempty"`
	Token        string `json:"token,omitempty"`
	Email        string `json:"email,omitempty"`
	TwitterToken string `json:"twitterToken,omitempty"`
}

// LoggedIn reports whether a session token is held.
func (c *Credentials) LoggedIn() bool { return c != nil && c.Token != "" }

// CredentialProvider stores credentials. Get on an empty store returns a
// zero Credentials and no error.
type CredentialProvider interface {
	Get() (*Credentials, error)
	Set(*Credentials) error
	Clear() error
}

const credentialsFile = "credentials.json"

// DefaultCredentialsPath is $XDG_CONFIG_HOME/yapper/credentials.json, or the
// platform config dir when XDG_CONFIG_HOME is unset.
func DefaultCredentialsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "yapper", credentialsFile), nil
}

// FileProvider keeps credentials in a JSON file readable only by the owner.
type FileProvider struct {
	path string
	mu   sync.Mutex
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Path() string { return p.path }

func (p *FileProvider) Get() (*Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", p.path, err)
	}
	return &creds, nil
}

func (p *FileProvider) Set(creds *Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(tmp, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}

func (p *FileProvider) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// MemoryProvider holds credentials in memory.
type MemoryProvider struct {
	mu    sync.Mutex
	creds Credentials
}

func (p *MemoryProvider) Get() (*Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.creds
	return &c, nil
}

func (p *MemoryProvider) Set(creds *Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = *creds
	return nil
}

func (p *MemoryProvider) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = Credentials{}
	return nil
}
