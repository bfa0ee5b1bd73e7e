package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// SecretsFileName is the file compose tooling reads variables from.
const SecretsFileName = ".env"

// DefaultSecretKeys are the variables persisted when no allow-list is configured.
var DefaultSecretKeys = []string{
	"NVIDIA_API_KEY",
	"ELEVENLABS_API_KEY",
	"VERSION",
	"REACHY_SCENE",
	"RESOLUTION",
	"NVIDIA_DRIVER_CAPABILITIES",
	"NVIDIA_VISIBLE_DEVICES",
}

// SecretsWriter persists an allow-listed subset of a deployment's
// environment so compose tooling can be rerun by hand.
type SecretsWriter struct {
	keys []string
	now  func() time.Time
}

// NewSecretsWriter creates a writer for the given keys, or DefaultSecretKeys
// when keys is empty.
func NewSecretsWriter(keys []string) *SecretsWriter {
	if len(keys) == 0 {
		keys = DefaultSecretKeys
	}
	return &SecretsWriter{keys: keys, now: time.Now}
}

// Keys returns the allow-list.
func (w *SecretsWriter) Keys() []string {
	return w.keys
}

// Write creates or replaces <dir>/.env with mode 0600 and returns its path.
// Keys absent from env or with empty values are skipped.
func (w *SecretsWriter) Write(dir string, env map[string]string) (string, error) {
	path := filepath.Join(dir, SecretsFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to open secrets file: %w", err)
	}
	defer f.Close()

	// An existing file keeps its old mode on open.
	if err := f.Chmod(0600); err != nil {
		return "", fmt.Errorf("failed to restrict secrets file: %w", err)
	}

	bw := bufio.NewWriter(f)
	fmt.Fprintln(bw, "# Auto-generated by deployment launcher")
	fmt.Fprintln(bw, "# DO NOT COMMIT THIS FILE")
	fmt.Fprintf(bw, "# Created: %s\n\n", w.now().Format(time.RFC3339))
	for _, key := range w.keys {
		if v := env[key]; v != "" {
			fmt.Fprintf(bw, "%s=%s\n", key, v)
		}
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("failed to write secrets file: %w", err)
	}
	return path, nil
}

// Remove deletes <dir>/.env. A missing file is not an error.
func (w *SecretsWriter) Remove(dir string) error {
	path := filepath.Join(dir, SecretsFileName)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove secrets file: %w", err)
	}
	return nil
}
