package core

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// BootstrapUsersFile creates the credential directory file with a generated
// admin password when cfg.UsersFile is set but does not exist yet.
// It is idempotent: an existing file is left alone.
func BootstrapUsersFile(cfg Config) error {
	if cfg.UsersFile == "" {
		return nil
	}
	if _, err := os.Stat(cfg.UsersFile); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	password, err := generatePassword(32)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	doc := struct {
		Users []User `yaml:"users"`
	}{
		Users: []User{
			{Username: "admin", Password: string(hash), DisplayName: "Administrador", Role: RoleAdmin},
		},
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfg.UsersFile, b, 0o600); err != nil {
		return fmt.Errorf("write users file %s: %w", cfg.UsersFile, err)
	}

	log.Printf("created users file %s with initial admin password=%s", cfg.UsersFile, password)
	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
