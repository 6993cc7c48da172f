package core

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Roles recognized by the session store and route guards.
const (
	RoleAdmin    = "admin"
	RoleStandard = "standard"
)

// User is one credential directory record. Password holds either a plain
// value or a bcrypt hash ($2 prefix); Login never echoes it back.
type User struct {
	Username    string `yaml:"username" json:"username"`
	Password    string `yaml:"password" json:"-"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Role        string `yaml:"role" json:"role"`
}

// IsAdmin reports whether the record carries the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// CredentialDirectory is the static username -> record lookup table used by
// login. It is read-only after load.
type CredentialDirectory struct {
	users map[string]User
}

// NewCredentialDirectory builds a directory from records. Later duplicates of
// a username win, matching last-entry-wins file semantics.
func NewCredentialDirectory(users []User) *CredentialDirectory {
	m := make(map[string]User, len(users))
	for _, u := range users {
		if strings.TrimSpace(u.Username) == "" {
			continue
		}
		if u.Role != RoleAdmin {
			u.Role = RoleStandard
		}
		m[u.Username] = u
	}
	return &CredentialDirectory{users: m}
}

// LoadCredentialDirectory reads a YAML users file:
//
//	users:
//	  - username: admin
//	    password: "$2a$10$..."
//	    display_name: Administrator
//	    role: admin
//
// A missing path falls back to the built-in demo directory.
func LoadCredentialDirectory(path string) (*CredentialDirectory, error) {
	if path == "" {
		return NewCredentialDirectory(defaultUsers), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewCredentialDirectory(defaultUsers), nil
		}
		return nil, fmt.Errorf("read users file %s: %w", path, err)
	}

	var doc struct {
		Users []User `yaml:"users"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse users file %s: %w", path, err)
	}
	if len(doc.Users) == 0 {
		return nil, fmt.Errorf("users file %s has no users", path)
	}
	return NewCredentialDirectory(doc.Users), nil
}

// Lookup returns the record for an exact username/password match, both
// case-sensitive. Hashed entries are compared with bcrypt.
func (d *CredentialDirectory) Lookup(username, password string) (User, bool) {
	u, ok := d.users[username]
	if !ok {
		return User{}, false
	}
	if strings.HasPrefix(u.Password, "$2") {
		if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
			return User{}, false
		}
		return u, true
	}
	if u.Password != password {
		return User{}, false
	}
	return u, true
}

// Demo directory mirroring the original static user list.
var defaultUsers = []User{
	{Username: "admin", Password: "admin123", DisplayName: "Administrador", Role: RoleAdmin},
	{Username: "cliente", Password: "cliente123", DisplayName: "Cliente Demo", Role: RoleStandard},
}
