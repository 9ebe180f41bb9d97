package auth

import (
	"errors"
	"fmt"
	"os"

	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

var Logger = logger.GetLogger("auth")

// ErrUnauthorized is returned for unknown users and wrong passwords
var ErrUnauthorized = errors.New("unauthorized")

// UserEntry is one user of the user file
type UserEntry struct {
	Name string `yaml:"name"`
	// Password is a bcrypt hash
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

// UsersFile is the layout of the user file
type UsersFile struct {
	Users []UserEntry `yaml:"users"`
	// Roles maps group roles to their member roles
	Roles map[string][]string `yaml:"roles"`
}

// IAuthenticator checks credentials
type IAuthenticator interface {
	// Authenticate returns the principal for the credentials or ErrUnauthorized
	Authenticate(user, password string) (*Principal, error)
}

type userRecord struct {
	hash  []byte
	roles []string
}

// UserStore authenticates against a parsed user file
type UserStore struct {
	users map[string]userRecord
	// dummy is compared for unknown users so both cases take the same time
	dummy []byte
}

// LoadUsers reads and parses a user file
func LoadUsers(path string) (*UserStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return ParseUsers(data)
}

// ParseUsers parses the YAML content of a user file
func ParseUsers(data []byte) (*UserStore, error) {
	var f UsersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	return NewUserStore(f)
}

// NewUserStore validates the user file and expands the roles of every user
func NewUserStore(f UsersFile) (*UserStore, error) {
	s := &UserStore{users: make(map[string]userRecord, len(f.Users))}
	dummyCost := 0

	for _, u := range f.Users {
		if u.Name == "" {
			return nil, errors.New("user without name")
		}
		if _, dup := s.users[u.Name]; dup {
			return nil, fmt.Errorf("duplicate user %q", u.Name)
		}
		cost, err := bcrypt.Cost([]byte(u.Password))
		if err != nil {
			return nil, fmt.Errorf("user %q: password is not a bcrypt hash: %w", u.Name, err)
		}
		dummyCost = max(dummyCost, cost)
		s.users[u.Name] = userRecord{hash: []byte(u.Password)}
	}

	for group, members := range f.Roles {
		if _, isUser := s.users[group]; isUser {
			return nil, fmt.Errorf("role group %q has the name of a user", group)
		}
		for _, m := range members {
			if _, isUser := s.users[m]; isUser {
				return nil, fmt.Errorf("user %q is a member of role group %q", m, group)
			}
		}
	}

	for _, u := range f.Users {
		expanded := ExpandRoles(u.Roles, f.Roles)
		rec := s.users[u.Name]
		for r := range expanded {
			rec.roles = append(rec.roles, r)
		}
		s.users[u.Name] = rec
	}

	// unknown users are checked against a hash as expensive as the real ones
	if dummyCost == 0 {
		dummyCost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("dgate"), dummyCost)
	if err != nil {
		return nil, err
	}
	s.dummy = dummy

	Logger.Infof("loaded %d users", len(s.users))
	return s, nil
}

// Authenticate implements IAuthenticator
func (s *UserStore) Authenticate(user, password string) (*Principal, error) {
	rec, ok := s.users[user]
	if !ok {
		bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return nil, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(rec.hash, []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	return NewPrincipal(user, rec.roles...), nil
}

// Len returns the number of users
func (s *UserStore) Len() int {
	return len(s.users)
}

// HashPassword returns the bcrypt hash of a password for the user file
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
