package devauth

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/labsession/pkg/authsdk"
	"github.com/aussiebroadwan/labsession/pkg/cryptox"
	"github.com/aussiebroadwan/labsession/pkg/idx"
)

var (
	ErrUserExists         = errors.New("devauth: user already exists")
	ErrUserNotFound       = errors.New("devauth: user not found")
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

// Permission is a capability held by a directory user.
type Permission struct {
	ID        int64
	Name      string
	Code      string
	ExpiresAt *time.Time // nil for permanent grants
}

func (p Permission) activeAt(now time.Time) bool {
	return p.ExpiresAt == nil || now.Before(*p.ExpiresAt)
}

// User is a directory entry.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	MFASecret    string
	Roles        []string
	Permissions  []Permission
	Attributes   map[string]string
}

// UserSpec describes a user to add to the directory.
type UserSpec struct {
	Username    string
	Password    string
	DisplayName string
	Email       string
	Roles       []string
	Permissions []Permission
	Attributes  map[string]string
}

// Directory is the in-memory user directory backing the dev server.
type Directory struct {
	hasher *cryptox.PasswordHasher

	mu    sync.RWMutex
	users map[string]*User // by username
	byID  map[string]*User
}

func NewDirectory() (*Directory, error) {
	hasher, err := cryptox.NewPasswordHasher()
	if err != nil {
		return nil, err
	}
	return &Directory{
		hasher: hasher,
		users:  map[string]*User{},
		byID:   map[string]*User{},
	}, nil
}

// AddUser hashes the password and stores the user.
func (d *Directory) AddUser(spec UserSpec) (User, error) {
	hash, err := d.hasher.Hash(spec.Password)
	if err != nil {
		return User{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[spec.Username]; ok {
		return User{}, ErrUserExists
	}
	u := &User{
		ID:           idx.New().String(),
		Username:     spec.Username,
		DisplayName:  spec.DisplayName,
		Email:        spec.Email,
		PasswordHash: hash,
		Roles:        slices.Clone(spec.Roles),
		Permissions:  slices.Clone(spec.Permissions),
		Attributes:   spec.Attributes,
	}
	d.users[u.Username] = u
	d.byID[u.ID] = u
	return *u, nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (d *Directory) Authenticate(username, password string) (User, error) {
	d.mu.RLock()
	u, ok := d.users[username]
	var hash string
	if ok {
		hash = u.PasswordHash
	}
	d.mu.RUnlock()

	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := d.hasher.Verify(password, hash); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return d.UserByID(u.ID)
}

func (d *Directory) UserByID(id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	out := *u
	out.Roles = slices.Clone(u.Roles)
	out.Permissions = slices.Clone(u.Permissions)
	return out, nil
}

// EnrollTOTP generates a TOTP secret for username and returns it.
func (d *Directory) EnrollTOTP(username, issuer string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: username})
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return "", ErrUserNotFound
	}
	u.MFASecret = key.Secret()
	return key.Secret(), nil
}

// Grant adds or replaces a permission, matched by code.
func (d *Directory) Grant(username string, p Permission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return ErrUserNotFound
	}
	u.Permissions = slices.DeleteFunc(u.Permissions, func(q Permission) bool { return q.Code == p.Code })
	u.Permissions = append(u.Permissions, p)
	return nil
}

func (d *Directory) RevokePermission(username, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return ErrUserNotFound
	}
	u.Permissions = slices.DeleteFunc(u.Permissions, func(q Permission) bool { return q.Code == code })
	return nil
}

// activeCapabilities lists the codes of permissions active at now.
func (u User) activeCapabilities(now time.Time) []string {
	codes := make([]string, 0, len(u.Permissions))
	for _, p := range u.Permissions {
		if p.activeAt(now) {
			codes = append(codes, p.Code)
		}
	}
	return codes
}

// principal renders u the way the profile endpoint serves it.
func (u User) principal() *authsdk.PrincipalResponse {
	out := &authsdk.PrincipalResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Attributes:  u.Attributes,
		Permissions: make([]authsdk.PermissionResponse, 0, len(u.Permissions)),
		Roles:       make([]authsdk.RoleResponse, 0, len(u.Roles)),
	}
	for _, p := range u.Permissions {
		out.Permissions = append(out.Permissions, authsdk.PermissionResponse{
			ID:        p.ID,
			Name:      p.Name,
			Code:      p.Code,
			Temporary: p.ExpiresAt != nil,
			ExpiresAt: p.ExpiresAt,
		})
	}
	for _, r := range u.Roles {
		out.Roles = append(out.Roles, authsdk.RoleResponse{ID: r, Name: r})
	}
	return out
}
