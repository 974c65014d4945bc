package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/orca-mail/orca/internal/config"
)

var (
	// ErrServerNotOwned means an explicit server ID does not belong
	// to the requesting user
	ErrServerNotOwned = errors.New("server does not belong to user")
	// ErrNoServers means no server is currently eligible for dispatch
	ErrNoServers = errors.New("no servers available")
)

// User is an authenticated account with its sending servers
type User struct {
	Email           string
	Name            string
	DefaultServerID string
	Servers         []*Server
}

// Server is one sending server owned by a user
type Server struct {
	ID      string
	Name    string
	BaseURL string
	IP      string
	APIKey  string
	Active  bool
}

// Registry holds the user/server read model and tracks which servers
// are busy with in-flight jobs. Busy is advisory: selection prefers
// idle servers but a user's only server still gets picked while busy.
type Registry struct {
	users    map[string]*User // keyed by bearer token
	byEmail  map[string]*User
	mu       sync.RWMutex
	inflight map[string]int // server ID -> in-flight job count
}

// New builds a registry from validated config users
func New(users []config.UserConfig) *Registry {
	r := &Registry{
		users:    make(map[string]*User, len(users)),
		byEmail:  make(map[string]*User, len(users)),
		inflight: make(map[string]int),
	}

	for _, uc := range users {
		u := &User{
			Email:           uc.Email,
			Name:            uc.Name,
			DefaultServerID: uc.DefaultServerID,
		}
		for _, sc := range uc.Servers {
			u.Servers = append(u.Servers, &Server{
				ID:      sc.ID,
				Name:    sc.Name,
				BaseURL: sc.BaseURL,
				IP:      sc.IP,
				APIKey:  sc.APIKey,
				Active:  sc.IsActive(),
			})
		}
		r.users[uc.Token] = u
		r.byEmail[uc.Email] = u
	}

	return r
}

// Authenticate resolves a bearer token to its user
func (r *Registry) Authenticate(token string) (*User, bool) {
	u, ok := r.users[token]
	return u, ok
}

// UserByEmail resolves a user by email
func (r *Registry) UserByEmail(email string) (*User, bool) {
	u, ok := r.byEmail[email]
	return u, ok
}

// ServerByID returns the user's server with the given ID
func (u *User) ServerByID(id string) (*Server, bool) {
	for _, s := range u.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Select picks the sending server for a dispatch. An explicit ID must
// belong to the user and be active. Otherwise the user's default
// server wins if active, then the first active idle server, then any
// active server. No active server means ErrNoServers.
func (r *Registry) Select(u *User, explicitID string) (*Server, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if explicitID != "" {
		s, ok := u.ServerByID(explicitID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrServerNotOwned, explicitID)
		}
		if !s.Active {
			return nil, fmt.Errorf("server %s is not active", explicitID)
		}
		return s, nil
	}

	if u.DefaultServerID != "" {
		if s, ok := u.ServerByID(u.DefaultServerID); ok && s.Active {
			return s, nil
		}
	}

	var fallback *Server
	for _, s := range u.Servers {
		if !s.Active {
			continue
		}
		if r.inflight[s.ID] == 0 {
			return s, nil
		}
		if fallback == nil {
			fallback = s
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrNoServers
}

// AcquireServer marks a server as having one more in-flight job
func (r *Registry) AcquireServer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[id]++
}

// ReleaseServer marks a server as having one less in-flight job
func (r *Registry) ReleaseServer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[id] > 0 {
		r.inflight[id]--
	}
}

// Busy reports whether a server has in-flight jobs
func (r *Registry) Busy(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inflight[id] > 0
}

// Descriptor is the API view of one server
type Descriptor struct {
	ServerID   string `json:"serverId"`
	ServerName string `json:"serverName"`
	ServerURL  string `json:"serverUrl"`
	ServerIP   string `json:"serverIp,omitempty"`
	IsActive   bool   `json:"isActive"`
	IsBusy     bool   `json:"isBusy"`
	EmailCount int    `json:"emailCount"`
}

// Snapshot returns descriptors for all of a user's servers.
// emailCount supplies the cumulative sent counter per server; nil
// means report zero.
func (r *Registry) Snapshot(u *User, emailCount func(serverID string) int) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(u.Servers))
	for _, s := range u.Servers {
		d := Descriptor{
			ServerID:   s.ID,
			ServerName: s.Name,
			ServerURL:  s.BaseURL,
			ServerIP:   s.IP,
			IsActive:   s.Active,
			IsBusy:     r.inflight[s.ID] > 0,
		}
		if emailCount != nil {
			d.EmailCount = emailCount(s.ID)
		}
		out = append(out, d)
	}
	return out
}
