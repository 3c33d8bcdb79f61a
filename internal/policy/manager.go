// Package policy wraps a casbin enforcer behind an atomically swappable
// handle so policy reloads never block in-flight permission checks.
package policy

import (
	_ "embed"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"

	"gatekeep.dev/internal/obs"
)

//go:embed model.conf
var modelText string

// Manager owns the active enforcer. Reads go through an atomic pointer;
// mutations serialize on mu and persist through the adapter.
type Manager struct {
	adapter  persist.Adapter
	enforcer atomic.Pointer[casbin.Enforcer]
	mu       sync.Mutex
}

// NewManager builds an enforcer over the embedded RBAC model. A nil adapter
// keeps policies in memory only, which the tests use.
func NewManager(adapter persist.Adapter) (*Manager, error) {
	m := &Manager{adapter: adapter}
	e, err := m.build()
	if err != nil {
		return nil, err
	}
	m.enforcer.Store(e)
	return m, nil
}

func (m *Manager) build() (*casbin.Enforcer, error) {
	mdl, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	if m.adapter == nil {
		return casbin.NewEnforcer(mdl)
	}
	e, err := casbin.NewEnforcer(mdl, m.adapter)
	if err != nil {
		return nil, err
	}
	if err := e.LoadPolicy(); err != nil {
		return nil, err
	}
	return e, nil
}

func (m *Manager) current() (*casbin.Enforcer, error) {
	e := m.enforcer.Load()
	if e == nil {
		return nil, errors.New("policy: enforcer not initialized")
	}
	return e, nil
}

// Enforce reports whether sub may perform act on obj.
func (m *Manager) Enforce(sub, obj, act string) (bool, error) {
	e, err := m.current()
	if err != nil {
		return false, err
	}
	return e.Enforce(sub, obj, act)
}

// Reload discards the active enforcer and rebuilds it from the adapter, so
// out-of-band rule edits become visible.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.build()
	if err != nil {
		return err
	}
	m.enforcer.Store(e)
	obs.ObservePolicyReload()
	return nil
}

func (m *Manager) mutate(fn func(e *casbin.Enforcer) (bool, error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.current()
	if err != nil {
		return false, err
	}
	changed, err := fn(e)
	if err != nil || !changed {
		return changed, err
	}
	if m.adapter != nil {
		if err := e.SavePolicy(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// AddPolicy grants act on obj to role. Returns false when the rule already
// exists.
func (m *Manager) AddPolicy(role, obj, act string) (bool, error) {
	return m.mutate(func(e *casbin.Enforcer) (bool, error) {
		return e.AddPolicy(role, obj, act)
	})
}

// RemovePolicy revokes act on obj from role.
func (m *Manager) RemovePolicy(role, obj, act string) (bool, error) {
	return m.mutate(func(e *casbin.Enforcer) (bool, error) {
		return e.RemovePolicy(role, obj, act)
	})
}

// AddRoleForUser adds a grouping rule binding the user id to a role.
func (m *Manager) AddRoleForUser(userID, role string) (bool, error) {
	return m.mutate(func(e *casbin.Enforcer) (bool, error) {
		return e.AddGroupingPolicy(userID, role)
	})
}

// RemoveRoleForUser drops the grouping rule for the user id.
func (m *Manager) RemoveRoleForUser(userID, role string) (bool, error) {
	return m.mutate(func(e *casbin.Enforcer) (bool, error) {
		return e.RemoveGroupingPolicy(userID, role)
	})
}

// RolesForUser lists roles bound to the user id through grouping rules.
func (m *Manager) RolesForUser(userID string) ([]string, error) {
	e, err := m.current()
	if err != nil {
		return nil, err
	}
	return e.GetRolesForUser(userID)
}

// UsersForRole lists user ids bound to the role.
func (m *Manager) UsersForRole(role string) ([]string, error) {
	e, err := m.current()
	if err != nil {
		return nil, err
	}
	return e.GetUsersForRole(role)
}

// Policies returns all permission rules and grouping rules.
func (m *Manager) Policies() (policies, groupings [][]string, err error) {
	e, err := m.current()
	if err != nil {
		return nil, nil, err
	}
	policies, err = e.GetPolicy()
	if err != nil {
		return nil, nil, err
	}
	groupings, err = e.GetGroupingPolicy()
	if err != nil {
		return nil, nil, err
	}
	return policies, groupings, nil
}
