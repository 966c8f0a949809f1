// Package sqlitelogin implements the sql.login resource type: login accounts
// in the SQLite-backed auth database, with bcrypt password storage, role
// memberships, and an audit trail entry for every effective change.
package sqlitelogin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/openconverge/converge/pkg/engine"
	"github.com/openconverge/converge/pkg/stores"
)

// TypeName is the resource type implemented by this package.
const TypeName = "sql.login"

// Version is the resource type version.
const Version = "1.0.0"

// auditActor is recorded as the acting party on audit trail entries.
const auditActor = "converge"

var schema = engine.MustSchema(TypeName, Version,
	engine.PropertySpec{
		Name:        "name",
		Kind:        engine.KindString,
		Description: "Login name. Comparison is case-insensitive.",
		Required:    true,
		Identifying: true,
		FoldCase:    true,
	},
	engine.PropertySpec{
		Name:        "password",
		Kind:        engine.KindString,
		Description: "Plaintext password, stored as a bcrypt hash. Accepted on input, never reported.",
		WriteOnly:   true,
	},
	engine.PropertySpec{
		Name:        "enabled",
		Kind:        engine.KindBool,
		Description: "Whether the login may authenticate.",
		Default:     true,
	},
	engine.PropertySpec{
		Name:        "roles",
		Kind:        engine.KindStringSet,
		Description: "Role memberships. Additive unless _purge is set.",
		FoldCase:    true,
	},
	engine.PropertySpec{
		Name:        "comment",
		Kind:        engine.KindString,
		Description: "Free-form operator note.",
	},
	engine.PropertySpec{
		Name:        "loginId",
		Kind:        engine.KindInt,
		Description: "Integer id the database assigned to the login row.",
		ReadOnly:    true,
	},
)

// Role is a backend role a login can be a member of.
type Role string

// The closed set of backend roles. Requested role names resolve through
// resolveRole; there is no dynamic lookup, so an unknown name fails before
// anything is written.
const (
	RoleAdmins    Role = "admins"
	RoleReaders   Role = "readers"
	RoleWriters   Role = "writers"
	RoleAuditors  Role = "auditors"
	RoleOperators Role = "operators"
)

// resolveRole maps a requested role name onto its backend role. Matching is
// case-insensitive; the returned role carries the canonical spelling.
func resolveRole(name string) (Role, error) {
	switch strings.ToLower(name) {
	case string(RoleAdmins):
		return RoleAdmins, nil
	case string(RoleReaders):
		return RoleReaders, nil
	case string(RoleWriters):
		return RoleWriters, nil
	case string(RoleAuditors):
		return RoleAuditors, nil
	case string(RoleOperators):
		return RoleOperators, nil
	default:
		return "", engine.NewInvalidArgumentError(fmt.Sprintf("unknown role %q", name), nil)
	}
}

// resolveRoles resolves and canonicalizes a requested role set, sorted.
func resolveRoles(names []string) ([]string, error) {
	resolved := make([]string, 0, len(names))
	for _, name := range names {
		role, err := resolveRole(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, string(role))
	}
	sort.Strings(resolved)
	return resolved, nil
}

// Resource manages sql.login units against an auth store.
type Resource struct {
	store stores.AuthStore

	// pageSize bounds each ListLogins call during export.
	pageSize int
}

// New creates a sql.login resource over the given store. The store must be
// initialized and migrated.
func New(store stores.AuthStore) *Resource {
	return &Resource{store: store, pageSize: 100}
}

// TypeInfo reports the resource type metadata.
func (r *Resource) TypeInfo() engine.TypeInfo {
	return engine.TypeInfo{
		Name:        TypeName,
		Version:     Version,
		Description: "Login account in the auth database, with bcrypt password and role memberships.",
	}
}

// Schema reports the property contract.
func (r *Resource) Schema() *engine.Schema {
	return schema
}

// Get reads the login addressed by name. The store resolves names
// case-insensitively and reports engine.ErrNotFound for a missing login.
func (r *Resource) Get(ctx context.Context, req *engine.GetRequest) (*engine.Instance, error) {
	name, _ := req.Desired.StringProp("name")
	login, err := r.store.GetLogin(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.instance(login), nil
}

// Set converges the login to the desired state. Properties absent from the
// desired state keep their stored values; the role set merges additively
// unless the desired state requests a purge. Every effective set appends an
// audit trail entry.
func (r *Resource) Set(ctx context.Context, req *engine.SetRequest) (*engine.SetResponse, error) {
	name, _ := req.Desired.StringProp("name")

	prior, err := r.store.GetLogin(ctx, name)
	if err != nil && !engine.IsNotFound(err) {
		return nil, err
	}

	target := &stores.Login{Name: name, Enabled: true}
	if prior != nil {
		target.ID = prior.ID
		target.Enabled = prior.Enabled
		target.DefaultRole = prior.DefaultRole
		target.Comment = prior.Comment
		target.Roles = prior.Roles
	}

	// An empty hash tells the store to keep the stored one.
	if password, ok := req.Desired.StringProp("password"); ok {
		hash, err := stores.HashPassword(password)
		if err != nil {
			return nil, err
		}
		target.PasswordHash = hash
	}
	if enabled, ok := req.Desired.BoolProp("enabled"); ok {
		target.Enabled = enabled
	}
	if comment, ok := req.Desired.StringProp("comment"); ok {
		target.Comment = comment
	}
	if roles, ok := req.Desired.StringsProp("roles"); ok {
		resolved, err := resolveRoles(roles)
		if err != nil {
			return nil, err
		}
		if req.Desired.PurgeMode() {
			target.Roles = resolved
		} else if prior != nil {
			target.Roles = mergeRoles(prior.Roles, resolved)
		} else {
			target.Roles = resolved
		}
	}

	if err := r.store.UpsertLogin(ctx, target); err != nil {
		return nil, err
	}

	action := stores.AuditActionUpdated
	if prior == nil {
		action = stores.AuditActionCreated
	}
	if err := r.appendAudit(ctx, action, name, req.Diff); err != nil {
		return nil, err
	}

	after, err := r.store.GetLogin(ctx, name)
	if err != nil {
		return nil, err
	}
	return &engine.SetResponse{After: r.instance(after)}, nil
}

// Delete removes the login. The store rejects deleting the protected admin
// login as invalid-operation and reports engine.ErrNotFound for a login that
// is already gone.
func (r *Resource) Delete(ctx context.Context, req *engine.DeleteRequest) error {
	name, _ := req.Desired.StringProp("name")
	if err := r.store.DeleteLogin(ctx, name); err != nil {
		return err
	}
	return r.appendAudit(ctx, stores.AuditActionDeleted, name, nil)
}

// Export enumerates every login through the store's pagination.
func (r *Resource) Export(ctx context.Context, emit func(*engine.Instance) error) error {
	for offset := 0; ; offset += r.pageSize {
		page, err := r.store.ListLogins(ctx, r.pageSize, offset)
		if err != nil {
			return err
		}
		for _, login := range page {
			if err := emit(r.instance(login)); err != nil {
				return err
			}
		}
		if len(page) < r.pageSize {
			return nil
		}
	}
}

// instance converts a stored login into a wire instance. The password hash
// never leaves the store layer.
func (r *Resource) instance(login *stores.Login) *engine.Instance {
	roles := login.Roles
	if roles == nil {
		roles = []string{}
	}
	return engine.NewInstance().
		SetProp("name", login.Name).
		SetProp("enabled", login.Enabled).
		SetProp("roles", roles).
		SetProp("comment", login.Comment).
		SetProp("loginId", login.RowID)
}

// appendAudit records one audit trail entry for a login change.
func (r *Resource) appendAudit(ctx context.Context, action stores.AuditAction, name string, diff *engine.DiffResult) error {
	entry := &stores.AuditEntry{
		Action:    action,
		LoginName: name,
		Actor:     auditActor,
	}
	if diff != nil && len(diff.Changed) > 0 {
		data, err := json.Marshal(map[string][]string{"changedProperties": diff.Changed})
		if err == nil {
			details := string(data)
			entry.Details = &details
		}
	}
	return r.store.AppendAudit(ctx, entry)
}

// mergeRoles unions the stored and requested role sets, sorted. Both inputs
// carry canonical role spellings.
func mergeRoles(actual, desired []string) []string {
	seen := make(map[string]bool, len(actual)+len(desired))
	merged := make([]string, 0, len(actual)+len(desired))
	for _, role := range actual {
		if !seen[role] {
			seen[role] = true
			merged = append(merged, role)
		}
	}
	for _, role := range desired {
		if !seen[role] {
			seen[role] = true
			merged = append(merged, role)
		}
	}
	sort.Strings(merged)
	return merged
}
