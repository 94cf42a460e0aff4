package wsauthz

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/oarkflow/wsauthz/logger"
)

// Config is the declarative form of a deployment: catalog, roles, seed
// workspaces and memberships, and route guards. Empty Permissions or Roles
// select the built-in defaults.
type Config struct {
	Version     int              `json:"version" yaml:"version" validate:"gte=0"`
	Permissions []Permission     `json:"permissions,omitempty" yaml:"permissions,omitempty" validate:"dive"`
	Roles       []RoleDefinition `json:"roles,omitempty" yaml:"roles,omitempty" validate:"dive"`
	Workspaces  []Workspace      `json:"workspaces" yaml:"workspaces" validate:"dive"`
	Memberships []Membership     `json:"memberships" yaml:"memberships" validate:"dive"`
	Guards      []Guard          `json:"guards,omitempty" yaml:"guards,omitempty" validate:"dive"`
	Engine      EngineConfig     `json:"engine" yaml:"engine"`
}

type EngineConfig struct {
	GrantRetries      int `json:"grant_retries" yaml:"grant_retries" validate:"gte=0,lte=10"`
	BatchLimit        int `json:"batch_limit" yaml:"batch_limit" validate:"gte=0"`
	SessionTTLSeconds int `json:"session_ttl_seconds" yaml:"session_ttl_seconds" validate:"gte=0"`
}

// ConfigLoader decodes and validates configuration documents.
type ConfigLoader struct {
	validate *validator.Validate
}

func NewConfigLoader() *ConfigLoader {
	v := validator.New()
	_ = v.RegisterValidation("permkey", func(fl validator.FieldLevel) bool {
		res, act, ok := strings.Cut(fl.Field().String(), ".")
		return ok && res != "" && act != "" && !strings.Contains(act, ".")
	})
	return &ConfigLoader{validate: v}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, l.Validate(cfg)
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return cfg, l.Validate(cfg)
}

// LoadFile picks the decoder from the file extension.
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return l.LoadJSON(data)
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	}
	return nil, fmt.Errorf("unsupported config format: %s", path)
}

// Validate checks struct tags only. Referential checks (unknown keys, unknown
// roles) happen in Bootstrap where the catalog exists.
func (l *ConfigLoader) Validate(cfg *Config) error {
	if err := l.validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Backends are the persistence and logging dependencies Bootstrap wires in.
// Any nil field falls back to in-memory behaviour.
type Backends struct {
	Memberships MembershipStore
	Workspaces  WorkspaceStore
	Audit       AuditStore
	Sessions    SessionStore
	Logger      logger.Logger
}

// Runtime is a fully wired authorization core.
type Runtime struct {
	Catalog    *Catalog
	Roles      *RoleRegistry
	Workspaces *WorkspaceRegistry
	Members    *MembershipService
	Engine     *Engine
	Guards     *GuardTable
}

// BootstrapActor is recorded as the actor for memberships seeded from config.
const BootstrapActor = "system:bootstrap"

// Bootstrap builds catalog, roles, workspaces, memberships and engine from
// cfg. Any configuration error aborts startup.
func Bootstrap(ctx context.Context, cfg *Config, b Backends) (*Runtime, error) {
	log := b.Logger
	if log == nil {
		log = logger.NewNullLogger()
	}
	perms := cfg.Permissions
	if len(perms) == 0 {
		perms = DefaultPermissions()
	}
	catalog, err := NewSealedCatalog(perms)
	if err != nil {
		return nil, err
	}
	defs := cfg.Roles
	if len(defs) == 0 {
		defs = DefaultRoles(catalog)
	}
	roles, err := NewSealedRoleRegistry(catalog, defs)
	if err != nil {
		return nil, err
	}
	guards := NewGuardTable(cfg.Guards...)
	if err := guards.Validate(catalog); err != nil {
		return nil, err
	}

	workspaces := NewWorkspaceRegistry(b.Workspaces)
	if err := workspaces.Load(ctx); err != nil {
		return nil, err
	}
	for _, ws := range cfg.Workspaces {
		if _, ok := workspaces.Get(ws.ID); ok {
			continue
		}
		if _, err := workspaces.Create(ctx, ws); err != nil {
			return nil, err
		}
	}

	opts := []MembershipOption{
		WithMembershipStore(b.Memberships),
		WithAuditStore(b.Audit),
		WithMembershipLogger(log),
	}
	if cfg.Engine.GrantRetries > 0 {
		opts = append(opts, WithGrantRetries(cfg.Engine.GrantRetries))
	}
	members := NewMembershipService(roles, workspaces, opts...)
	if err := members.Load(ctx); err != nil {
		return nil, err
	}
	for _, m := range cfg.Memberships {
		if cur, ok := members.Membership(m.PrincipalID, m.WorkspaceID); ok && cur.RoleID == m.RoleID {
			continue
		}
		actor := m.GrantedBy
		if actor == "" {
			actor = BootstrapActor
		}
		if err := members.Grant(ctx, actor, m.PrincipalID, m.WorkspaceID, m.RoleID); err != nil {
			return nil, fmt.Errorf("seed membership %s/%s: %w", m.WorkspaceID, m.PrincipalID, err)
		}
	}

	engineOpts := []EngineOption{WithLogger(log)}
	if b.Sessions != nil {
		engineOpts = append(engineOpts, WithSessionStore(b.Sessions))
	}
	if cfg.Engine.BatchLimit > 0 {
		engineOpts = append(engineOpts, WithBatchLimit(cfg.Engine.BatchLimit))
	}
	engine, err := NewEngine(roles, members, workspaces, engineOpts...)
	if err != nil {
		return nil, err
	}
	log.Info("authorization core ready",
		"permissions", catalog.Len(), "roles", len(roles.List()),
		"workspaces", len(workspaces.List()), "guards", len(guards.Guards()))
	return &Runtime{
		Catalog:    catalog,
		Roles:      roles,
		Workspaces: workspaces,
		Members:    members,
		Engine:     engine,
		Guards:     guards,
	}, nil
}
