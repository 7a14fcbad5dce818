package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/ensemble/internal/logging"
)

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string // dotted key, e.g. "session.max_retries"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err)
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return logging.Levels()
}

// ValidStoreBackends returns the accepted store.backend values.
func ValidStoreBackends() []string {
	return []string{"file", "sqlite", "s3", "memory"}
}

// ValidVendors returns the vendors with a built-in command line. A role with
// any other vendor must set an explicit command. Kept in step with
// worker.BackendClaude and worker.BackendCodex by a worker test.
func ValidVendors() []string {
	return []string{"claude", "codex"}
}

// ValidThemes returns the built-in TUI theme names. Kept in step with
// styles.ThemeNames by a styles test.
func ValidThemes() []string {
	return []string{"default", "monokai", "dracula", "nord"}
}

const maxSessionRetries = 20

// problems collects validation failures in the order they are found.
type problems []ValidationError

func (p *problems) add(field string, value any, format string, args ...any) {
	*p = append(*p, ValidationError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)})
}

func (p *problems) oneOf(field, value string, allowed []string) {
	if value != "" && !slices.Contains(allowed, value) {
		p.add(field, value, "must be one of: %s", strings.Join(allowed, ", "))
	}
}

func (p *problems) path(field, value string) {
	if strings.ContainsRune(value, 0) {
		p.add(field, value, "path contains invalid null character")
	}
}

func (p *problems) nonNegative(field string, value int) {
	if value < 0 {
		p.add(field, value, "must be non-negative")
	}
}

func (p *problems) duration(field string, d time.Duration) {
	if d < 0 {
		p.add(field, d, "must be non-negative")
	}
}

func (p *problems) required(field, value, backend string) {
	if value == "" {
		p.add(field, value, "required for the %s backend", backend)
	}
}

// Validate returns every invalid setting in c, grouped by section.
func (c *Config) Validate() []ValidationError {
	var p problems

	p.oneOf("logging.level", c.Logging.Level, ValidLogLevels())
	p.path("logging.dir", c.Logging.Dir)

	s := c.Session
	p.nonNegative("session.max_retries", s.MaxRetries)
	if s.MaxRetries > maxSessionRetries {
		p.add("session.max_retries", s.MaxRetries, "exceeds maximum of %d", maxSessionRetries)
	}
	p.duration("session.base_delay", s.BaseDelay)
	p.duration("session.max_delay", s.MaxDelay)
	p.duration("session.availability_ttl", s.AvailabilityTTL)
	if s.MaxDelay > 0 && s.BaseDelay > s.MaxDelay {
		p.add("session.base_delay", s.BaseDelay, "must not exceed session.max_delay (%v)", s.MaxDelay)
	}

	e := c.Engine
	p.nonNegative("engine.quality_retries", e.QualityRetries)
	if e.MaxParallel < 0 {
		p.add("engine.max_parallel", e.MaxParallel, "must be non-negative (0 means unlimited)")
	}
	p.duration("engine.autosave_interval", e.AutosaveInterval)
	if e.AutosaveInterval > 0 && e.AutosaveInterval < time.Second {
		p.add("engine.autosave_interval", e.AutosaveInterval, "must be at least 1s (or 0 to disable)")
	}
	p.path("engine.output_root", e.OutputRoot)

	c.validateRoles(&p)

	if role := c.Conflict.ArchitectRole; role != "" && len(c.Roles) > 0 {
		if _, ok := c.Roles[role]; !ok {
			p.add("conflict.architect_role", role, "must be a configured role: %s", strings.Join(c.RoleNames(), ", "))
		}
	}
	p.nonNegative("conflict.proximity_window", c.Conflict.ProximityWindow)

	c.validateStore(&p)

	p.oneOf("tui.theme", c.TUI.Theme, ValidThemes())
	p.nonNegative("tui.max_tasks", c.TUI.MaxTasks)

	return p
}

func (c *Config) validateRoles(p *problems) {
	if len(c.Roles) == 0 {
		p.add("roles", 0, "at least one role must be configured")
		return
	}
	for _, name := range c.RoleNames() {
		role := c.Roles[name]
		prefix := "roles." + name

		switch {
		case role.Vendor == "":
			p.add(prefix+".vendor", role.Vendor, "must not be empty")
		case len(role.Command) == 0 && !slices.Contains(ValidVendors(), strings.ToLower(role.Vendor)):
			p.add(prefix+".command", role.Vendor, "required for vendors other than: %s", strings.Join(ValidVendors(), ", "))
		}

		seen := make(map[string]bool, len(role.Fallbacks))
		for i, fb := range role.Fallbacks {
			field := fmt.Sprintf("%s.fallbacks[%d]", prefix, i)
			_, known := c.Roles[fb]
			switch {
			case fb == name:
				p.add(field, fb, "role cannot fall back to itself")
			case seen[fb]:
				p.add(field, fb, "duplicate fallback")
			case !known:
				p.add(field, fb, "references an unknown role")
			}
			seen[fb] = true
		}
	}
}

func (c *Config) validateStore(p *problems) {
	st := c.Store
	if st.Backend != "" && !slices.Contains(ValidStoreBackends(), st.Backend) {
		p.oneOf("store.backend", st.Backend, ValidStoreBackends())
		return
	}
	switch st.Backend {
	case "", "file":
		p.required("store.dir", st.Dir, "file")
	case "sqlite":
		p.required("store.sqlite_path", st.SQLitePath, "sqlite")
	case "s3":
		p.required("store.s3_bucket", st.S3Bucket, "s3")
	}
}
