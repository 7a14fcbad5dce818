package conflict

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/ids"
	"github.com/Iron-Ham/ensemble/internal/logging"
	"github.com/Iron-Ham/ensemble/internal/paths"
	"github.com/Iron-Ham/ensemble/internal/plan"
)

const (
	// DefaultArchitectRole wins duplicate-work conflicts against other roles.
	DefaultArchitectRole = "claude"

	// contractWindow is how many characters after an endpoint describe its
	// contract.
	contractWindow = 200
)

var (
	endpointPattern = regexp.MustCompile(`\b(GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS)\s+(/[A-Za-z0-9_\-/:{}.]*)`)

	identifierPattern  = regexp.MustCompile(`(?m)(?:^|[\s;])(?:export\s+(?:default\s+)?(?:async\s+)?(?:function|class|const|interface|type)|func|type)\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	prismaModelPattern = regexp.MustCompile(`(?m)^\s*model\s+([A-Za-z_][A-Za-z0-9_]*)\s*\{`)
	sqlTablePattern    = regexp.MustCompile("(?i)\\bCREATE\\s+TABLE\\s+(?:IF\\s+NOT\\s+EXISTS\\s+)?[\"`]?([A-Za-z_][A-Za-z0-9_]*)")

	whitespace = regexp.MustCompile(`\s+`)
)

var sensitiveSegments = map[string]bool{
	"auth": true, "login": true, "logout": true, "users": true, "user": true,
	"session": true, "token": true, "password": true,
}

var sensitiveDomains = map[string]bool{
	"auth": true, "authorization": true, "authentication": true,
	"security": true, "permissions": true,
}

// Config configures a Resolver.
type Config struct {
	// ArchitectRole is the agent whose declarations win duplicate-work
	// conflicts. Empty means DefaultArchitectRole.
	ArchitectRole string
	// ProximityWindow is how far after a path mention a fenced block may
	// open. Zero means paths.DefaultProximity.
	ProximityWindow int
	IDs             ids.Generator
	Now             func() time.Time
}

// Resolver detects conflicts and keeps the resolution history.
type Resolver struct {
	architect string
	window    int
	ids       ids.Generator
	now       func() time.Time
	bus       *event.Bus
	logger    *logging.Logger

	mu      sync.Mutex
	order   []string
	history map[string]Resolution
}

// NewResolver creates a Resolver. bus and logger may be nil.
func NewResolver(cfg Config, bus *event.Bus, logger *logging.Logger) *Resolver {
	r := &Resolver{
		architect: cfg.ArchitectRole,
		window:    cfg.ProximityWindow,
		ids:       cfg.IDs,
		now:       cfg.Now,
		bus:       bus,
		logger:    logger,
		history:   make(map[string]Resolution),
	}
	if r.architect == "" {
		r.architect = DefaultArchitectRole
	}
	if r.window <= 0 {
		r.window = paths.DefaultProximity
	}
	if r.ids == nil {
		r.ids = ids.NewSequence()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// ArchitectRole returns the role preferred in duplicate-work conflicts.
func (r *Resolver) ArchitectRole() string { return r.architect }

// Detect runs every detector over outputs. Each call produces a fresh set of
// conflicts; fewer than two outputs cannot conflict.
func (r *Resolver) Detect(outputs []plan.AgentOutput) []Conflict {
	if len(outputs) < 2 {
		return nil
	}

	var conflicts []Conflict
	conflicts = append(conflicts, r.detectAPIContracts(outputs)...)
	conflicts = append(conflicts, r.detectDuplicateWork(outputs)...)
	conflicts = append(conflicts, r.detectFileMerges(outputs)...)
	conflicts = append(conflicts, r.detectContradictions(outputs)...)

	for _, c := range conflicts {
		b := c.Common()
		r.logger.Info("conflict detected",
			"conflict_id", b.ID,
			"type", c.Type(),
			"severity", b.Severity,
			"tasks", b.TaskIDs[:])
		r.bus.Publish(event.NewConflictDetectedEvent(b.ID, string(c.Type()), b.TaskIDs, string(b.Severity)))
	}
	return conflicts
}

func (r *Resolver) base(a, b plan.AgentOutput, sev Severity, description string) Base {
	return Base{
		ID:          r.ids.Next("conflict"),
		TaskIDs:     [2]string{a.TaskID, b.TaskID},
		Agents:      [2]string{a.Agent, b.Agent},
		Severity:    sev,
		Description: description,
		DetectedAt:  r.now(),
	}
}

// occurrence is something found in one output.
type occurrence struct {
	output int
	text   string
}

type endpoint struct {
	key    string
	window string
}

func endpoints(text string) []endpoint {
	var out []endpoint
	for _, loc := range endpointPattern.FindAllStringSubmatchIndex(text, -1) {
		key := text[loc[2]:loc[3]] + " " + strings.TrimRight(text[loc[4]:loc[5]], ".")
		end := min(loc[1]+contractWindow, len(text))
		out = append(out, endpoint{key: key, window: text[loc[1]:end]})
	}
	return out
}

func normalizeWindow(s string) string {
	return strings.ToLower(strings.TrimSpace(whitespace.ReplaceAllString(s, " ")))
}

func (r *Resolver) detectAPIContracts(outputs []plan.AgentOutput) []Conflict {
	var keys []string
	byKey := make(map[string][]occurrence)
	for i, out := range outputs {
		for _, ep := range endpoints(out.Output) {
			if _, ok := byKey[ep.key]; !ok {
				keys = append(keys, ep.key)
			}
			byKey[ep.key] = append(byKey[ep.key], occurrence{output: i, text: ep.window})
		}
	}

	var conflicts []Conflict
	reported := make(map[string]bool)
	for _, key := range keys {
		occ := byKey[key]
		for i := 0; i < len(occ); i++ {
			for j := i + 1; j < len(occ); j++ {
				a, b := outputs[occ[i].output], outputs[occ[j].output]
				if a.TaskID == b.TaskID {
					continue
				}
				if normalizeWindow(occ[i].text) == normalizeWindow(occ[j].text) {
					continue
				}
				pairKey := key + "\x00" + a.TaskID + "\x00" + b.TaskID
				if reported[pairKey] {
					continue
				}
				reported[pairKey] = true

				desc := fmt.Sprintf("%s is described differently by %s and %s", key, a.TaskID, b.TaskID)
				conflicts = append(conflicts, APIContract{
					Base:     r.base(a, b, endpointSeverity(key), desc),
					Endpoint: key,
					Snippets: [2]string{strings.TrimSpace(occ[i].text), strings.TrimSpace(occ[j].text)},
				})
			}
		}
	}
	return conflicts
}

func endpointSeverity(key string) Severity {
	_, path, _ := strings.Cut(key, " ")
	for _, seg := range strings.Split(strings.ToLower(path), "/") {
		if sensitiveSegments[seg] {
			return SeverityHigh
		}
	}
	return SeverityMedium
}

type declared struct {
	name string
	kind DuplicateKind
}

// declaredNames returns the names an output declares, first occurrence first.
func declaredNames(text string) []declared {
	var out []declared
	seen := make(map[string]int)
	add := func(name string, kind DuplicateKind) {
		if i, ok := seen[name]; ok {
			if kind == KindModel {
				out[i].kind = KindModel
			}
			return
		}
		seen[name] = len(out)
		out = append(out, declared{name: name, kind: kind})
	}

	for _, m := range identifierPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		kind := KindFunction
		if first := name[0]; first >= 'A' && first <= 'Z' {
			kind = KindComponent
		}
		add(name, kind)
	}
	for _, m := range prismaModelPattern.FindAllStringSubmatch(text, -1) {
		add(m[1], KindModel)
	}
	for _, m := range sqlTablePattern.FindAllStringSubmatch(text, -1) {
		add(m[1], KindModel)
	}
	for _, ep := range endpoints(text) {
		add(ep.key, KindEndpoint)
	}
	return out
}

func (r *Resolver) detectDuplicateWork(outputs []plan.AgentOutput) []Conflict {
	type site struct {
		output int
		kind   DuplicateKind
	}
	var names []string
	byName := make(map[string][]site)
	for i, out := range outputs {
		for _, d := range declaredNames(out.Output) {
			sites, ok := byName[d.name]
			if !ok {
				names = append(names, d.name)
			}
			if slices.ContainsFunc(sites, func(s site) bool { return outputs[s.output].TaskID == out.TaskID }) {
				continue
			}
			byName[d.name] = append(sites, site{output: i, kind: d.kind})
		}
	}

	var conflicts []Conflict
	for _, name := range names {
		sites := byName[name]
		for i := 0; i < len(sites); i++ {
			for j := i + 1; j < len(sites); j++ {
				a, b := outputs[sites[i].output], outputs[sites[j].output]
				kind := sites[i].kind
				if sites[i].kind == KindModel || sites[j].kind == KindModel {
					kind = KindModel
				}
				sev := SeverityMedium
				if kind == KindModel {
					sev = SeverityHigh
				}
				desc := fmt.Sprintf("%s %s is declared by both %s and %s", kind, name, a.TaskID, b.TaskID)
				conflicts = append(conflicts, DuplicateWork{
					Base: r.base(a, b, sev, desc),
					Name: name,
					Kind: kind,
				})
			}
		}
	}
	return conflicts
}

// normalizeContent trims content and unifies line endings.
func normalizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(strings.ReplaceAll(s, "\r", "\n"))
}

// MergeMarkers joins two versions between conflict markers labelled with the
// given names.
func MergeMarkers(a, b, labelA, labelB string) string {
	var sb strings.Builder
	sb.WriteString("<<<<<<< " + labelA + "\n")
	sb.WriteString(a)
	sb.WriteString("\n=======\n")
	sb.WriteString(b)
	sb.WriteString("\n>>>>>>> " + labelB + "\n")
	return sb.String()
}

func (r *Resolver) detectFileMerges(outputs []plan.AgentOutput) []Conflict {
	type version struct {
		output  int
		raw     string
		content string
	}
	var keys []string
	byPath := make(map[string][]version)
	for i, out := range outputs {
		for _, blk := range paths.Blocks(out.Output, r.window) {
			if _, ok := byPath[blk.Path]; !ok {
				keys = append(keys, blk.Path)
			}
			byPath[blk.Path] = append(byPath[blk.Path], version{output: i, raw: blk.Raw, content: normalizeContent(blk.Content)})
		}
	}

	var conflicts []Conflict
	for _, key := range keys {
		versions := byPath[key]
		for i := 0; i < len(versions); i++ {
			for j := i + 1; j < len(versions); j++ {
				va, vb := versions[i], versions[j]
				a, b := outputs[va.output], outputs[vb.output]
				if a.TaskID == b.TaskID || va.content == vb.content {
					continue
				}
				sev := SeverityMedium
				if paths.IsSensitiveConfig(key) {
					sev = SeverityHigh
				}
				desc := fmt.Sprintf("%s has different content from %s and %s", va.raw, a.TaskID, b.TaskID)
				conflicts = append(conflicts, FileMerge{
					Base:     r.base(a, b, sev, desc),
					Path:     va.raw,
					Contents: [2]string{va.content, vb.content},
					Merged:   MergeMarkers(va.content, vb.content, a.TaskID, b.TaskID),
				})
			}
		}
	}
	return conflicts
}

func (r *Resolver) detectContradictions(outputs []plan.AgentOutput) []Conflict {
	type claim struct {
		output int
		decl   plan.Declaration
	}
	var keys []string
	byKey := make(map[string][]claim)
	for i, out := range outputs {
		latest := make(map[string]int)
		for _, d := range out.Declarations {
			k := d.QualifiedKey()
			if idx, ok := latest[k]; ok {
				byKey[k][idx].decl = d
				continue
			}
			if _, ok := byKey[k]; !ok {
				keys = append(keys, k)
			}
			latest[k] = len(byKey[k])
			byKey[k] = append(byKey[k], claim{output: i, decl: d})
		}
	}

	var conflicts []Conflict
	for _, key := range keys {
		claims := byKey[key]
		for i := 0; i < len(claims); i++ {
			for j := i + 1; j < len(claims); j++ {
				ca, cb := claims[i], claims[j]
				a, b := outputs[ca.output], outputs[cb.output]
				if a.TaskID == b.TaskID || strings.EqualFold(ca.decl.Value, cb.decl.Value) {
					continue
				}
				sev := SeverityLow
				if sensitiveDomains[strings.ToLower(ca.decl.Domain)] {
					sev = SeverityHigh
				}
				desc := fmt.Sprintf("%s is %q in %s but %q in %s", key, ca.decl.Value, a.TaskID, cb.decl.Value, b.TaskID)
				conflicts = append(conflicts, Contradiction{
					Base:   r.base(a, b, sev, desc),
					Domain: ca.decl.Domain,
					Key:    ca.decl.Key,
					Values: [2]string{ca.decl.Value, cb.decl.Value},
				})
			}
		}
	}
	return conflicts
}
