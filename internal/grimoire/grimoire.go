package grimoire

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"gopkg.in/yaml.v3"

	"layerforge/internal/logging"
	"layerforge/internal/services"
)

//go:embed defaults
var defaults embed.FS

// Role is the part a grimoire plays in prompt composition.
type Role string

const (
	RoleCompiler  Role = "compiler"
	RoleFormatter Role = "formatter"
	RoleArchitect Role = "architect"
)

// Roles lists the grimoire roles.
func Roles() []Role {
	return []Role{RoleCompiler, RoleFormatter, RoleArchitect}
}

// Default returns the template used when a name cannot be resolved.
func (r Role) Default() string {
	switch r {
	case RoleFormatter:
		return "md_comment"
	case RoleArchitect:
		return "architect"
	default:
		return "general_prompt"
	}
}

// Template is a resolved grimoire.
type Template struct {
	Name        string
	Role        Role
	Path        string
	Description string
	Body        string
	Embedded    bool
}

type frontMatter struct {
	Description string `yaml:"description"`
	Role        string `yaml:"role"`
}

const cacheMaxCost = 4 << 20

// Resolver finds grimoires relative to the working directory, then the
// configured grimoire directory, then the embedded defaults.
type Resolver struct {
	dir    string
	logger *slog.Logger
	cache  *ristretto.Cache[string, *Template]
}

// NewResolver builds a resolver over dir. An empty dir uses only the
// working directory and embedded defaults.
func NewResolver(dir string, logger *slog.Logger) (*Resolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Template]{
		NumCounters: cacheMaxCost / 1024 * 10,
		MaxCost:     cacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("grimoire cache: %w", err)
	}
	return &Resolver{
		dir:    strings.TrimSpace(dir),
		logger: logging.NewComponentLogger(logger, "grimoire"),
		cache:  cache,
	}, nil
}

// Close releases the template cache.
func (r *Resolver) Close() {
	if r != nil && r.cache != nil {
		r.cache.Close()
	}
}

// Resolve locates name for role. It tries name and name.md at each location.
func (r *Resolver) Resolve(role Role, name string) (*Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrNotFound, "grimoire", "resolve", "Empty grimoire name", nil)
	}
	key := string(role) + "\x00" + name
	if tpl, ok := r.cache.Get(key); ok {
		return tpl, nil
	}

	tpl, err := r.lookup(role, name)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, tpl, int64(len(tpl.Body))+1)
	r.cache.Wait()
	return tpl, nil
}

// ResolveOrDefault resolves name, substituting the role default when the
// name is empty, missing, or unreadable.
func (r *Resolver) ResolveOrDefault(role Role, name string) *Template {
	if strings.TrimSpace(name) != "" {
		tpl, err := r.Resolve(role, name)
		if err == nil {
			return tpl
		}
		logging.WarnWithContext(r.logger, "grimoire not found, using default", "grimoire_fallback",
			logging.String("role", string(role)),
			logging.String("name", name),
			logging.String("default", role.Default()),
			logging.String(logging.FieldErrorHint, "check the grimoire name or paths.grimoire_dir"),
			logging.String(logging.FieldImpact, "prompt built from the default template"),
			logging.Error(err),
		)
	}
	tpl, err := r.Resolve(role, role.Default())
	if err != nil {
		// Embedded defaults always exist; an empty template keeps composition going.
		return &Template{Name: role.Default(), Role: role, Embedded: true}
	}
	return tpl
}

func (r *Resolver) lookup(role Role, name string) (*Template, error) {
	candidates := []string{name}
	if !strings.HasSuffix(name, ".md") {
		candidates = append(candidates, name+".md")
	}

	var dirs []string
	if abs, err := filepath.Abs("."); err == nil {
		dirs = append(dirs, abs)
	}
	if r.dir != "" {
		dirs = append(dirs, filepath.Join(r.dir, string(role)), r.dir)
	}
	for _, dir := range dirs {
		for _, candidate := range candidates {
			p := candidate
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, candidate)
			}
			info, err := os.Stat(p)
			if err != nil || info.IsDir() {
				continue
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, services.Wrap(services.ErrConfiguration, "grimoire", "read", "Unreadable grimoire "+p, err)
			}
			return parse(role, stem(p), p, data, false), nil
		}
	}

	base := strings.TrimSuffix(filepath.Base(name), ".md")
	p := path.Join("defaults", string(role), base+".md")
	if data, err := defaults.ReadFile(p); err == nil {
		return parse(role, base, p, data, true), nil
	}
	return nil, services.Wrap(services.ErrNotFound, "grimoire", "resolve",
		fmt.Sprintf("Grimoire %q not found for role %s", name, role), nil)
}

// Catalogue lists the grimoires available for role, configured directory
// entries shadowing embedded defaults of the same name.
func (r *Resolver) Catalogue(role Role) ([]Template, error) {
	byName := map[string]Template{}

	entries, err := fs.ReadDir(defaults, path.Join("defaults", string(role)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read embedded grimoires: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		p := path.Join("defaults", string(role), entry.Name())
		data, err := defaults.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read embedded grimoire %s: %w", p, err)
		}
		tpl := parse(role, stem(entry.Name()), p, data, true)
		byName[tpl.Name] = *tpl
	}

	if r.dir != "" {
		dir := filepath.Join(r.dir, string(role))
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read grimoire dir %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			p := filepath.Join(dir, entry.Name())
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("read grimoire %s: %w", p, err)
			}
			tpl := parse(role, stem(entry.Name()), p, data, false)
			byName[tpl.Name] = *tpl
		}
	}

	out := make([]Template, 0, len(byName))
	for _, tpl := range byName {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func parse(role Role, name, p string, data []byte, embedded bool) *Template {
	tpl := &Template{Name: name, Role: role, Path: p, Embedded: embedded}
	body, meta := splitFrontMatter(data)
	tpl.Body = string(body)
	if meta != nil {
		var fm frontMatter
		if err := yaml.Unmarshal(meta, &fm); err == nil {
			tpl.Description = strings.TrimSpace(fm.Description)
			if fm.Role != "" {
				tpl.Role = Role(strings.ToLower(strings.TrimSpace(fm.Role)))
			}
		}
	}
	if tpl.Description == "" {
		tpl.Description = firstLine(tpl.Body)
	}
	return tpl
}

func splitFrontMatter(data []byte) (body, meta []byte) {
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return normalized, nil
	}
	rest := normalized[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return normalized, nil
	}
	meta = rest[:end]
	body = rest[end+len("\n---"):]
	body = bytes.TrimPrefix(body, []byte("\n"))
	return body, meta
}

func firstLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			return line
		}
	}
	return ""
}

func stem(p string) string {
	return strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
}
