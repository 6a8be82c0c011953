package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/open-policy-agent/opa/ast"
	"github.com/rs/zerolog"
)

const bundleSuffix = ".bundle.json"

// Loader reads policies from .rego files, JSON policy definitions and
// *.bundle.json bundles. Parsed files are cached until they change on disk.
type Loader struct {
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string][]Policy

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string][]Policy),
	}
}

// LoadFromPaths loads every policy below the given files and directories.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var all []Policy
	for _, path := range paths {
		policies, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, policies...)
	}

	l.logger.Debug().Int("total", len(all)).Strs("paths", paths).Msg("Policies loaded")
	return all, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}
	return l.loadFile(ctx, path)
}

// loadFromDirectory loads the policy files below dir. A file that fails to
// load is skipped with a warning so one broken policy does not hide the rest.
func (l *Loader) loadFromDirectory(ctx context.Context, dir string) ([]Policy, error) {
	var policies []Policy
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isPolicyFile(path) {
			return err
		}
		loaded, err := l.loadFile(ctx, path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Skipping policy file")
			return nil
		}
		policies = append(policies, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return policies, nil
}

func isPolicyFile(path string) bool {
	return strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, ".json")
}

// loadFile loads a single file, expanding bundles into their policies.
func (l *Loader) loadFile(ctx context.Context, path string) ([]Policy, error) {
	if !strings.HasSuffix(path, bundleSuffix) {
		p, err := l.loadFromFile(ctx, path)
		if err != nil {
			return nil, err
		}
		return []Policy{*p}, nil
	}

	if cached, ok := l.cached(path); ok {
		return cached, nil
	}
	bundle, err := l.LoadBundle(ctx, path)
	if err != nil {
		return nil, err
	}
	l.store(path, bundle.Policies)
	return bundle.Policies, nil
}

func (l *Loader) loadFromFile(ctx context.Context, path string) (*Policy, error) {
	if cached, ok := l.cached(path); ok && len(cached) == 1 {
		return &cached[0], nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var p *Policy
	switch filepath.Ext(path) {
	case ".rego":
		p = policyFromRego(path, data)
	case ".json":
		if p, err = policyFromJSON(data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
	if err := checkModule(p); err != nil {
		return nil, err
	}

	l.store(path, []Policy{*p})
	l.logger.Debug().
		Str("path", path).
		Str("policy", p.Name).
		Str("severity", string(p.Severity)).
		Msg("Policy loaded")
	return p, nil
}

func (l *Loader) cached(path string) ([]Policy, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	policies, ok := l.cache[path]
	return policies, ok
}

func (l *Loader) store(path string, policies []Policy) {
	l.mu.Lock()
	l.cache[path] = policies
	l.mu.Unlock()
}

func (l *Loader) forget(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

// ClearCache drops every parsed policy.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string][]Policy)
	l.mu.Unlock()
}

// checkModule rejects modules that do not parse or define no deny rule.
func checkModule(p *Policy) error {
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy %s: %w", p.Name, err)
	}
	if module == nil {
		return fmt.Errorf("policy %s is empty", p.Name)
	}
	for _, rule := range module.Rules {
		if rule.Head.Name.String() == "deny" || rule.Head.Ref().String() == "deny" {
			return nil
		}
	}
	return fmt.Errorf("policy %s defines no deny rule", p.Name)
}

// policyFromRego names the policy after its file. The leading comment block
// is the description and may carry "severity:" and "tags:" lines.
func policyFromRego(path string, data []byte) *Policy {
	header := parseHeader(string(data))
	if header.severity == "" {
		header.severity = SeverityWarning
	}
	now := time.Now()
	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: header.description,
		Rego:        string(data),
		Severity:    header.severity,
		Enabled:     true,
		Tags:        header.tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func policyFromJSON(data []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if p.Name == "" {
		return nil, errors.New("JSON policy has no name")
	}
	defaultPolicy(&p)
	return &p, nil
}

func defaultPolicy(p *Policy) {
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
}

type regoHeader struct {
	description string
	severity    Severity
	tags        []string
}

// parseHeader reads the comment block before the first statement.
func parseHeader(content string) regoHeader {
	h := regoHeader{tags: []string{}}
	var desc []string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(desc) > 0 {
				break
			}
			continue
		}
		comment, ok := strings.CutPrefix(line, "#")
		if !ok {
			break
		}
		comment = strings.TrimSpace(comment)

		if v, ok := strings.CutPrefix(comment, "severity:"); ok {
			h.severity = Severity(strings.TrimSpace(v))
		} else if v, ok := strings.CutPrefix(comment, "tags:"); ok {
			for _, tag := range strings.Split(v, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					h.tags = append(h.tags, tag)
				}
			}
		} else if comment != "" {
			desc = append(desc, comment)
		}
	}

	h.description = strings.Join(desc, " ")
	return h
}

// LoadBundle loads a JSON policy bundle and checks every policy in it.
func (l *Loader) LoadBundle(ctx context.Context, path string) (*PolicyBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	var bundle PolicyBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	for i := range bundle.Policies {
		defaultPolicy(&bundle.Policies[i])
		if err := checkModule(&bundle.Policies[i]); err != nil {
			return nil, fmt.Errorf("bundle %s: %w", bundle.Name, err)
		}
	}

	l.logger.Info().
		Str("bundle", bundle.Name).
		Str("version", bundle.Version).
		Int("policies", len(bundle.Policies)).
		Msg("Policy bundle loaded")
	return &bundle, nil
}

// Watch calls reloadFn with the full policy set after every burst of
// changes below paths, until ctx is done or StopWatching is called.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, path := range paths {
		if err := addWatch(watcher, path); err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch policy path")
		}
	}

	l.watchMu.Lock()
	l.watcher = watcher
	l.watchMu.Unlock()

	go l.processEvents(ctx, watcher, paths, reloadFn)

	l.logger.Info().Int("paths", len(paths)).Msg("Started watching policy paths")
	return nil
}

// addWatch watches a file's directory, or every directory of a tree.
func addWatch(watcher *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		return watcher.Add(p)
	})
}

func (l *Loader) processEvents(ctx context.Context, watcher *fsnotify.Watcher, paths []string, reloadFn func([]Policy) error) {
	const debounce = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = l.StopWatching()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !isPolicyFile(event.Name) {
				continue
			}
			l.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Policy file changed")
			l.forget(event.Name)

			l.watchMu.Lock()
			if l.timer != nil {
				l.timer.Stop()
			}
			l.timer = time.AfterFunc(debounce, func() {
				if err := l.reload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload policies")
				}
			})
			l.watchMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) reload(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	if ctx.Err() != nil {
		return nil
	}
	policies, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to reload policies: %w", err)
	}
	if err := reloadFn(policies); err != nil {
		return fmt.Errorf("failed to apply reloaded policies: %w", err)
	}
	l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")
	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}
