// Package tomlloader implements loader.Loader by reading conn.toml,
// plan.toml, app.toml and script files out of one flat directory (there are
// no config/<identifier>/ or scripts/<identifier>/ subdirectories), grounded
// on original_source's TomlFileConfLoader. Like the original, it can run in
// "once load" mode: the first read of plan.toml/conn.toml, including its
// error if it failed, is cached for the process lifetime instead of being
// re-read off disk on every registry.Reset() (original_source's
// is_once_load / OnceLock pair).
package tomlloader

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/plan"
)

type connRoot struct {
	Connection map[string]plan.ConnectionInfo `toml:"connection"`
}

type planRoot struct {
	Plan map[string]plan.Plan `toml:"plan"`
}

// Loader reads mypipline's file layout rooted at Dir.
type Loader struct {
	Dir      string
	OnceLoad bool

	connOnce  sync.Once
	connCache map[string]plan.ConnectionInfo
	connErr   error

	planOnce  sync.Once
	planCache map[string]plan.Plan
	planErr   error
}

// New builds a Loader rooted at dir. onceLoad mirrors
// TomlFileConfLoader::new's load_once flag: when true, conn.toml/plan.toml
// are parsed once and reused across every registry.Reset() call instead of
// being re-read from disk.
func New(dir string, onceLoad bool) *Loader {
	return &Loader{Dir: dir, OnceLoad: onceLoad}
}

func (l *Loader) readFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.Dir, name))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNoData, "tomlloader.readFile", err)
	}
	return data, nil
}

func (l *Loader) LoadAppConfig() ([]byte, error) {
	return l.readFile("app.toml")
}

func (l *Loader) LoadConnections() (map[string]plan.ConnectionInfo, error) {
	load := func() (map[string]plan.ConnectionInfo, error) {
		data, err := l.readFile("conn.toml")
		if err != nil {
			return nil, err
		}
		var root connRoot
		if err := toml.Unmarshal(data, &root); err != nil {
			return nil, apperr.Wrap(apperr.KindParsingFail, "tomlloader.LoadConnections", err)
		}
		for name, info := range root.Connection {
			info.Name = name
			root.Connection[name] = info
		}
		return root.Connection, nil
	}

	if !l.OnceLoad {
		return load()
	}
	l.connOnce.Do(func() { l.connCache, l.connErr = load() })
	return l.connCache, l.connErr
}

// LoadPlans decodes plan.toml and drops any entry with enable = false before
// returning it: disabled plans never enter the registry's snapshot or the
// admin HTTP surface built on top of it.
func (l *Loader) LoadPlans() (map[string]plan.Plan, error) {
	load := func() (map[string]plan.Plan, error) {
		data, err := l.readFile("plan.toml")
		if err != nil {
			return nil, err
		}
		var root planRoot
		if err := toml.Unmarshal(data, &root); err != nil {
			return nil, apperr.Wrap(apperr.KindParsingFail, "tomlloader.LoadPlans", err)
		}
		enabled := make(map[string]plan.Plan, len(root.Plan))
		for name, p := range root.Plan {
			if !p.Enable {
				continue
			}
			p.Name = name
			enabled[name] = p
		}
		return enabled, nil
	}

	if !l.OnceLoad {
		return load()
	}
	l.planOnce.Do(func() { l.planCache, l.planErr = load() })
	return l.planCache, l.planErr
}

func (l *Loader) LoadScriptSource(file string) (string, error) {
	data, err := os.ReadFile(filepath.Join(l.Dir, file))
	if err != nil {
		return "", apperr.Wrap(apperr.KindNoData, "tomlloader.LoadScriptSource", err)
	}
	return string(data), nil
}
