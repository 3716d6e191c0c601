package host

import (
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/wasync/errors"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions.
type Host interface {
	// Namespace returns the WIT interface name (e.g., "wasi:io/poll@0.2.8").
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact WIT function names
// when automatic PascalCase-to-kebab-case conversion doesn't apply
// (e.g., "[method]pollable.ready").
type ExplicitRegistrar interface {
	Register() map[string]any
}

type Registry struct {
	funcs map[string]map[string]any
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]map[string]any),
	}
}

func (r *Registry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[ns] == nil {
		r.funcs[ns] = make(map[string]any)
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		maps.Copy(r.funcs[ns], er.Register())
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}
		r.funcs[ns][toKebabCase(method.Name)] = rv.Method(i).Interface()
	}
	return nil
}

func (r *Registry) RegisterFunc(namespace, name string, fn any) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Op("register " + namespace + "#" + name).
			Detail("handler must be a function").
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]any)
	}
	r.funcs[namespace][name] = fn
	return nil
}

// Lookup finds a function. An import at version X.Y.W is satisfied by a
// registered X.Y.Z when W <= Z; the highest such version wins.
func (r *Registry) Lookup(namespace, name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if fn, ok := r.funcs[namespace][name]; ok {
		return fn, true
	}
	base, want, ok := splitVersion(namespace)
	if !ok {
		return nil, false
	}

	var best any
	var bestPatch = -1
	for ns, funcs := range r.funcs {
		b, have, ok := splitVersion(ns)
		if !ok || b != base || have.major != want.major || have.minor != want.minor || have.patch < want.patch {
			continue
		}
		if fn, ok := funcs[name]; ok && have.patch > bestPatch {
			best, bestPatch = fn, have.patch
		}
	}
	return best, best != nil
}

// Namespaces lists registered namespaces in order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.funcs))
}

// Functions lists the function names registered under namespace in order.
func (r *Registry) Functions(namespace string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.funcs[namespace]))
}

type semver struct {
	major, minor, patch int
}

func splitVersion(ns string) (string, semver, bool) {
	base, ver, ok := strings.Cut(ns, "@")
	if !ok {
		return "", semver{}, false
	}
	parts := strings.Split(ver, ".")
	if len(parts) != 3 {
		return "", semver{}, false
	}
	var v [3]int
	for i, p := range parts {
		if p == "" {
			return "", semver{}, false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return "", semver{}, false
			}
			v[i] = v[i]*10 + int(c-'0')
		}
	}
	return base, semver{v[0], v[1], v[2]}, true
}

// toKebabCase converts PascalCase to kebab-case, keeping acronyms whole:
// CreateTCPSocket -> create-tcp-socket.
func toKebabCase(s string) string {
	runes := []rune(s)
	var b strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// last capital of a run before lowercase begins the next word
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}

		if i > 0 {
			b.WriteByte('-')
		}
		for j := i; j < end; j++ {
			b.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return b.String()
}
