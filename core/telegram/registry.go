package telegram

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/insurebot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry maps slash commands and callback keys to handlers.
//
// Callback lookup tries the exact key first, then the longest registered
// prefix, then the not-found handler.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]commands.Command
	callbacks map[string]tele.HandlerFunc
	prefixes  []prefixRoute
	notFound  tele.HandlerFunc
}

type prefixRoute struct {
	prefix string
	h      tele.HandlerFunc
}

// NewRegistry returns a registry whose not-found handler answers the
// callback with "Unsupported action".
func NewRegistry() *Registry {
	return &Registry{
		commands:  map[string]commands.Command{},
		callbacks: map[string]tele.HandlerFunc{},
		notFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

// RegisterCommand adds cmd under name, which must start with "/".
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return fmt.Errorf("telegram: command %q must start with /", name)
	case cmd.Handler == nil || cmd.Description == "":
		return fmt.Errorf("telegram: command %s needs a handler and a description", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[name]; dup {
		return fmt.Errorf("telegram: command %s already registered", name)
	}
	r.commands[name] = cmd
	return nil
}

// Command resolves name or one of its aliases, with or without the slash,
// to the registered command name.
func (r *Registry) Command(name string) (string, commands.Command, bool) {
	name = "/" + strings.TrimPrefix(name, "/")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if "/"+strings.TrimPrefix(alias, "/") == name {
				return key, cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// CommandNames returns the registered command names, sorted.
func (r *Registry) CommandNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.commands))
}

// Menu returns the visible commands for the Telegram command menu.
func (r *Registry) Menu() []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []tele.Command
	for name, cmd := range r.commands {
		if !cmd.Hidden {
			out = append(out, tele.Command{Text: name, Description: cmd.Description})
		}
	}
	slices.SortFunc(out, func(a, b tele.Command) int { return cmp.Compare(a.Text, b.Text) })
	return out
}

// RegisterCallback binds an exact callback key.
func (r *Registry) RegisterCallback(key string, h tele.HandlerFunc) error {
	if key == "" || h == nil {
		return errors.New("telegram: callback needs a key and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return fmt.Errorf("telegram: callback %s already registered", key)
	}
	r.callbacks[key] = h
	return nil
}

// RegisterCallbackPrefix binds every key starting with prefix.
func (r *Registry) RegisterCallbackPrefix(prefix string, h tele.HandlerFunc) error {
	if prefix == "" || h == nil {
		return errors.New("telegram: callback prefix needs a prefix and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.ContainsFunc(r.prefixes, func(p prefixRoute) bool { return p.prefix == prefix }) {
		return fmt.Errorf("telegram: callback prefix %s already registered", prefix)
	}
	r.prefixes = append(r.prefixes, prefixRoute{prefix: prefix, h: h})
	slices.SortStableFunc(r.prefixes, func(a, b prefixRoute) int { return len(b.prefix) - len(a.prefix) })
	return nil
}

// Callback returns the handler for key.
func (r *Registry) Callback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.callbacks[key]; ok {
		return h, true
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(key, p.prefix) {
			return p.h, true
		}
	}
	return nil, false
}

// CallbackKeys lists exact keys and prefixes (suffixed with "*"), sorted.
func (r *Registry) CallbackKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := slices.Collect(maps.Keys(r.callbacks))
	for _, p := range r.prefixes {
		keys = append(keys, p.prefix+"*")
	}
	slices.Sort(keys)
	return keys
}

// SetCallbackNotFound replaces the handler for unknown callback keys.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.notFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown callback keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notFound
}
