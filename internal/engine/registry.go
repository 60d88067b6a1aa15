package engine

import (
	"cmp"
	"slices"

	"github.com/devpilot-ai/devpilot/internal/csync"
)

// Registry is the in-memory session table shared by all engines. It is not
// persisted: a restart forgets every session.
type Registry struct {
	sessions *csync.Map[string, *Session]
}

func NewRegistry() *Registry {
	return &Registry{sessions: csync.NewMap[string, *Session]()}
}

func (r *Registry) Get(id string) (*Session, bool) {
	return r.sessions.Get(id)
}

func (r *Registry) Set(s *Session) {
	r.sessions.Set(s.ID, s)
}

func (r *Registry) Delete(id string) {
	r.sessions.Del(id)
}

func (r *Registry) Len() int {
	return r.sessions.Len()
}

// List returns the sessions ordered by creation time.
func (r *Registry) List() []*Session {
	list := slices.Collect(r.sessions.Seq())
	slices.SortFunc(list, func(a, b *Session) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return list
}
