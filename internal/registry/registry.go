// Package registry is the process-wide session-code -> Session map (spec
// §5's second singleton, alongside Hub and Clock): it owns join-code
// generation/uniqueness and the predicate query behind the quiz-edit lock
// from spec §4.2.
package registry

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"

	"github.com/Seednode/quizhost/internal/apierr"
	"github.com/Seednode/quizhost/internal/session"
	"github.com/Seednode/quizhost/internal/store"
)

// codeAlphabet excludes the visually-ambiguous O/0, I/1, L characters per
// spec §6's join-code format.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

// Registry maps live session codes to their Session actor.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	ended    map[string]struct{} // codes passed to Release; NewCode does not consult it
	st       store.Store
}

func New(st store.Store) *Registry {
	return &Registry{
		sessions: make(map[string]*session.Session),
		ended:    make(map[string]struct{}),
		st:       st,
	}
}

// NewCode generates a join code not already in use by a live session. A
// code becomes available again as soon as Release is called for it;
// Orchestrator.EndSession calls Release right away, so no reuse grace
// period is applied.
func (r *Registry) NewCode() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < 100; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.sessions[code]; !taken {
			return code, nil
		}
	}
	return "", apierr.New(apierr.StoreFatal, "registry: exhausted join-code attempts")
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Put registers a freshly-created Session under its code.
func (r *Registry) Put(code string, s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[code] = s
	delete(r.ended, code)
}

// Get returns the Session for a code, or ok=false if none is live.
func (r *Registry) Get(code string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Release removes a code's live Session, making the code available to
// NewCode at once, and records it in ended.
func (r *Registry) Release(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
	r.ended[code] = struct{}{}
}

// QuizLocked implements the quiz-edit-lock predicate from spec §4.2: a
// quiz's authoring surface is locked while any non-archived session
// references it. It delegates to Store rather than scanning in-memory
// Sessions, since locked status must survive a process restart.
func (r *Registry) QuizLocked(ctx context.Context, quizID string) (bool, error) {
	return r.st.HasNonArchivedSession(ctx, quizID)
}
