// Package locker provides an HTTP middleware which allows an HTTPHandler to be locked, returning 423 (locked)
package locker

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/stepperctl/generichttp"
)

// ManipulableLock can be locked, unlocked, and checked, and guards HTTP handlers
type ManipulableLock interface {
	Lock()
	Unlock()
	Locked() bool
	Check(http.Handler) http.Handler
}

// Inject adds a lock route to a generichttp.HTTPer which is used to manipulate the locker
func Inject(other generichttp.HTTPer, l ManipulableLock) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lock"}] = generichttp.GetBool(func() (bool, error) {
		return l.Locked(), nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/lock"}] = generichttp.SetBool(func(b bool) error {
		if b {
			l.Lock()
		} else {
			l.Unlock()
		}
		return nil
	})
}

// Locker is a type which behaves like a sync.Mutex without the blocking,
// and holds a list of routes to not protect
type Locker struct {
	isLocked atomic.Bool

	// DoNotProtect is a list of route table paths, e.g. "/devices", not to
	// apply the lock to.  Paths are compared exactly.
	DoNotProtect []string
}

// New returns a new Locker with DoNotProtect prepopulated with "/lock"
func New(doNotProtect ...string) *Locker {
	return &Locker{DoNotProtect: append([]string{"/lock"}, doNotProtect...)}
}

// Lock the locker
func (l *Locker) Lock() {
	l.isLocked.Store(true)
}

// Unlock the locker
func (l *Locker) Unlock() {
	l.isLocked.Store(false)
}

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	return l.isLocked.Load()
}

// Check is an HTTP middleware that returns http.StatusLocked if Locked() is true, otherwise passes down the line
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() {
			http.Error(w, "locked", http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Protects returns true if the route table path is guarded by the lock
func (l *Locker) Protects(path string) bool {
	for _, str := range l.DoNotProtect {
		if path == str {
			return false
		}
	}
	return true
}

// Bind registers every route of rt on r, with Check in front of the
// protected ones
func (l *Locker) Bind(rt generichttp.RouteTable, r chi.Router) {
	guarded := r.With(l.Check)
	for mp, fcn := range rt {
		if l.Protects(mp.Path) {
			guarded.MethodFunc(mp.Method, mp.Path, fcn)
		} else {
			r.MethodFunc(mp.Method, mp.Path, fcn)
		}
	}
}
