package pipeline

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Rejection describes why a short-circuit run halted
type Rejection struct {
	Index  int
	Stage  string
	Reason string
}

// Context holds the request and response state of a single pipeline run.
// The request is read-only; the response only grows.
type Context struct {
	id      string
	request string

	mu        sync.RWMutex
	values    map[string]interface{}
	fragments []string
	rejection *Rejection
	reason    string
	sealed    bool

	claimed atomic.Bool
}

// NewContext creates a new run context for the given request
func NewContext(request string) *Context {
	return &Context{
		id:      uuid.NewString(),
		request: request,
		values:  make(map[string]interface{}),
	}
}

// NewContextWithValues creates a run context seeded with structured request fields
func NewContextWithValues(request string, values map[string]interface{}) *Context {
	rc := NewContext(request)
	for k, v := range values {
		rc.values[k] = v
	}
	return rc
}

// ID returns the unique run identifier
func (rc *Context) ID() string {
	return rc.id
}

// Request returns the request payload
func (rc *Context) Request() string {
	return rc.request
}

// Set stores a per-run value
func (rc *Context) Set(key string, value interface{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.values[key] = value
}

// Get retrieves a per-run value
func (rc *Context) Get(key string) (interface{}, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	value, exists := rc.values[key]
	return value, exists
}

// GetString retrieves a string value
func (rc *Context) GetString(key string) (string, bool) {
	value, exists := rc.Get(key)
	if !exists {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// GetInt retrieves an int value
func (rc *Context) GetInt(key string) (int, bool) {
	value, exists := rc.Get(key)
	if !exists {
		return 0, false
	}
	i, ok := value.(int)
	return i, ok
}

// Delete removes a per-run value
func (rc *Context) Delete(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.values, key)
}

// Append adds fragments to the response. Appends after a stage fault are dropped.
func (rc *Context) Append(fragments ...string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.sealed {
		return
	}
	rc.fragments = append(rc.fragments, fragments...)
}

// Fragments returns a copy of the response fragments in append order
func (rc *Context) Fragments() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]string, len(rc.fragments))
	copy(out, rc.fragments)
	return out
}

// Response returns the response fragments joined by newlines
func (rc *Context) Response() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return strings.Join(rc.fragments, "\n")
}

// Reject records a rejection reason and returns false, for use as
// `return rc.Reject("..."), nil` inside a filter.
func (rc *Context) Reject(reason string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.reason = reason
	return false
}

// Rejection returns the rejection recorded by a short-circuit run
func (rc *Context) Rejection() (*Rejection, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.rejection == nil {
		return nil, false
	}
	r := *rc.rejection
	return &r, true
}

// Sealed reports whether a stage fault has closed the response
func (rc *Context) Sealed() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.sealed
}

func (rc *Context) claim() bool {
	return rc.claimed.CompareAndSwap(false, true)
}

func (rc *Context) seal() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.sealed = true
}

// clearReason drops a reason left by a nested filter whose enclosing stage passed
func (rc *Context) clearReason() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.reason = ""
}

func (rc *Context) reject(index int, stage string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.rejection = &Rejection{
		Index:  index,
		Stage:  stage,
		Reason: rc.reason,
	}
}
