package injector

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Patcher reads and patches memory. The zero value is not usable, create one
// with New.
type Patcher struct {
	translator Translator
	protector  Protector
	unprotect  bool
	logger     *slog.Logger

	// Guards hooks.
	mu    sync.Mutex
	hooks map[uintptr]*hook
}

type Option func(*Patcher)

// WithTranslator sets the translator used for Translated addresses. A nil
// translator means no translation.
func WithTranslator(t Translator) Option {
	return func(p *Patcher) {
		p.translator = t
	}
}

// WithProtector replaces the OS protector.
func WithProtector(pr Protector) Option {
	return func(p *Patcher) {
		p.protector = pr
	}
}

// WithUnprotect sets whether BranchDestination, MakeJMP and the other
// instruction level operations lift page protection around their accesses.
// It defaults to true.
func WithUnprotect(unprotect bool) Option {
	return func(p *Patcher) {
		p.unprotect = unprotect
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Patcher) {
		p.logger = l
	}
}

func New(opts ...Option) *Patcher {
	p := &Patcher{
		protector: SystemProtector(),
		unprotect: true,
		hooks:     map[uintptr]*hook{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

var defaultPatcher atomic.Pointer[Patcher]

func init() {
	defaultPatcher.Store(New())
}

// Default returns the process-wide Patcher used by the package level
// functions.
func Default() *Patcher {
	return defaultPatcher.Load()
}

// SetDefault replaces the process-wide Patcher. Call it once at startup,
// typically to install a Translator.
func SetDefault(p *Patcher) {
	if p == nil {
		p = New()
	}
	defaultPatcher.Store(p)
}

// BranchDestination calls BranchDestination on the default Patcher.
func BranchDestination(at Addr) (Addr, error) {
	return Default().BranchDestination(at)
}

// MakeJMP calls MakeJMP on the default Patcher.
func MakeJMP(at, dest Addr) (Addr, error) {
	return Default().MakeJMP(at, dest)
}
