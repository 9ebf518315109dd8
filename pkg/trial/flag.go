package trial

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/licensekit/pkg/cookie"
)

// LocalFlag is the device-local "trial used" marker of an anonymous visitor.
type LocalFlag interface {
	Used(ctx context.Context) (bool, error)
	SetUsed(ctx context.Context, used bool) error
}

// Grant is implemented by local flags that also remember when the device
// started the trial anonymously, so the trial outlives the request that
// started it.
type Grant interface {
	GrantedAt(ctx context.Context) (time.Time, bool, error)
	SetGranted(ctx context.Context, at time.Time) error
}

// GrantedAt reads the anonymous grant of flag. Flags that do not implement
// Grant report none.
func GrantedAt(ctx context.Context, flag LocalFlag) (time.Time, bool, error) {
	g, ok := flag.(Grant)
	if !ok {
		return time.Time{}, false, nil
	}
	return g.GrantedAt(ctx)
}

// MemoryFlag is a LocalFlag held in process memory.
type MemoryFlag struct {
	mu      sync.RWMutex
	used    bool
	granted time.Time
}

// NewMemoryFlag returns a flag with the given initial value.
func NewMemoryFlag(used bool) *MemoryFlag {
	return &MemoryFlag{used: used}
}

func (f *MemoryFlag) Used(context.Context) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.used, nil
}

func (f *MemoryFlag) SetUsed(_ context.Context, used bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used = used
	f.granted = time.Time{}
	return nil
}

func (f *MemoryFlag) GrantedAt(context.Context) (time.Time, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.granted, !f.granted.IsZero(), nil
}

func (f *MemoryFlag) SetGranted(_ context.Context, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used = true
	f.granted = at
	return nil
}

// DefaultCookieName is the cookie holding the anonymous trial flag.
const DefaultCookieName = "lk_trial"

const (
	usedValue    = "used"
	grantedValue = "granted:"
)

// CookieFlag stores the flag in a signed cookie for the span of one request.
// Writes are visible to later reads within the same request.
type CookieFlag struct {
	cookies *cookie.Manager
	w       http.ResponseWriter
	r       *http.Request
	name    string

	mu      sync.Mutex
	written *string
}

// NewCookieFlag binds a flag to the request/response pair.
func NewCookieFlag(cookies *cookie.Manager, w http.ResponseWriter, r *http.Request, name string) *CookieFlag {
	if cookies == nil {
		panic("trial: cookie manager is required")
	}
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieFlag{cookies: cookies, w: w, r: r, name: name}
}

// Used reads the flag. A missing or tampered cookie counts as unused.
func (f *CookieFlag) Used(context.Context) (bool, error) {
	v, err := f.value()
	if err != nil {
		return false, err
	}
	return v == usedValue || strings.HasPrefix(v, grantedValue), nil
}

func (f *CookieFlag) SetUsed(_ context.Context, used bool) error {
	if used {
		f.write(usedValue)
	} else {
		f.write("")
	}
	return nil
}

// GrantedAt returns when the trial was started anonymously on this device.
func (f *CookieFlag) GrantedAt(context.Context) (time.Time, bool, error) {
	v, err := f.value()
	if err != nil {
		return time.Time{}, false, err
	}
	rest, ok := strings.CutPrefix(v, grantedValue)
	if !ok {
		return time.Time{}, false, nil
	}
	sec, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(sec, 0).UTC(), true, nil
}

// SetGranted marks the flag used and records the anonymous start time.
func (f *CookieFlag) SetGranted(_ context.Context, at time.Time) error {
	f.write(grantedValue + strconv.FormatInt(at.Unix(), 10))
	return nil
}

func (f *CookieFlag) value() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.written != nil {
		return *f.written, nil
	}

	v, err := f.cookies.GetSigned(f.r, f.name)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, cookie.ErrCookieNotFound),
		errors.Is(err, cookie.ErrInvalidSignature),
		errors.Is(err, cookie.ErrInvalidFormat):
		return "", nil
	default:
		return "", err
	}
}

func (f *CookieFlag) write(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v == "" {
		f.cookies.Delete(f.w, f.name)
	} else {
		f.cookies.SetSigned(f.w, f.name, v)
	}
	f.written = &v
}
