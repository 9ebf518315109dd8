package cookie_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/cookie"
)

const (
	secretA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	secretB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// roundTrip copies the cookies written to rec into a fresh request.
func roundTrip(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := cookie.New(nil)
	assert.ErrorIs(t, err, cookie.ErrNoSecret)

	_, err = cookie.New([]string{"", ""})
	assert.ErrorIs(t, err, cookie.ErrNoSecret)

	_, err = cookie.New([]string{"short"})
	assert.ErrorIs(t, err, cookie.ErrSecretTooShort)

	_, err = cookie.New([]string{secretA})
	assert.NoError(t, err)
}

func TestSigned(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		m, err := cookie.New([]string{secretA})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		m.SetSigned(rec, "trial", "used")

		v, err := m.GetSigned(roundTrip(rec), "trial")
		require.NoError(t, err)
		assert.Equal(t, "used", v)
	})

	t.Run("tampered value", func(t *testing.T) {
		t.Parallel()
		m, _ := cookie.New([]string{secretA})

		rec := httptest.NewRecorder()
		m.SetSigned(rec, "trial", "used")
		c := rec.Result().Cookies()[0]
		_, sig, _ := strings.Cut(c.Value, ".")

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "trial", Value: "dW51c2Vk." + sig})
		_, err := m.GetSigned(req, "trial")
		assert.ErrorIs(t, err, cookie.ErrInvalidSignature)
	})

	t.Run("value bound to name", func(t *testing.T) {
		t.Parallel()
		m, _ := cookie.New([]string{secretA})

		rec := httptest.NewRecorder()
		m.SetSigned(rec, "other", "used")
		c := rec.Result().Cookies()[0]

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "trial", Value: c.Value})
		_, err := m.GetSigned(req, "trial")
		assert.ErrorIs(t, err, cookie.ErrInvalidSignature)
	})

	t.Run("rotation keeps old cookies valid", func(t *testing.T) {
		t.Parallel()
		old, _ := cookie.New([]string{secretA})
		rotated, _ := cookie.New([]string{secretB, secretA})

		rec := httptest.NewRecorder()
		old.SetSigned(rec, "trial", "used")

		v, err := rotated.GetSigned(roundTrip(rec), "trial")
		require.NoError(t, err)
		assert.Equal(t, "used", v)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		m, _ := cookie.New([]string{secretA})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "trial", Value: "no-separator"})
		_, err := m.GetSigned(req, "trial")
		assert.ErrorIs(t, err, cookie.ErrInvalidFormat)
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		m, _ := cookie.New([]string{secretA})
		_, err := m.GetSigned(httptest.NewRequest(http.MethodGet, "/", nil), "trial")
		assert.ErrorIs(t, err, cookie.ErrCookieNotFound)
	})
}

func TestAttributes(t *testing.T) {
	t.Parallel()

	m, err := cookie.NewFromConfig(cookie.Config{
		Secrets: " " + secretA + " , ",
		Path:    "/billing",
		MaxAge:  3600,
		Secure:  true,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Set(rec, "plain", "v")
	c := rec.Result().Cookies()[0]
	assert.Equal(t, "/billing", c.Path)
	assert.Equal(t, 3600, c.MaxAge)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	rec = httptest.NewRecorder()
	m.Delete(rec, "plain")
	c = rec.Result().Cookies()[0]
	assert.Equal(t, -1, c.MaxAge)
	assert.Empty(t, c.Value)
}
