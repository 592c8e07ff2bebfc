package webserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLambdaHandlerInvokesOnce tests that the adapter calls the bound
// operation exactly once per request
func TestLambdaHandlerInvokesOnce(t *testing.T) {
	calls := 0
	handler := NewLambdaHandler(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestLambdaHandlerBoundArguments tests that closure-bound context reaches
// the operation
func TestLambdaHandlerBoundArguments(t *testing.T) {
	makeHandler := func(remove bool) *LambdaHandler {
		return NewLambdaHandler(func(w http.ResponseWriter, r *http.Request) {
			if remove {
				w.WriteHeader(http.StatusGone)
			} else {
				w.WriteHeader(http.StatusCreated)
			}
		})
	}

	rec := httptest.NewRecorder()
	makeHandler(false).ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	makeHandler(true).ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	assert.Equal(t, http.StatusGone, rec.Code)
}

// TestLambdaHandlerPanicMapsTo500 tests the adapter's generic error path
func TestLambdaHandlerPanicMapsTo500(t *testing.T) {
	handler := NewLambdaHandler(func(w http.ResponseWriter, r *http.Request) {
		panic("operation failure")
	})

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// TestLambdaHandlerPanicAfterWrite tests that an already-written response is
// left alone
func TestLambdaHandlerPanicAfterWrite(t *testing.T) {
	handler := NewLambdaHandler(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late failure")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

// TestBadRequestShape tests the shared 400 helper payload
func TestBadRequestShape(t *testing.T) {
	rec := httptest.NewRecorder()
	badRequest(rec, "missing dir")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"result":"error","reason":"missing dir"}`, rec.Body.String())
}

// TestRedirectHelper tests the 302 helper
func TestRedirectHelper(t *testing.T) {
	rec := httptest.NewRecorder()
	redirect(rec, httptest.NewRequest("GET", "/", nil), "/index.html")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/index.html", rec.Header().Get("Location"))
}
