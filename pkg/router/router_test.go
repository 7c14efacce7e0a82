package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("not found")

func Test_ErrorMapper(t *testing.T) {
	router := New()
	router.RegisterErrorMapper(errNotFound, func(err error) Error {
		return NewJsonError(http.StatusNotFound, errNotFound.Error())
	})

	tcs := []struct {
		name string
		err  error
		exp  Error
	}{
		{
			name: "registered sentinel",
			err:  errNotFound,
			exp:  NewJsonError(http.StatusNotFound, "not found"),
		},
		{
			name: "wrapped sentinel",
			err:  fmt.Errorf("GetRoom: %w", errNotFound),
			exp:  NewJsonError(http.StatusNotFound, "not found"),
		},
		{
			name: "unmapped error",
			err:  errors.New("random error"),
			exp:  router.defaultError,
		},
		{
			name: "api error",
			err:  NewJsonError(http.StatusBadRequest, "API Error"),
			exp:  NewJsonError(http.StatusBadRequest, "API Error"),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, router.mapError(tc.err))
		})
	}
}

func TestHandlerError(t *testing.T) {
	r := New()
	r.RegisterErrorMapper(errNotFound, func(err error) Error {
		return NewJsonError(http.StatusNotFound, err.Error())
	})
	r.Route("/api", func(r *Router) {
		r.Get("/missing", func(w http.ResponseWriter, r *http.Request) error {
			return fmt.Errorf("lookup: %w", errNotFound)
		})
		r.Get("/ok", func(w http.ResponseWriter, r *http.Request) error {
			return JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/missing")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	var body JsonError
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "lookup: not found", body.Err)

	res2, err := http.Get(srv.URL + "/api/ok")
	require.NoError(t, err)
	defer res2.Body.Close()
	assert.Equal(t, http.StatusOK, res2.StatusCode)
	assert.Equal(t, "application/json", res2.Header.Get("Content-Type"))
}

func TestErrorHelpers(t *testing.T) {
	assert.Equal(t, NewJsonError(http.StatusNotFound, "room not found"), NotFound("room not found"))
	assert.Equal(t, http.StatusConflict, Conflict("taken").StatusCode())
	assert.True(t, Forbidden("no").clientError())
	assert.False(t, DefaultError.clientError())
}
