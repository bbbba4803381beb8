package api_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/charlesng35/linkcard/internal/handlers/testutil"
)

func serve(env *testutil.Env, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.Router.ServeHTTP(rec, req)
	return rec
}
