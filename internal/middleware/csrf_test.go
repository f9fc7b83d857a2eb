package middleware

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func csrfHandler(called *bool, token *string) http.Handler {
	return NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if token != nil {
			*token = CSRFToken(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRFMiddleware_SafeMethods_PassThroughWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(method, "/", nil)
			w := httptest.NewRecorder()
			csrfHandler(&called, nil).ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if !called {
				t.Error("handler should have been called")
			}
		})
	}
}

func TestCSRFMiddleware_GET_SetsCookieAndContextToken(t *testing.T) {
	called := false
	var token string
	req := httptest.NewRequest(http.MethodGet, "/add", nil)
	w := httptest.NewRecorder()
	csrfHandler(&called, &token).ServeHTTP(w, req)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected csrf_token cookie")
	}
	if cookie.HttpOnly {
		t.Error("csrf cookie must be readable by scripts")
	}
	if len(cookie.Value) != 64 {
		t.Errorf("token length = %d, want 64", len(cookie.Value))
	}
	if token != cookie.Value {
		t.Errorf("context token = %q, want cookie value %q", token, cookie.Value)
	}
}

func TestCSRFMiddleware_GET_ExistingCookie_DoesNotReplace(t *testing.T) {
	called := false
	var token string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	csrfHandler(&called, &token).ServeHTTP(w, req)

	if len(w.Result().Cookies()) != 0 {
		t.Error("expected no new cookie")
	}
	if token != "existing" {
		t.Errorf("context token = %q, want %q", token, "existing")
	}
}

func TestCSRFMiddleware_StateChanging_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
	}{
		{name: "no cookie", header: "tok"},
		{name: "no submitted token", cookie: "tok"},
		{name: "mismatch", cookie: "tok", header: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(http.MethodPost, "/mark_attendance", strings.NewReader(`{"employee_id":1}`))
			req.Header.Set("Content-Type", "application/json")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			csrfHandler(&called, nil).ServeHTTP(w, req)

			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
			}
			if called {
				t.Error("handler should not have been called")
			}
		})
	}
}

func TestCSRFMiddleware_HeaderToken_PassesThrough(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(method, "/mark_attendance", nil)
			req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
			req.Header.Set(csrfHeaderName, "tok")
			w := httptest.NewRecorder()
			csrfHandler(&called, nil).ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
		})
	}
}

func TestCSRFMiddleware_URLEncodedFormField_PassesThrough(t *testing.T) {
	called := false
	form := url.Values{CSRFFormField: {"tok"}, "username": {"admin"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
	w := httptest.NewRecorder()
	csrfHandler(&called, nil).ServeHTTP(w, req)

	if w.Code != http.StatusOK || !called {
		t.Errorf("status = %d called = %v, want 200 and called", w.Code, called)
	}
}

func TestCSRFMiddleware_MultipartFormField_PassesThrough(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField(CSRFFormField, "tok")
	mw.WriteField("name", "Ava")
	mw.Close()

	var gotName string
	handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotName = r.FormValue("name")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/add", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotName != "Ava" {
		t.Errorf("form field name = %q, want %q", gotName, "Ava")
	}
}
