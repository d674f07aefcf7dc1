// SPDX-License-Identifier: MIT

package auth

import (
	"net/http/httptest"
	"testing"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "bearer header",
			headers: map[string]string{"Authorization": "Bearer secret-1"},
			want:    "secret-1",
		},
		{
			name:    "bearer header with spaces",
			headers: map[string]string{"Authorization": "Bearer   secret-1  "},
			want:    "secret-1",
		},
		{
			name:    "legacy header",
			headers: map[string]string{"X-API-Token": "secret-2"},
			want:    "secret-2",
		},
		{
			name: "bearer beats legacy header",
			headers: map[string]string{
				"Authorization": "Bearer first",
				"X-API-Token":   "second",
			},
			want: "first",
		},
		{
			name:    "basic auth is ignored",
			headers: map[string]string{"Authorization": "Basic Zm9vOmJhcg=="},
			want:    "",
		},
		{
			name:    "no credentials",
			headers: map[string]string{},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/buffer", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ExtractToken(r); got != tt.want {
				t.Errorf("ExtractToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthorizeToken(t *testing.T) {
	if AuthorizeToken("", "expected") {
		t.Error("empty token must not authorize")
	}
	if AuthorizeToken("anything", "") {
		t.Error("empty expected token must fail closed")
	}
	if AuthorizeToken("wrong", "expected") {
		t.Error("mismatched token must not authorize")
	}
	if !AuthorizeToken("expected", "expected") {
		t.Error("matching token must authorize")
	}
}
