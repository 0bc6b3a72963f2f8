package view

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRenderLoginProducesHTML(t *testing.T) {
	svc, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	rec := httptest.NewRecorder()
	err = svc.RenderLogin(rec, LoginView{
		SiteName:         "Interaction Core",
		AntiForgeryToken: "af-token",
		LastUsername:     "alice@example.com",
	})
	if err != nil {
		t.Fatalf("RenderLogin failed: %v", err)
	}
	if rec.Code != 0 && rec.Code != 200 {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "alice@example.com") {
		t.Errorf("rendered login page does not contain the last username: %s", body)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestRenderConsentEscapesUntrustedScopes(t *testing.T) {
	svc, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	rec := httptest.NewRecorder()
	err = svc.RenderConsent(rec, ConsentView{
		ClientName: "<script>alert(1)</script>",
		Scopes:     []string{"openid"},
	})
	if err != nil {
		t.Fatalf("RenderConsent failed: %v", err)
	}
	body := rec.Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("html/template should have escaped the client name, found raw script tag")
	}
}

func TestRenderErrorIncludesMessage(t *testing.T) {
	svc, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	rec := httptest.NewRecorder()
	if err := svc.RenderError(rec, ErrorView{Message: "something broke"}); err != nil {
		t.Fatalf("RenderError failed: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "something broke") {
		t.Errorf("rendered error page does not contain the message: %s", rec.Body.String())
	}
}

func TestRenderLoggedOutIncludesFrontChannelLogoutURLs(t *testing.T) {
	svc, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	rec := httptest.NewRecorder()
	err = svc.RenderLoggedOut(rec, LoggedOutView{
		FrontChannelLogoutURLs: []string{"https://other-rp.example.com/session/end"},
	})
	if err != nil {
		t.Fatalf("RenderLoggedOut failed: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "other-rp.example.com") {
		t.Errorf("rendered logged-out page does not reference the front-channel logout URL: %s", rec.Body.String())
	}
}
