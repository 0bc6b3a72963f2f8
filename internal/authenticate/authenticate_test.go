package authenticate

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/claims"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/config"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/cookie"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/events"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/localization"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/model"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/view"
)

type fakeClients struct {
	clients map[string]*store.Client
}

func (f *fakeClients) GetClient(clientID string) (*store.Client, error) {
	return f.clients[clientID], nil
}

type fakeUsers struct {
	preAuth      *model.AuthenticateResult
	localResult  *model.AuthenticateResult
	externalFunc func(identity model.ExternalIdentity) *model.AuthenticateResult
	signedOut    []string
}

func (f *fakeUsers) PreAuthenticate(msg *model.SignInMessage) *model.AuthenticateResult {
	return f.preAuth
}
func (f *fakeUsers) AuthenticateLocal(username, password string) *model.AuthenticateResult {
	return f.localResult
}
func (f *fakeUsers) AuthenticateExternal(identity model.ExternalIdentity) *model.AuthenticateResult {
	return f.externalFunc(identity)
}
func (f *fakeUsers) SignOut(subject string) error {
	f.signedOut = append(f.signedOut, subject)
	return nil
}

func testController(t *testing.T, users *fakeUsers, clients *fakeClients) *Controller {
	t.Helper()
	signInCodec := cookie.NewCodec("test-secret", time.Minute)
	signOutCodec := cookie.NewCodec("test-secret", time.Minute)
	authCodec := cookie.NewCodec("test-secret", 24*time.Hour)
	lastUsernameCodec := cookie.NewCodec("test-secret", 365*24*time.Hour)
	viewSvc, err := view.New()
	if err != nil {
		t.Fatalf("failed to load views: %v", err)
	}
	cfg := &config.Config{
		SiteName: "Interaction Core",
		Authentication: config.AuthenticationOptions{
			EnableLocalLogin: true,
			CookieOptions:    config.CookieOptions{AllowRememberMe: true},
		},
	}
	return &Controller{
		BaseURL:      "https://issuer.example.com",
		Cfg:          cfg,
		Clients:      clients,
		Users:        users,
		SignIn:       cookie.NewMessageCookie[model.SignInMessage]("oidc_signin", signInCodec, time.Minute, false),
		SignOut:      cookie.NewMessageCookie[model.SignOutMessage]("oidc_signout", signOutCodec, time.Minute, false),
		Auth:         cookie.NewAuthCookieManager(authCodec, config.CookieOptions{AllowRememberMe: true}, false),
		LastUsername: cookie.NewLastUsernameCookie(lastUsernameCodec, false),
		View:         viewSvc,
		Loc:          localization.New(nil),
		Events:       events.New(config.EventsOptions{RaiseSuccessEvents: true, RaiseFailureEvents: true}),
	}
}

func writeSignInMessage(t *testing.T, c *Controller, msg model.SignInMessage) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := c.SignIn.Write(rec, msg.ID, msg); err != nil {
		t.Fatalf("failed to write signin message: %v", err)
	}
	return rec.Result().Cookies()
}

func TestLoginGetRendersFormWhenNoSilentSSO(t *testing.T) {
	users := &fakeUsers{preAuth: nil}
	c := testController(t, users, &fakeClients{})
	msg := model.SignInMessage{ID: "signin-1", ReturnURL: "https://issuer.example.com/connect/authorize"}
	cookies := writeSignInMessage(t, c, msg)

	req := httptest.NewRequest(http.MethodGet, "/login?signin=signin-1", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Login(rec, req)

	if rec.Code != 200 && rec.Code != 0 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Sign in") {
		t.Errorf("expected the login form to be rendered, got: %s", rec.Body.String())
	}
}

func TestLoginGetCompletesSignInOnSilentSSO(t *testing.T) {
	users := &fakeUsers{preAuth: &model.AuthenticateResult{
		Kind:             model.AuthenticateResultFullSignIn,
		Subject:          "user-1",
		IdentityProvider: "local",
		AuthTime:         time.Now(),
	}}
	c := testController(t, users, &fakeClients{})
	msg := model.SignInMessage{ID: "signin-1", ReturnURL: "https://issuer.example.com/connect/authorize"}
	cookies := writeSignInMessage(t, c, msg)

	req := httptest.NewRequest(http.MethodGet, "/login?signin=signin-1", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Login(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 (silent SSO should redirect straight through)", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != msg.ReturnURL {
		t.Errorf("Location = %q, want %q", loc, msg.ReturnURL)
	}
}

func TestLoginGetExpiredSignInMessageRendersError(t *testing.T) {
	c := testController(t, &fakeUsers{}, &fakeClients{})

	req := httptest.NewRequest(http.MethodGet, "/login?signin=unknown", nil)
	rec := httptest.NewRecorder()
	c.Login(rec, req)

	if !strings.Contains(rec.Body.String(), "expired") {
		t.Errorf("expected the expiry error message, got: %s", rec.Body.String())
	}
}

func TestLoginPostSuccessRedirectsAndIssuesCookie(t *testing.T) {
	users := &fakeUsers{localResult: &model.AuthenticateResult{
		Kind:             model.AuthenticateResultFullSignIn,
		Subject:          "user-1",
		IdentityProvider: "local",
		AuthTime:         time.Now(),
	}}
	c := testController(t, users, &fakeClients{})
	msg := model.SignInMessage{ID: "signin-1", ReturnURL: "https://issuer.example.com/connect/authorize"}
	cookies := writeSignInMessage(t, c, msg)

	form := url.Values{"username": {"alice@example.com"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/login?signin=signin-1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Login(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != msg.ReturnURL {
		t.Errorf("Location = %q, want %q", loc, msg.ReturnURL)
	}

	foundPrimary := false
	for _, ck := range rec.Result().Cookies() {
		if strings.HasPrefix(ck.Name, "oidc_auth.primary") {
			foundPrimary = true
		}
	}
	if !foundPrimary {
		t.Error("expected a primary authentication cookie to be issued")
	}
}

func TestLoginPostInvalidCredentialsRerendersForm(t *testing.T) {
	users := &fakeUsers{localResult: &model.AuthenticateResult{Kind: model.AuthenticateResultError, ErrorMessage: "invalid_credentials"}}
	c := testController(t, users, &fakeClients{})
	msg := model.SignInMessage{ID: "signin-1", ReturnURL: "https://issuer.example.com/connect/authorize"}
	cookies := writeSignInMessage(t, c, msg)

	form := url.Values{"username": {"alice@example.com"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login?signin=signin-1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Login(rec, req)

	if rec.Code == http.StatusFound {
		t.Fatal("invalid credentials must not redirect")
	}
	if !strings.Contains(rec.Body.String(), "Incorrect username or password") {
		t.Errorf("expected the invalid-credentials message, got: %s", rec.Body.String())
	}
}

func TestLoginPostDisabledWhenLocalLoginOff(t *testing.T) {
	c := testController(t, &fakeUsers{}, &fakeClients{})
	c.Cfg.Authentication.EnableLocalLogin = false
	msg := model.SignInMessage{ID: "signin-1", ReturnURL: "https://issuer.example.com/connect/authorize"}
	cookies := writeSignInMessage(t, c, msg)

	req := httptest.NewRequest(http.MethodPost, "/login?signin=signin-1", strings.NewReader("username=a&password=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Login(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405 when local login is disabled", rec.Code)
	}
}

func TestExternalRejectsDisallowedProvider(t *testing.T) {
	clients := &fakeClients{clients: map[string]*store.Client{
		"client-1": {ID: "client-1", ParsedIdPRestrictions: []string{"local"}},
	}}
	c := testController(t, &fakeUsers{}, clients)
	msg := model.SignInMessage{ID: "signin-1", ClientID: "client-1", ReturnURL: "https://issuer.example.com/connect/authorize"}
	cookies := writeSignInMessage(t, c, msg)

	req := httptest.NewRequest(http.MethodGet, "/external?signin=signin-1&provider=google", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.External(rec, req)

	if rec.Code == http.StatusFound {
		t.Fatal("a disallowed provider must not redirect to the callback")
	}
}

func TestExternalRedirectsToCallbackForAllowedProvider(t *testing.T) {
	clients := &fakeClients{clients: map[string]*store.Client{
		"client-1": {ID: "client-1"},
	}}
	c := testController(t, &fakeUsers{}, clients)
	msg := model.SignInMessage{ID: "signin-1", ClientID: "client-1", ReturnURL: "https://issuer.example.com/connect/authorize"}
	cookies := writeSignInMessage(t, c, msg)

	req := httptest.NewRequest(http.MethodGet, "/external?signin=signin-1&provider=google", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.External(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.Contains(loc, "/callback") || !strings.Contains(loc, "provider=google") {
		t.Errorf("Location = %q, want a /callback redirect carrying provider=google", loc)
	}
}

func TestCallbackCompletesExternalSignIn(t *testing.T) {
	users := &fakeUsers{externalFunc: func(identity model.ExternalIdentity) *model.AuthenticateResult {
		return &model.AuthenticateResult{
			Kind:             model.AuthenticateResultFullSignIn,
			Subject:          "google:123",
			IdentityProvider: identity.Provider,
			AuthTime:         time.Now(),
		}
	}}
	c := testController(t, users, &fakeClients{})
	msg := model.SignInMessage{ID: "signin-1", ReturnURL: "https://issuer.example.com/connect/authorize"}
	cookies := writeSignInMessage(t, c, msg)

	req := httptest.NewRequest(http.MethodGet, "/callback?signin=signin-1&provider=google&external_id=123", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Callback(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	foundPrimary := false
	for _, ck := range rec.Result().Cookies() {
		if strings.HasPrefix(ck.Name, "oidc_auth.primary") {
			foundPrimary = true
		}
	}
	if !foundPrimary {
		t.Error("expected a primary authentication cookie to be issued for a completed external sign-in")
	}
}

func TestResumePromotesPartialSignInOnMatchingID(t *testing.T) {
	c := testController(t, &fakeUsers{}, &fakeClients{})

	issueRec := httptest.NewRecorder()
	if err := c.Auth.Issue(issueRec, cookie.SchemePartial, cookie.AuthPayload{
		Subject:          "resume-token-1",
		IdentityProvider: "local",
		AuthTime:         time.Now(),
		Claims: []claims.Claim{
			{Type: claims.TypePartialLoginReturnURL, Value: "https://issuer.example.com/connect/authorize"},
			{Type: claims.TypePartialLoginResumeID, Value: "resume-token-1"},
		},
	}, nil); err != nil {
		t.Fatalf("unexpected error issuing partial cookie: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/resume?resume=resume-token-1", nil)
	for _, ck := range issueRec.Result().Cookies() {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Resume(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://issuer.example.com/connect/authorize" {
		t.Errorf("Location = %q, want the stored return URL", loc)
	}

	foundPrimary, clearedPartial := false, false
	for _, ck := range rec.Result().Cookies() {
		if strings.HasPrefix(ck.Name, "oidc_auth.primary") {
			foundPrimary = true
		}
		if strings.HasPrefix(ck.Name, "oidc_auth.partial") && ck.MaxAge < 0 {
			clearedPartial = true
		}
	}
	if !foundPrimary {
		t.Error("expected resume to promote the partial cookie to a primary one")
	}
	if !clearedPartial {
		t.Error("expected resume to clear the partial cookie")
	}
}

func TestResumeRejectsMismatchedID(t *testing.T) {
	c := testController(t, &fakeUsers{}, &fakeClients{})

	issueRec := httptest.NewRecorder()
	c.Auth.Issue(issueRec, cookie.SchemePartial, cookie.AuthPayload{
		Subject:          "resume-token-1",
		IdentityProvider: "local",
		AuthTime:         time.Now(),
		Claims: []claims.Claim{
			{Type: claims.TypePartialLoginResumeID, Value: "resume-token-1"},
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/resume?resume=some-other-id", nil)
	for _, ck := range issueRec.Result().Cookies() {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Resume(rec, req)

	if rec.Code == http.StatusFound {
		t.Fatal("a mismatched resume id must not promote the partial sign-in")
	}
}

func TestResumeReInvokesAuthenticateExternalForUnmappedIdentity(t *testing.T) {
	var seen model.ExternalIdentity
	users := &fakeUsers{externalFunc: func(identity model.ExternalIdentity) *model.AuthenticateResult {
		seen = identity
		return &model.AuthenticateResult{
			Kind:             model.AuthenticateResultFullSignIn,
			Subject:          "user-99",
			IdentityProvider: identity.Provider,
			AuthTime:         time.Now(),
		}
	}}
	c := testController(t, users, &fakeClients{})

	issueRec := httptest.NewRecorder()
	if err := c.Auth.Issue(issueRec, cookie.SchemePartial, cookie.AuthPayload{
		Subject:          "google:1234567890",
		IdentityProvider: "google",
		AuthTime:         time.Now(),
		Claims: []claims.Claim{
			{Type: claims.TypePartialLoginReturnURL, Value: "https://issuer.example.com/connect/authorize"},
			{Type: claims.TypePartialLoginResumeID, Value: "resume-token-1"},
			{Type: claims.TypeExternalProviderUserID, Value: "1234567890", Issuer: "google"},
			{Type: "email", Value: "new@example.com", Issuer: "google"},
		},
	}, nil); err != nil {
		t.Fatalf("unexpected error issuing partial cookie: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/resume?resume=resume-token-1", nil)
	for _, ck := range issueRec.Result().Cookies() {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Resume(rec, req)

	if seen.Provider != "google" || seen.ProviderID != "1234567890" {
		t.Fatalf("reconstructed identity = %+v, want provider google / id 1234567890", seen)
	}
	if seen.Claims["email"] != "new@example.com" {
		t.Errorf("reconstructed identity claims = %+v, want email new@example.com preserved", seen.Claims)
	}

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://issuer.example.com/connect/authorize" {
		t.Errorf("Location = %q, want the stored return URL", loc)
	}

	foundPrimary := false
	for _, ck := range rec.Result().Cookies() {
		if strings.HasPrefix(ck.Name, "oidc_auth.primary") {
			foundPrimary = true
		}
	}
	if !foundPrimary {
		t.Error("expected the re-invoked authenticate_external's full sign-in to issue a primary cookie")
	}
}

func TestResumeRendersErrorWhenReinvokedExternalAuthFails(t *testing.T) {
	users := &fakeUsers{externalFunc: func(identity model.ExternalIdentity) *model.AuthenticateResult {
		return &model.AuthenticateResult{Kind: model.AuthenticateResultError, ErrorMessage: "lookup failed"}
	}}
	c := testController(t, users, &fakeClients{})

	issueRec := httptest.NewRecorder()
	c.Auth.Issue(issueRec, cookie.SchemePartial, cookie.AuthPayload{
		Subject:          "google:1234567890",
		IdentityProvider: "google",
		AuthTime:         time.Now(),
		Claims: []claims.Claim{
			{Type: claims.TypePartialLoginReturnURL, Value: "https://issuer.example.com/connect/authorize"},
			{Type: claims.TypePartialLoginResumeID, Value: "resume-token-1"},
			{Type: claims.TypeExternalProviderUserID, Value: "1234567890", Issuer: "google"},
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/resume?resume=resume-token-1", nil)
	for _, ck := range issueRec.Result().Cookies() {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Resume(rec, req)

	if rec.Code == http.StatusFound {
		t.Fatal("a failed re-invocation of authenticate_external must not redirect")
	}
}

func TestLogoutPromptRendersAndIssuesAntiForgeryToken(t *testing.T) {
	c := testController(t, &fakeUsers{}, &fakeClients{})

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	rec := httptest.NewRecorder()
	c.LogoutPrompt(rec, req)

	if len(rec.Result().Cookies()) == 0 {
		t.Error("expected an anti-forgery cookie to be issued")
	}
	if !strings.Contains(rec.Body.String(), "signed out") && !strings.Contains(strings.ToLower(rec.Body.String()), "sign") {
		t.Errorf("expected the logout prompt page to render something sign-related, got: %s", rec.Body.String())
	}
}

func TestLogoutClearsAllAuthCookiesAndCallsSignOut(t *testing.T) {
	users := &fakeUsers{}
	c := testController(t, users, &fakeClients{})

	issueRec := httptest.NewRecorder()
	c.Auth.Issue(issueRec, cookie.SchemePrimary, cookie.AuthPayload{Subject: "user-1", IdentityProvider: "local", AuthTime: time.Now()}, nil)

	req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, ck := range issueRec.Result().Cookies() {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.Logout(rec, req)

	if len(users.signedOut) != 1 || users.signedOut[0] != "user-1" {
		t.Errorf("signedOut = %v, want [user-1]", users.signedOut)
	}

	cleared := 0
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			cleared++
		}
	}
	if cleared == 0 {
		t.Error("expected authentication cookies to be cleared on logout")
	}
}
