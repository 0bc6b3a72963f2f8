// Package authenticate implements the AuthenticationController
// component: local and external sign-in, partial-sign-in resume, and
// RP-initiated logout (§6).
//
// Grounded on the teacher's local-login handler and session issuance
// in internal/handler/oidc_handler.go, restructured around the
// cookie-based SignInMessage/SignOutMessage envelopes and the
// AuthenticateResult tagged variant the spec requires instead of the
// teacher's direct DB session write.
package authenticate

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/claims"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/config"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/cookie"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/events"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/httpx"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/localization"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/model"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/view"
)

const (
	endpointLogin  = "Login"
	endpointLogout = "Logout"
)

// ClientStore is the narrow collaborator the controller needs for
// branding ("who is asking you to sign in") and IdP allowlisting.
type ClientStore interface {
	GetClient(clientID string) (*store.Client, error)
}

// UserService is the UserService collaborator §6 describes.
type UserService interface {
	PreAuthenticate(msg *model.SignInMessage) *model.AuthenticateResult
	AuthenticateLocal(username, password string) *model.AuthenticateResult
	AuthenticateExternal(identity model.ExternalIdentity) *model.AuthenticateResult
	SignOut(subject string) error
}

// Controller implements AuthenticationController.
type Controller struct {
	BaseURL string
	Cfg     *config.Config
	Clients ClientStore
	Users   UserService

	SignIn       *cookie.MessageCookie[model.SignInMessage]
	SignOut      *cookie.MessageCookie[model.SignOutMessage]
	Auth         *cookie.AuthCookieManager
	LastUsername *cookie.LastUsernameCookie

	View   *view.Service
	Loc    *localization.Service
	Events *events.Service
	Secure bool
}

// Login implements GET/POST /login?signin=<id>.
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("signin")
	msg, ok := c.SignIn.Read(r, id)
	if !ok {
		c.renderError(w, c.Loc.GetMessage(localization.KeySignInExpired))
		return
	}

	if r.Method == http.MethodGet {
		if result := c.Users.PreAuthenticate(msg); result != nil && !result.IsError() {
			c.completeSignIn(w, r, msg, result, "", nil, nil)
			return
		}
		c.renderLogin(w, r, msg, "")
		return
	}

	if !c.Cfg.Authentication.EnableLocalLogin {
		http.Error(w, "local login is disabled", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	username := r.FormValue("username")
	result := c.Users.AuthenticateLocal(username, r.FormValue("password"))
	if result.IsError() {
		c.Events.EndpointFailure(endpointLogin, "invalid_credentials")
		c.renderLogin(w, r, msg, c.Loc.GetMessage(localization.KeyInvalidCredentials))
		return
	}

	var rememberMe *bool
	if c.Cfg.Authentication.CookieOptions.AllowRememberMe {
		v := r.FormValue("remember_me") == "true"
		rememberMe = &v
	}
	if err := c.LastUsername.Write(w, username); err != nil {
		c.Events.EndpointFailure(endpointLogin, "cookie_write_failed")
	}
	c.completeSignIn(w, r, msg, result, "local", rememberMe, nil)
}

// External implements GET /external?signin=<id>&provider=<p>: validates
// the client's IdP allowlist, then hands off to the upstream provider.
// The wire protocol of that hand-off is outside this core's scope (see
// DESIGN.md); here it is represented by a redirect to the callback
// carrying the chosen provider, enough to exercise authenticate_external.
func (c *Controller) External(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("signin")
	msg, ok := c.SignIn.Read(r, id)
	if !ok {
		c.renderError(w, c.Loc.GetMessage(localization.KeySignInExpired))
		return
	}

	provider := r.URL.Query().Get("provider")
	if msg.ClientID != "" {
		client, err := c.Clients.GetClient(msg.ClientID)
		if err != nil || client == nil || !client.AllowsIdP(provider) {
			c.renderError(w, c.Loc.GetMessage(localization.KeyUnauthorizedClient))
			return
		}
	}

	callback := c.BaseURL + "/callback?" + url.Values{
		"signin":   {id},
		"provider": {provider},
	}.Encode()
	http.Redirect(w, r, callback, http.StatusFound)
}

// Callback implements GET /callback: reconstructs the asserted
// identity and runs authenticate_external.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("signin")
	msg, ok := c.SignIn.Read(r, id)
	if !ok {
		c.renderError(w, c.Loc.GetMessage(localization.KeySignInExpired))
		return
	}

	identityClaims := map[string]string{}
	for key := range q {
		if rest, found := strings.CutPrefix(key, "claim_"); found {
			identityClaims[rest] = q.Get(key)
		}
	}

	identity := model.ExternalIdentity{
		Provider:   q.Get("provider"),
		ProviderID: q.Get("external_id"),
		Claims:     identityClaims,
	}
	result := c.Users.AuthenticateExternal(identity)
	if result.IsError() {
		c.Events.EndpointFailure(endpointLogin, "external_authentication_failed")
		c.renderError(w, c.Loc.GetMessage(localization.KeyInvalidCredentials))
		return
	}
	c.completeSignIn(w, r, msg, result, identity.Provider, nil, &identity)
}

// Resume implements GET /resume?resume=<id>: finds the partial-login
// claim matching id, then handles one of two sub-cases. If the partial
// identity already carries a subject and no external_provider_user_id
// claim, it is promoted straight to a full primary sign-in. If it
// represents a not-yet-mapped external identity, ExternalIdentity is
// reconstructed from the bag's claims and authenticate_external is
// re-invoked, proceeding per the usual external-login path.
func (c *Controller) Resume(w http.ResponseWriter, r *http.Request) {
	resumeID := r.URL.Query().Get("resume")

	payload, ok := c.Auth.Read(r, cookie.SchemePartial)
	if !ok {
		c.renderError(w, c.Loc.GetMessage(localization.KeySignInExpired))
		return
	}
	bag := payload.ToBag()

	var matched bool
	for _, claim := range bag.All(claims.TypePartialLoginResumeID) {
		if claim.Value == resumeID {
			matched = true
			break
		}
	}
	if !matched {
		c.renderError(w, c.Loc.GetMessage(localization.KeySignInExpired))
		return
	}

	returnURL, _ := bag.First(claims.TypePartialLoginReturnURL)
	if returnURL == "" {
		returnURL = c.BaseURL
	}

	if providerID, isUnmappedExternal := bag.First(claims.TypeExternalProviderUserID); isUnmappedExternal {
		identity := reconstructExternalIdentity(bag, providerID)
		result := c.Users.AuthenticateExternal(identity)
		if result.IsError() {
			c.Events.EndpointFailure(endpointLogin, "external_authentication_failed")
			c.renderError(w, c.Loc.GetMessage(localization.KeyInvalidCredentials))
			return
		}
		c.completeSignIn(w, r, &model.SignInMessage{ReturnURL: returnURL}, result, identity.Provider, nil, &identity)
		return
	}

	if err := c.Auth.Issue(w, cookie.SchemePrimary, cookie.AuthPayload{
		Subject:          payload.Subject,
		IdentityProvider: payload.IdentityProvider,
		AuthTime:         payload.AuthTime,
	}, nil); err != nil {
		c.renderError(w, c.Loc.GetMessage(localization.KeyServerError))
		return
	}
	c.Auth.Clear(w, cookie.SchemePartial)
	http.Redirect(w, r, returnURL, http.StatusFound)
}

// reconstructExternalIdentity rebuilds the ExternalIdentity asserted
// on the original /callback, carried on the partial cookie's claim
// bag: the external_provider_user_id claim's Issuer is the provider,
// its Value the provider-local id, and every other claim (aside from
// the partial-login bookkeeping pair) is a provider-asserted claim.
func reconstructExternalIdentity(bag *claims.Bag, providerID string) model.ExternalIdentity {
	var provider string
	identityClaims := map[string]string{}
	for _, claim := range bag.Slice() {
		switch claim.Type {
		case claims.TypePartialLoginReturnURL, claims.TypePartialLoginResumeID:
			continue
		case claims.TypeExternalProviderUserID:
			provider = claim.Issuer
		default:
			identityClaims[claim.Type] = claim.Value
		}
	}
	return model.ExternalIdentity{Provider: provider, ProviderID: providerID, Claims: identityClaims}
}

// LogoutPrompt implements GET /logout[?id=<id>].
func (c *Controller) LogoutPrompt(w http.ResponseWriter, r *http.Request) {
	logoutID := r.URL.Query().Get("id")
	clientName := ""
	if logoutID != "" {
		if msg, ok := c.SignOut.Read(r, logoutID); ok && msg.ClientID != "" {
			if client, err := c.Clients.GetClient(msg.ClientID); err == nil && client != nil {
				clientName = client.Name
			}
		}
	}

	token, err := httpx.IssueAntiForgeryToken(w, c.Secure)
	if err != nil {
		c.renderError(w, c.Loc.GetMessage(localization.KeyServerError))
		return
	}
	_ = c.View.RenderLogoutPrompt(w, view.LogoutPromptView{
		SiteName:         c.Cfg.SiteName,
		ClientName:       clientName,
		LogoutID:         logoutID,
		AntiForgeryToken: token,
	})
}

// Logout implements POST /logout: clears every authentication cookie,
// calls user.sign_out, raises the Logout event, and renders the
// logged-out view carrying the front-channel single sign-out iframes.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	principal, hadPrincipal := c.Auth.Read(r, cookie.SchemePrimary)

	logoutID := r.URL.Query().Get("id")
	if logoutID == "" {
		logoutID = r.FormValue("id")
	}
	var signOutMsg *model.SignOutMessage
	if logoutID != "" {
		if msg, ok := c.SignOut.Read(r, logoutID); ok {
			signOutMsg = msg
			c.SignOut.Clear(w, logoutID)
		}
	}

	c.Auth.ClearAll(w)

	idp := "local"
	if hadPrincipal {
		if err := c.Users.SignOut(principal.Subject); err != nil {
			c.Events.EndpointFailure(endpointLogout, "sign_out_failed")
		}
		if principal.IdentityProvider != "" {
			idp = principal.IdentityProvider
		}
	}
	c.Events.Logout(idp)
	c.Events.EndpointSuccess(endpointLogout)

	logoutView := view.LoggedOutView{SiteName: c.Cfg.SiteName, FrontChannelLogoutURLs: c.Cfg.ProtocolLogoutURLs}
	if signOutMsg != nil {
		logoutView.PostLogoutRedirectURI = signOutMsg.PostLogoutRedirectURI
	}
	_ = c.View.RenderLoggedOut(w, logoutView)
}

func (c *Controller) completeSignIn(w http.ResponseWriter, r *http.Request, msg *model.SignInMessage, result *model.AuthenticateResult, idp string, rememberMe *bool, identity *model.ExternalIdentity) {
	if result.IsPartial() {
		resumeID := uuid.NewString()
		payloadClaims := []claims.Claim{
			{Type: claims.TypePartialLoginReturnURL, Value: msg.ReturnURL},
			{Type: claims.TypePartialLoginResumeID, Value: resumeID},
		}
		if identity != nil {
			payloadClaims = append(payloadClaims, claims.Claim{
				Type:   claims.TypeExternalProviderUserID,
				Value:  identity.ProviderID,
				Issuer: identity.Provider,
			})
			for claimType, value := range identity.Claims {
				payloadClaims = append(payloadClaims, claims.Claim{Type: claimType, Value: value, Issuer: identity.Provider})
			}
		}
		payload := cookie.AuthPayload{
			Subject:          result.Subject,
			IdentityProvider: idp,
			AuthTime:         result.AuthTime,
			Claims:           payloadClaims,
		}
		if err := c.Auth.Issue(w, cookie.SchemePartial, payload, nil); err != nil {
			c.renderError(w, c.Loc.GetMessage(localization.KeyServerError))
			return
		}

		next := result.PartialRedirectPath
		if next == "" {
			next = "~/resume?resume=" + resumeID
		}
		http.Redirect(w, r, c.BaseURL+strings.TrimPrefix(next, "~"), http.StatusFound)
		return
	}

	payload := cookie.AuthPayload{
		Subject:          result.Subject,
		IdentityProvider: result.IdentityProvider,
		AuthTime:         result.AuthTime,
	}
	if err := c.Auth.Issue(w, cookie.SchemePrimary, payload, rememberMe); err != nil {
		c.renderError(w, c.Loc.GetMessage(localization.KeyServerError))
		return
	}
	c.SignIn.Clear(w, msg.ID)
	c.Events.EndpointSuccess(endpointLogin)
	http.Redirect(w, r, msg.ReturnURL, http.StatusFound)
}

func (c *Controller) renderLogin(w http.ResponseWriter, r *http.Request, msg *model.SignInMessage, errorMessage string) {
	lastUsername := ""
	if v, ok := c.LastUsername.Read(r); ok {
		lastUsername = v
	}
	token, err := httpx.IssueAntiForgeryToken(w, c.Secure)
	if err != nil {
		c.renderError(w, c.Loc.GetMessage(localization.KeyServerError))
		return
	}
	_ = c.View.RenderLogin(w, view.LoginView{
		SiteName:         c.Cfg.SiteName,
		SignInID:         msg.ID,
		AntiForgeryToken: token,
		LastUsername:     lastUsername,
		ErrorMessage:     errorMessage,
		LoginPageLinks:   c.Cfg.Authentication.LoginPageLinks,
	})
}

func (c *Controller) renderError(w http.ResponseWriter, message string) {
	if err := c.View.RenderError(w, view.ErrorView{Message: message}); err != nil {
		http.Error(w, message, http.StatusInternalServerError)
	}
}
