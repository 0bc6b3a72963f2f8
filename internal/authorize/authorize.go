// Package authorize implements the AuthorizeController component: the
// five-state authorize state machine of §4.2/§4.4 — validate-protocol,
// login-check, validate-client, client-login-check, consent-check,
// response — plus the /connect/consent and /connect/switch routes.
//
// Grounded on the teacher's OIDCHandler.Authorize control flow
// (internal/handler/oidc_handler.go), restructured into the explicit
// state machine and resumable-redirect pattern the spec requires.
package authorize

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/cookie"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/events"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/httpx"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/interaction"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/localization"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/model"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/response"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/validator"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/view"
)

const endpointName = "Authorize"

// Controller implements AuthorizeController.
type Controller struct {
	BaseURL     string
	Enabled     bool
	Validator   *validator.RequestValidator
	Interaction *interaction.Generator
	Response    *response.Generator
	SignIn      *cookie.MessageCookie[model.SignInMessage]
	Auth        *cookie.AuthCookieManager
	View        *view.Service
	Loc         *localization.Service
	Events      *events.Service
	Secure      bool
}

// Authorize implements GET /connect/authorize.
func (c *Controller) Authorize(w http.ResponseWriter, r *http.Request) {
	if !c.Enabled {
		http.NotFound(w, r)
		return
	}

	raw := rawParams(r.URL.Query())
	c.run(w, r, raw, nil)
}

// run drives the state machine; submission is nil for the initial GET
// and non-nil when re-entered from POST /connect/consent.
func (c *Controller) run(w http.ResponseWriter, r *http.Request, raw model.AuthorizeRequestRaw, submission *model.UserConsent) {
	// STATE: VALIDATE_PROTOCOL
	req, authErr := c.Validator.ValidateProtocol(raw)
	if authErr != nil {
		c.handleError(w, r, nil, authErr)
		return
	}

	returnURL := req.AuthorizeURL(c.BaseURL + "/connect/authorize")

	// STATE: LOGIN_CHECK
	principal, _ := c.Auth.Read(r, cookie.SchemePrimary)
	loginDecision := c.Interaction.ProcessLogin(req, principal, returnURL)
	if loginDecision.Kind == interaction.DecisionLogin {
		c.redirectToLogin(w, r, loginDecision.SignInMessage)
		return
	}

	// STATE: VALIDATE_CLIENT
	if authErr := c.Validator.ValidateClient(req); authErr != nil {
		c.handleError(w, r, req, authErr)
		return
	}

	// STATE: CLIENT_LOGIN_CHECK
	clientLoginDecision := c.Interaction.ProcessClientLogin(req)
	if clientLoginDecision.Kind == interaction.DecisionError {
		c.handleError(w, r, req, clientLoginDecision.Error)
		return
	}

	// STATE: CONSENT_CHECK
	consentDecision, err := c.Interaction.ProcessConsent(req, principal.Subject, submission)
	if err != nil {
		c.handleError(w, r, req, &validator.AuthError{Type: validator.ErrorTypeClient, Code: "server_error", Description: "consent lookup failed"})
		return
	}
	switch consentDecision.Kind {
	case interaction.DecisionError:
		c.handleError(w, r, req, consentDecision.Error)
		return
	case interaction.DecisionConsent:
		c.renderConsent(w, req, raw, consentDecision.ConsentMessage)
		return
	}

	// STATE: RESPONSE
	resp, err := c.Response.Generate(req, principal.Subject, principal.AuthTime, consentDecision.Scopes)
	if err != nil {
		c.handleError(w, r, req, &validator.AuthError{Type: validator.ErrorTypeClient, Code: "server_error", Description: err.Error()})
		return
	}
	c.Events.EndpointSuccess(endpointName)
	emit(w, resp)
}

// Consent implements POST /connect/consent: re-enters the state
// machine with a UserConsent submission. Anti-forgery validation is
// applied by httpx.RequireAntiForgery further up the middleware chain.
func (c *Controller) Consent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	rawQuery := r.FormValue("authorize_query")
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		http.Error(w, "malformed authorize query", http.StatusBadRequest)
		return
	}
	raw := rawParams(values)

	submission := &model.UserConsent{
		Button:          r.FormValue("button"),
		Scopes:          r.Form["scopes"],
		RememberConsent: r.FormValue("remember_consent") == "true",
	}

	c.run(w, r, raw, submission)
}

// Switch implements GET /connect/switch: forces prompt=login and
// re-enters the flow.
func (c *Controller) Switch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prompt := strings.Fields(q.Get("prompt"))
	prompt = appendUnique(prompt, "login")
	q.Set("prompt", strings.Join(prompt, " "))
	http.Redirect(w, r, c.BaseURL+"/connect/authorize?"+q.Encode(), http.StatusFound)
}

func (c *Controller) redirectToLogin(w http.ResponseWriter, r *http.Request, msg *model.SignInMessage) {
	if err := c.SignIn.Write(w, msg.ID, *msg); err != nil {
		c.handleError(w, r, nil, &validator.AuthError{Type: validator.ErrorTypeUser, Code: "server_error", Description: "failed to start sign-in"})
		return
	}
	http.Redirect(w, r, fmt.Sprintf("%s/login?signin=%s", c.BaseURL, url.QueryEscape(msg.ID)), http.StatusFound)
}

func (c *Controller) renderConsent(w http.ResponseWriter, req *model.ValidatedRequest, raw model.AuthorizeRequestRaw, message string) {
	localizedMessage := ""
	if message != "" {
		localizedMessage = c.Loc.GetMessage(localization.KeyMustChoosePermission)
	}
	token, err := ensureAntiForgery(w, c.Secure)
	if err != nil {
		c.renderError(w, "failed to prepare consent form")
		return
	}
	err = c.View.RenderConsent(w, view.ConsentView{
		ClientName:       req.Client.Name,
		AuthorizeQuery:   encodeQuery(raw),
		AntiForgeryToken: token,
		Scopes:           req.AllScopes(),
		ErrorMessage:     localizedMessage,
	})
	if err != nil {
		c.renderError(w, "failed to render consent view")
	}
}

// handleError implements the critical error-emission rule of §4.4: a
// User-classified error is rendered, never redirected; a
// Client-classified error is redirected using the validated request's
// response mode. When no validated request is passed (req == nil, as
// for protocol-validation failures), the error is rendered whatever
// its classification.
func (c *Controller) handleError(w http.ResponseWriter, r *http.Request, req *model.ValidatedRequest, authErr *validator.AuthError) {
	c.Events.EndpointFailure(endpointName, authErr.Code)

	if authErr.Type == validator.ErrorTypeUser || req == nil {
		c.renderError(w, c.Loc.GetMessage(localizationKeyFor(authErr.Code)))
		return
	}

	resp := response.Error(req, authErr)
	emit(w, resp)
}

func (c *Controller) renderError(w http.ResponseWriter, message string) {
	if err := c.View.RenderError(w, view.ErrorView{Message: message}); err != nil {
		http.Error(w, message, http.StatusInternalServerError)
	}
}

func localizationKeyFor(code string) string {
	switch code {
	case "unauthorized_client":
		return localization.KeyUnauthorizedClient
	case "access_denied":
		return localization.KeyAccessDenied
	default:
		return localization.KeyInvalidRequest
	}
}

// emit writes the AuthorizeResponse to the wire using exactly the
// validated response mode, per the response-mode-fidelity invariant.
func emit(w http.ResponseWriter, resp *model.AuthorizeResponse) {
	switch resp.ResponseMode {
	case model.ResponseModeFormPost:
		emitFormPost(w, resp)
	case model.ResponseModeFragment:
		http.Redirect(w, formPostRequest(resp), buildFragmentRedirectURL(resp), http.StatusFound)
	default:
		http.Redirect(w, formPostRequest(resp), buildQueryRedirectURL(resp), http.StatusFound)
	}
}

// buildQueryRedirectURL appends the response parameters to redirectURI's
// query component, merging with (rather than clobbering) any query
// string the client already registered, per RFC 6749 §3.1.2's allowance
// for redirect URIs that carry a query component of their own.
func buildQueryRedirectURL(resp *model.AuthorizeResponse) string {
	u, err := url.Parse(resp.RedirectURI)
	if err != nil {
		return resp.RedirectURI
	}
	q := u.Query()
	for k, values := range encodeResponse(resp) {
		q[k] = values
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// buildFragmentRedirectURL appends the response parameters to
// redirectURI's fragment, same merge-don't-clobber treatment as the
// query case for any pre-existing fragment.
func buildFragmentRedirectURL(resp *model.AuthorizeResponse) string {
	u, err := url.Parse(resp.RedirectURI)
	if err != nil {
		return resp.RedirectURI
	}
	existing, _ := url.ParseQuery(u.Fragment)
	for k, values := range encodeResponse(resp) {
		existing[k] = values
	}
	u.Fragment = existing.Encode()
	return u.String()
}

// formPostRequest is a no-op shim: http.Redirect needs a *http.Request
// only to decide between HTML and header-based redirects for old
// clients, which this core does not need to special-case.
func formPostRequest(resp *model.AuthorizeResponse) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, resp.RedirectURI, nil)
	return req
}

func encodeResponse(resp *model.AuthorizeResponse) url.Values {
	v := url.Values{}
	if resp.IsError {
		v.Set("error", resp.Error)
		if resp.ErrorDescription != "" {
			v.Set("error_description", resp.ErrorDescription)
		}
	} else {
		if resp.Code != "" {
			v.Set("code", resp.Code)
		}
		if resp.AccessToken != "" {
			v.Set("access_token", resp.AccessToken)
			v.Set("token_type", "Bearer")
		}
		if resp.IDToken != "" {
			v.Set("id_token", resp.IDToken)
		}
	}
	if resp.State != "" {
		v.Set("state", resp.State)
	}
	return v
}

var formPostTemplate = template.Must(template.New("form_post").Parse(`<!doctype html>
<html>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.RedirectURI}}">
{{range $k, $v := .Fields}}<input type="hidden" name="{{$k}}" value="{{$v}}">
{{end}}
</form>
</body>
</html>`))

func emitFormPost(w http.ResponseWriter, resp *model.AuthorizeResponse) {
	fields := map[string]string{}
	for k, v := range encodeResponse(resp) {
		fields[k] = v[0]
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = formPostTemplate.Execute(w, struct {
		RedirectURI string
		Fields      map[string]string
	}{RedirectURI: resp.RedirectURI, Fields: fields})
}

func rawParams(values url.Values) model.AuthorizeRequestRaw {
	raw := model.AuthorizeRequestRaw{}
	for k := range values {
		raw[k] = values.Get(k)
	}
	return raw
}

func encodeQuery(raw model.AuthorizeRequestRaw) string {
	v := url.Values{}
	for k, val := range raw {
		v.Set(k, val)
	}
	return v.Encode()
}

func appendUnique(values []string, add string) []string {
	for _, v := range values {
		if v == add {
			return values
		}
	}
	return append(values, add)
}

func ensureAntiForgery(w http.ResponseWriter, secure bool) (string, error) {
	return httpx.IssueAntiForgeryToken(w, secure)
}
