// Package view implements the ViewService collaborator: rendering the
// login, consent, error, logout-prompt, and logged-out pages from
// view-model structs. No templating library appears anywhere in the
// retrieval pack for this kind of server-rendered flow, so this is
// built on stdlib html/template (a justified stdlib fallback, see
// DESIGN.md).
package view

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// LoginView is the view model for the local login page.
type LoginView struct {
	SiteName          string
	SignInID          string
	AntiForgeryToken  string
	LastUsername      string
	ErrorMessage      string
	ExternalProviders []string
	LoginPageLinks    []string
}

// ConsentView is the view model for the consent page.
type ConsentView struct {
	SiteName         string
	ClientName       string
	AuthorizeQuery   string
	AntiForgeryToken string
	Scopes           []string
	ErrorMessage     string
}

// ErrorView is the view model for the generic error page.
type ErrorView struct {
	SiteName string
	Message  string
}

// LogoutPromptView is the view model for the logout confirmation page.
type LogoutPromptView struct {
	SiteName         string
	ClientName       string
	LogoutID         string
	AntiForgeryToken string
}

// LoggedOutView is the view model for the post-logout page, embedding
// front-channel single sign-out iframe URLs.
type LoggedOutView struct {
	SiteName               string
	FrontChannelLogoutURLs []string
	PostLogoutRedirectURI  string
}

// Service renders views from html/template files embedded at build time.
type Service struct {
	login       *template.Template
	consent     *template.Template
	errorPage   *template.Template
	logoutPrompt *template.Template
	loggedOut   *template.Template
}

// New parses the embedded templates.
func New() (*Service, error) {
	parse := func(name string) (*template.Template, error) {
		t, err := template.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		return t, nil
	}

	login, err := parse("login.html")
	if err != nil {
		return nil, err
	}
	consent, err := parse("consent.html")
	if err != nil {
		return nil, err
	}
	errorPage, err := parse("error.html")
	if err != nil {
		return nil, err
	}
	logoutPrompt, err := parse("logout_prompt.html")
	if err != nil {
		return nil, err
	}
	loggedOut, err := parse("logged_out.html")
	if err != nil {
		return nil, err
	}

	return &Service{
		login:        login,
		consent:      consent,
		errorPage:    errorPage,
		logoutPrompt: logoutPrompt,
		loggedOut:    loggedOut,
	}, nil
}

func (s *Service) RenderLogin(w http.ResponseWriter, model LoginView) error {
	return render(w, s.login, model)
}

func (s *Service) RenderConsent(w http.ResponseWriter, model ConsentView) error {
	return render(w, s.consent, model)
}

func (s *Service) RenderError(w http.ResponseWriter, model ErrorView) error {
	return render(w, s.errorPage, model)
}

func (s *Service) RenderLogoutPrompt(w http.ResponseWriter, model LogoutPromptView) error {
	return render(w, s.logoutPrompt, model)
}

func (s *Service) RenderLoggedOut(w http.ResponseWriter, model LoggedOutView) error {
	return render(w, s.loggedOut, model)
}

func render(w http.ResponseWriter, t *template.Template, model any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := t.Execute(w, model); err != nil {
		return fmt.Errorf("failed to render view: %w", err)
	}
	return nil
}
