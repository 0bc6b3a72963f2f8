// Package localization implements the LocalizationService collaborator:
// a small per-locale message table where a missing key falls back to
// the key itself, per spec §6 ("missing -> return key").
package localization

// Service holds a flat map of message keys to localized strings for a
// single locale; the core only ever asks for one locale's worth of
// strings at a time (ui_locales negotiation lives outside this core).
type Service struct {
	messages map[string]string
}

// Default keys used by the authorize/authenticate core's own error and
// view paths.
const (
	KeyInvalidRequest      = "error.invalid_request"
	KeyUnauthorizedClient  = "error.unauthorized_client"
	KeyAccessDenied        = "error.access_denied"
	KeyServerError         = "error.server_error"
	KeyInvalidCredentials  = "login.invalid_credentials"
	KeyMustChoosePermission = "consent.must_choose_one_permission"
	KeySignInExpired       = "error.signin_expired"
)

func defaultMessages() map[string]string {
	return map[string]string{
		KeyInvalidRequest:       "The request could not be understood.",
		KeyUnauthorizedClient:   "This application is not registered to sign in here.",
		KeyAccessDenied:         "Access was denied.",
		KeyServerError:          "Something went wrong. Please try again.",
		KeyInvalidCredentials:   "Incorrect username or password.",
		KeyMustChoosePermission: "Please choose at least one permission to continue.",
		KeySignInExpired:        "Your sign-in request has expired. Please try again.",
	}
}

// New builds a Service seeded with the core's built-in English
// messages, optionally overridden by overrides.
func New(overrides map[string]string) *Service {
	messages := defaultMessages()
	for k, v := range overrides {
		messages[k] = v
	}
	return &Service{messages: messages}
}

// GetMessage returns the localized string for key, or key itself if
// no mapping exists.
func (s *Service) GetMessage(key string) string {
	if msg, ok := s.messages[key]; ok {
		return msg
	}
	return key
}
