package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/authenticate"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/authorize"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/config"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/cookie"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/discovery"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/events"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/httpx"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/interaction"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/localization"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/model"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/response"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/store"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/token"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/userservice"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/validator"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/internal/view"
	"github.com/lirlia/100day_challenge_backend/day72_oidc_interaction_core/pkg/password"
)

func main() {
	cfg := config.Load()

	keys, err := token.LoadOrGenerateKeys(cfg.PrivateKeyPath)
	if err != nil {
		log.Fatalf("failed to load signing keys: %v", err)
	}
	log.Println("signing keys ready")

	dbStore, err := store.NewDBStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to initialize database store: %v", err)
	}
	defer dbStore.Close()
	log.Println("database connection established")

	seedData(dbStore)

	signInCodec := cookie.NewCodec(cfg.SessionSecret, cfg.SignInMessageTTL)
	signOutCodec := cookie.NewCodec(cfg.SessionSecret, cfg.SignInMessageTTL)
	authCodec := cookie.NewCodec(cfg.SessionSecret, cfg.Authentication.CookieOptions.RememberMeDuration)
	lastUsernameCodec := cookie.NewCodec(cfg.SessionSecret, 365*24*time.Hour)

	signInCookie := cookie.NewMessageCookie[model.SignInMessage]("oidc_signin", signInCodec, cfg.SignInMessageTTL, false)
	signOutCookie := cookie.NewMessageCookie[model.SignOutMessage]("oidc_signout", signOutCodec, cfg.SignInMessageTTL, false)
	authCookies := cookie.NewAuthCookieManager(authCodec, cfg.Authentication.CookieOptions, false)
	lastUsernameCookie := cookie.NewLastUsernameCookie(lastUsernameCodec, false)

	viewService, err := view.New()
	if err != nil {
		log.Fatalf("failed to load views: %v", err)
	}
	locService := localization.New(nil)
	eventsService := events.New(cfg.Events)

	requestValidator := validator.New(dbStore)
	interactionGenerator := interaction.New(dbStore)
	tokenService := token.NewService(cfg, dbStore, keys)
	responseGenerator := response.New(dbStore, tokenService, cfg.AuthorizationCodeTTL)
	userSvc := userservice.New(dbStore)
	tokenHandlers := token.NewHandlers(tokenService, dbStore)

	authorizeController := &authorize.Controller{
		BaseURL:     cfg.IssuerURL,
		Enabled:     cfg.Endpoints.EnableAuthorizeEndpoint,
		Validator:   requestValidator,
		Interaction: interactionGenerator,
		Response:    responseGenerator,
		SignIn:      signInCookie,
		Auth:        authCookies,
		View:        viewService,
		Loc:         locService,
		Events:      eventsService,
	}

	authenticateController := &authenticate.Controller{
		BaseURL:      cfg.IssuerURL,
		Cfg:          cfg,
		Clients:      dbStore,
		Users:        userSvc,
		SignIn:       signInCookie,
		SignOut:      signOutCookie,
		Auth:         authCookies,
		LastUsername: lastUsernameCookie,
		View:         viewService,
		Loc:          locService,
		Events:       eventsService,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(httpx.NoCache)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3002", "http://localhost:3003"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/.well-known/openid-configuration", discovery.Handler(cfg))
	r.Get("/jwks", tokenHandlers.JWKS)

	r.Get("/connect/authorize", authorizeController.Authorize)
	r.With(httpx.RequireAntiForgery).Post("/connect/consent", authorizeController.Consent)
	r.Get("/connect/switch", authorizeController.Switch)

	r.Get("/login", authenticateController.Login)
	r.With(httpx.RequireAntiForgery).Post("/login", authenticateController.Login)
	r.Get("/external", authenticateController.External)
	r.Get("/callback", authenticateController.Callback)
	r.Get("/resume", authenticateController.Resume)
	r.Get("/logout", authenticateController.LogoutPrompt)
	r.With(httpx.RequireAntiForgery).Post("/logout", authenticateController.Logout)

	r.Post("/token", tokenHandlers.Token)
	r.Route("/userinfo", func(r chi.Router) {
		r.Use(tokenService.RequireBearerToken)
		r.Get("/", tokenHandlers.UserInfo)
	})

	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting interaction core on http://localhost%s (issuer: %s)", serverAddr, cfg.IssuerURL)
	if err := http.ListenAndServe(serverAddr, r); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// seedData inserts a development user and two development clients if
// they don't already exist.
func seedData(s store.Storer) {
	testEmail := "test@example.com"
	if existing, _ := s.GetUserByEmail(testEmail); existing == nil {
		hash, err := password.HashPassword("password")
		if err != nil {
			log.Fatalf("failed to hash seed password: %v", err)
		}
		if err := s.CreateUser(&store.User{ID: uuid.NewString(), Email: testEmail, PasswordHash: hash, Name: "Test User"}); err != nil {
			log.Fatalf("failed to seed user: %v", err)
		}
		log.Printf("seeded user %s (password: password)", testEmail)
	}

	seedClient := func(id, secret, name string, redirectURIs, scopes, responseTypes []string, requireConsent bool) {
		if existing, _ := s.GetClient(id); existing != nil {
			return
		}
		hash, err := password.HashPassword(secret)
		if err != nil {
			log.Fatalf("failed to hash seed client secret for %s: %v", id, err)
		}
		marshal := func(values []string) string {
			b, err := json.Marshal(values)
			if err != nil {
				log.Fatalf("failed to marshal seed client field for %s: %v", id, err)
			}
			return string(b)
		}
		client := &store.Client{
			ID:                   id,
			SecretHash:           hash,
			Name:                 name,
			RedirectURIs:         marshal(redirectURIs),
			AllowedScopes:        marshal(scopes),
			AllowedResponseTypes: marshal(responseTypes),
			IdPRestrictions:      marshal(nil),
			RequireConsent:       requireConsent,
		}
		if err := s.CreateClient(client); err != nil {
			log.Fatalf("failed to seed client %s: %v", id, err)
		}
		log.Printf("seeded client %s (secret: %s)", id, secret)
	}

	seedClient("client-a", "client-a-secret", "Test Client A",
		[]string{"http://localhost:3002/callback"},
		[]string{"openid", "profile", "email"},
		[]string{"code"},
		true)

	seedClient("client-b", "client-b-secret", "Test Client B",
		[]string{"http://localhost:3003/callback"},
		[]string{"openid", "profile", "email"},
		[]string{"code", "id_token token", "code id_token"},
		false)
}
