// Package store persists the durable state the core needs beyond what
// lives in cookies: registered clients, local users, remembered
// consent grants, and single-use authorization codes.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Storer is the persistence contract the core's ClientStore/UserService
// collaborators are built on top of.
type Storer interface {
	GetUserByID(id string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	CreateUser(user *User) error

	GetClient(clientID string) (*Client, error)
	CreateClient(client *Client) error

	CreateSession(session *Session) error
	GetSession(sessionID string) (*Session, error)
	DeleteSession(sessionID string) error
	TouchSession(sessionID string) error

	CreateAuthorizationCode(code *AuthorizationCode) error
	GetAuthorizationCode(code string) (*AuthorizationCode, error)
	DeleteAuthorizationCode(code string) error

	GetGrant(userID, clientID string) (*Grant, error)
	CreateOrUpdateGrant(grant *Grant) error
}

// DBStore implements Storer over sqlite via sqlx.
type DBStore struct {
	DB *sqlx.DB
}

// NewDBStore opens the database and ensures its schema exists.
func NewDBStore(dataSourceName string) (*DBStore, error) {
	db, err := sqlx.Connect("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &DBStore{DB: db}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *DBStore) Close() error {
	return s.DB.Close()
}

func (s *DBStore) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			secret_hash TEXT NOT NULL,
			name TEXT NOT NULL,
			redirect_uris TEXT NOT NULL,
			allowed_scopes TEXT NOT NULL,
			allowed_response_types TEXT NOT NULL,
			idp_restrictions TEXT NOT NULL DEFAULT '[]',
			require_consent INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			idp TEXT NOT NULL DEFAULT 'local',
			auth_time TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_accessed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS authorization_codes (
			code TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			redirect_uri TEXT NOT NULL,
			scopes TEXT NOT NULL,
			nonce TEXT,
			code_challenge TEXT,
			code_challenge_method TEXT,
			auth_time TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS grants (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			scopes TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP,
			UNIQUE(user_id, client_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// --- Data models ---

type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Name         string    `db:"name"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type Client struct {
	ID                   string    `db:"id"`
	SecretHash           string    `db:"secret_hash"`
	Name                 string    `db:"name"`
	RedirectURIs         string    `db:"redirect_uris"`
	AllowedScopes        string    `db:"allowed_scopes"`
	AllowedResponseTypes string    `db:"allowed_response_types"`
	IdPRestrictions      string    `db:"idp_restrictions"`
	RequireConsent       bool      `db:"require_consent"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`

	ParsedRedirectURIs         []string `db:"-"`
	ParsedAllowedScopes        []string `db:"-"`
	ParsedAllowedResponseTypes []string `db:"-"`
	ParsedIdPRestrictions      []string `db:"-"`
}

// AllowsRedirectURI reports an exact-match check against registered URIs.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, u := range c.ParsedRedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AllowsResponseType reports whether the client may use the given
// response_type.
func (c *Client) AllowsResponseType(responseType string) bool {
	for _, rt := range c.ParsedAllowedResponseTypes {
		if rt == responseType {
			return true
		}
	}
	return false
}

// AllowsScope reports whether scope is in the client's allowed set.
func (c *Client) AllowsScope(scope string) bool {
	for _, s := range c.ParsedAllowedScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AllowsIdP reports whether the named external provider is permitted,
// per ClientStore.is_valid_idp. An empty restriction list allows all.
func (c *Client) AllowsIdP(provider string) bool {
	if len(c.ParsedIdPRestrictions) == 0 {
		return true
	}
	for _, p := range c.ParsedIdPRestrictions {
		if p == provider {
			return true
		}
	}
	return false
}

func (c *Client) parse() error {
	if err := json.Unmarshal([]byte(c.RedirectURIs), &c.ParsedRedirectURIs); err != nil {
		return fmt.Errorf("invalid redirect_uris for client %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(c.AllowedScopes), &c.ParsedAllowedScopes); err != nil {
		return fmt.Errorf("invalid allowed_scopes for client %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(c.AllowedResponseTypes), &c.ParsedAllowedResponseTypes); err != nil {
		return fmt.Errorf("invalid allowed_response_types for client %s: %w", c.ID, err)
	}
	if c.IdPRestrictions == "" {
		c.IdPRestrictions = "[]"
	}
	if err := json.Unmarshal([]byte(c.IdPRestrictions), &c.ParsedIdPRestrictions); err != nil {
		return fmt.Errorf("invalid idp_restrictions for client %s: %w", c.ID, err)
	}
	return nil
}

type Session struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	IdP            string    `db:"idp"`
	AuthTime       time.Time `db:"auth_time"`
	ExpiresAt      time.Time `db:"expires_at"`
	CreatedAt      time.Time `db:"created_at"`
	LastAccessedAt time.Time `db:"last_accessed_at"`
}

type AuthorizationCode struct {
	Code                string    `db:"code"`
	ClientID            string    `db:"client_id"`
	UserID              string    `db:"user_id"`
	RedirectURI         string    `db:"redirect_uri"`
	Scopes              string    `db:"scopes"`
	Nonce               *string   `db:"nonce"`
	CodeChallenge       *string   `db:"code_challenge"`
	CodeChallengeMethod *string   `db:"code_challenge_method"`
	AuthTime            time.Time `db:"auth_time"`
	ExpiresAt           time.Time `db:"expires_at"`
	CreatedAt           time.Time `db:"created_at"`
}

type Grant struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	ClientID  string     `db:"client_id"`
	Scopes    string     `db:"scopes"`
	CreatedAt time.Time  `db:"created_at"`
	ExpiresAt *time.Time `db:"expires_at"`
}

// --- User methods ---

func (s *DBStore) GetUserByID(id string) (*User, error) {
	user := &User{}
	if err := s.DB.Get(user, "SELECT * FROM users WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

func (s *DBStore) GetUserByEmail(email string) (*User, error) {
	user := &User{}
	if err := s.DB.Get(user, "SELECT * FROM users WHERE email = ?", email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

func (s *DBStore) CreateUser(user *User) error {
	query := `INSERT INTO users (id, email, password_hash, name) VALUES (:id, :email, :password_hash, :name)`
	if _, err := s.DB.NamedExec(query, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// --- Client methods ---

func (s *DBStore) GetClient(clientID string) (*Client, error) {
	client := &Client{}
	if err := s.DB.Get(client, "SELECT * FROM clients WHERE id = ?", clientID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if err := client.parse(); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *DBStore) CreateClient(client *Client) error {
	query := `INSERT INTO clients (id, secret_hash, name, redirect_uris, allowed_scopes, allowed_response_types, idp_restrictions, require_consent)
	          VALUES (:id, :secret_hash, :name, :redirect_uris, :allowed_scopes, :allowed_response_types, :idp_restrictions, :require_consent)`
	if _, err := s.DB.NamedExec(query, client); err != nil {
		return fmt.Errorf("failed to create client %s: %w", client.ID, err)
	}
	return nil
}

// --- Session methods ---

func (s *DBStore) CreateSession(session *Session) error {
	query := `INSERT INTO sessions (id, user_id, idp, auth_time, expires_at)
	          VALUES (:id, :user_id, :idp, :auth_time, :expires_at)`
	if _, err := s.DB.NamedExec(query, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *DBStore) GetSession(sessionID string) (*Session, error) {
	session := &Session{}
	if err := s.DB.Get(session, "SELECT * FROM sessions WHERE id = ?", sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, nil
	}
	return session, nil
}

func (s *DBStore) DeleteSession(sessionID string) error {
	if _, err := s.DB.Exec("DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *DBStore) TouchSession(sessionID string) error {
	if _, err := s.DB.Exec("UPDATE sessions SET last_accessed_at = ? WHERE id = ?", time.Now(), sessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// --- Authorization code methods ---

func (s *DBStore) CreateAuthorizationCode(code *AuthorizationCode) error {
	query := `INSERT INTO authorization_codes
	          (code, client_id, user_id, redirect_uri, scopes, nonce, code_challenge, code_challenge_method, auth_time, expires_at)
	          VALUES (:code, :client_id, :user_id, :redirect_uri, :scopes, :nonce, :code_challenge, :code_challenge_method, :auth_time, :expires_at)`
	if _, err := s.DB.NamedExec(query, code); err != nil {
		return fmt.Errorf("failed to create authorization code: %w", err)
	}
	return nil
}

// GetAuthorizationCode retrieves and atomically deletes the code,
// enforcing the single-use property §8 requires: once presented, a
// code cannot be redeemed again.
func (s *DBStore) GetAuthorizationCode(code string) (*AuthorizationCode, error) {
	tx, err := s.DB.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ac := &AuthorizationCode{}
	if err := tx.Get(ac, "SELECT * FROM authorization_codes WHERE code = ?", code); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM authorization_codes WHERE code = ?", code); err != nil {
		return nil, fmt.Errorf("failed to delete authorization code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit authorization code redemption: %w", err)
	}
	if time.Now().After(ac.ExpiresAt) {
		return nil, nil
	}
	return ac, nil
}

func (s *DBStore) DeleteAuthorizationCode(code string) error {
	if _, err := s.DB.Exec("DELETE FROM authorization_codes WHERE code = ?", code); err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	return nil
}

// --- Grant methods ---

func (s *DBStore) GetGrant(userID, clientID string) (*Grant, error) {
	grant := &Grant{}
	err := s.DB.Get(grant, "SELECT * FROM grants WHERE user_id = ? AND client_id = ?", userID, clientID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	if grant.ExpiresAt != nil && time.Now().After(*grant.ExpiresAt) {
		return nil, nil
	}
	return grant, nil
}

func (s *DBStore) CreateOrUpdateGrant(grant *Grant) error {
	query := `INSERT INTO grants (id, user_id, client_id, scopes, expires_at)
	          VALUES (:id, :user_id, :client_id, :scopes, :expires_at)
	          ON CONFLICT(user_id, client_id) DO UPDATE SET scopes = excluded.scopes, expires_at = excluded.expires_at`
	if _, err := s.DB.NamedExec(query, grant); err != nil {
		return fmt.Errorf("failed to create or update grant: %w", err)
	}
	return nil
}
