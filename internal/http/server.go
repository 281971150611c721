// Package http serves the web UI and the small JSON API behind it.
package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/storage"
	appweb "fintrack/web"
)

// EventPublisher pushes entry change notifications to the mirror queue.
// A nil publisher disables mirroring without touching the handlers.
type EventPublisher interface {
	PublishEntryEvent(ctx context.Context, entryID, userID, action string) error
}

type Server struct {
	http.Server
	templates    *template.Template
	store        *storage.Repository
	sessions     *auth.SessionManager
	publisher    EventPublisher
	rateLimiter  *rateLimiter
	avatarDir    string
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server. Uploaded avatars are stored under avatarDir.
func NewServer(addr string, store *storage.Repository, sessions *auth.SessionManager, publisher EventPublisher, avatarDir string) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:       store,
		sessions:    sessions,
		publisher:   publisher,
		rateLimiter: newRateLimiter(),
		avatarDir:   avatarDir,
	}

	// Parse embedded templates at startup.
	funcs := template.FuncMap{
		"money":  func(symbol string, m core.Money) string { return m.Format(symbol) },
		"amount": func(m core.Money) string { return m.Format("") },
		"add":    func(a, b int) int { return a + b },
		"sub":    func(a, b int) int { return a - b },
	}
	t, err := template.New("").Funcs(funcs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	// Uploaded avatars live on disk, outside the embedded FS.
	mux.Handle("GET /avatars/", http.StripPrefix("/avatars/", http.FileServer(http.Dir(avatarDir))))

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /{$}", s.public(s.handleIndex))
	mux.HandleFunc("GET /register", s.public(s.handleRegisterPage))
	mux.HandleFunc("POST /register", s.public(s.handleRegister))
	mux.HandleFunc("GET /login", s.public(s.handleLoginPage))
	mux.HandleFunc("POST /login", s.public(s.handleLogin))
	mux.HandleFunc("POST /logout", s.protected(s.handleLogout))

	mux.HandleFunc("GET /dashboard", s.protected(s.handleDashboard))
	mux.HandleFunc("GET /api/summary", s.protected(s.handleSummaryAPI))

	mux.HandleFunc("GET /profile", s.protected(s.handleProfilePage))
	mux.HandleFunc("POST /profile", s.protected(s.handleProfileUpdate))
	mux.HandleFunc("POST /profile/dark-mode", s.protected(s.handleDarkModeToggle))

	mux.HandleFunc("GET /categories", s.protected(s.handleCategoryList))
	mux.HandleFunc("GET /categories/new", s.protected(s.handleCategoryForm))
	mux.HandleFunc("POST /categories", s.protected(s.handleCategoryCreate))
	mux.HandleFunc("GET /categories/{id}/edit", s.protected(s.handleCategoryForm))
	mux.HandleFunc("POST /categories/{id}", s.protected(s.handleCategoryUpdate))
	mux.HandleFunc("POST /categories/{id}/delete", s.protected(s.handleCategoryDelete))

	// Expense and income pages share handlers parameterized by kind.
	for _, k := range []core.EntryKind{core.KindExpense, core.KindIncome} {
		prefix := "/" + entrySlug(k)
		mux.HandleFunc("GET "+prefix, s.protected(s.handleEntryList(k)))
		mux.HandleFunc("GET "+prefix+"/new", s.protected(s.handleEntryForm(k)))
		mux.HandleFunc("POST "+prefix, s.protected(s.handleEntryCreate(k)))
		mux.HandleFunc("GET "+prefix+"/{id}/edit", s.protected(s.handleEntryForm(k)))
		mux.HandleFunc("POST "+prefix+"/{id}", s.protected(s.handleEntryUpdate(k)))
		mux.HandleFunc("POST "+prefix+"/{id}/delete", s.protected(s.handleEntryDelete(k)))
		mux.HandleFunc("GET /export/"+entrySlug(k)+".csv", s.protected(s.handleExportCSV(k)))
	}

	return s
}

func entrySlug(k core.EntryKind) string {
	if k == core.KindIncome {
		return "incomes"
	}
	return "expenses"
}

// public adds security headers, rate limiting and request logging.
func (s *Server) public(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; font-src 'self' https://cdn.jsdelivr.net; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.Method == http.MethodGet {
			ensureCSRFCookie(w, r)
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

// protected requires a valid session and, on mutating requests, a valid
// CSRF token. The resolved user is passed to the handler.
func (s *Server) protected(next func(http.ResponseWriter, *http.Request, core.User)) http.HandlerFunc {
	return s.public(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.currentUser(r)
		if err != nil {
			if isAJAX(r) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if r.Method != http.MethodGet && !validCSRF(r) {
			slog.WarnContext(r.Context(), "CSRF validation failed",
				"url", r.URL.Path, "user_id", user.ID)
			if isAJAX(r) {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid CSRF token"})
				return
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next(w, r, user)
	})
}

func (s *Server) currentUser(r *http.Request) (core.User, error) {
	cookie, err := r.Cookie(auth.SessionCookie)
	if err != nil || cookie.Value == "" {
		return core.User{}, auth.ErrInvalidSession
	}
	userID, err := s.sessions.Verify(cookie.Value)
	if err != nil {
		return core.User{}, err
	}
	user, err := s.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.User{}, auth.ErrInvalidSession
		}
		return core.User{}, err
	}
	return user, nil
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.GetUserByID(r.Context(), "readiness-probe"); err != nil && !errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, err := s.currentUser(r); err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Shutdown stops the server and its background cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a template, falling back to a plain error page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "template", name)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution failed", "error", err, "template", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
