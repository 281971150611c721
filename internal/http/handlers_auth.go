package http

import (
	"errors"
	"log/slog"
	"net/http"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// pageData carries the fields every template needs plus optional
// page-specific content.
type pageData struct {
	Username string
	DarkMode bool
	Currency string
	Avatar   string
	Notice   *Notification
	Error    string
	Form     map[string]string
}

func (s *Server) basePageData(r *http.Request, user core.User) pageData {
	data := pageData{
		Username: user.Username,
		Notice:   noticeFromQuery(r),
		Currency: "$",
	}
	if profile, err := s.store.GetProfile(r.Context(), user.ID); err == nil {
		data.DarkMode = profile.DarkMode
		data.Currency = profile.Currency
		data.Avatar = profile.AvatarPath
	}
	return data
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "register.html", pageData{Notice: noticeFromQuery(r)})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "login.html", pageData{Notice: noticeFromQuery(r)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if !validCSRF(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	username := sanitizeInput(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	confirm := r.PostFormValue("password_confirm")

	fail := func(msg string) {
		s.render(w, r, "register.html", pageData{
			Error: msg,
			Form:  map[string]string{"username": username},
		})
	}

	if err := core.ValidateUsername(username); err != nil {
		fail(err.Error())
		return
	}
	if password != confirm {
		fail("Passwords do not match.")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fail(err.Error())
		return
	}

	user, err := s.store.CreateUser(r.Context(), username, hash)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			fail("That username is taken.")
			return
		}
		slog.ErrorContext(r.Context(), "Registration failed", "error", err, "username", username)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.store.SeedDefaultCategories(r.Context(), user.ID); err != nil {
		// The account exists; defaults can be seeded again later.
		slog.ErrorContext(r.Context(), "Failed to seed default categories",
			"error", err, "user_id", user.ID)
	}

	s.startSession(w, user.ID)
	slog.InfoContext(r.Context(), "User registered", "user_id", user.ID, "username", username)
	redirectWithNotice(w, r, "/dashboard", NoticeSuccess, "Welcome to FinTrack!")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if !validCSRF(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	username := sanitizeInput(r.PostFormValue("username"))
	password := r.PostFormValue("password")

	fail := func() {
		s.render(w, r, "login.html", pageData{
			Error: "Invalid username or password.",
			Form:  map[string]string{"username": username},
		})
	}

	user, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.ErrorContext(r.Context(), "Login lookup failed", "error", err)
		}
		fail()
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		slog.WarnContext(r.Context(), "Login rejected", "username", username)
		fail()
		return
	}

	s.startSession(w, user.ID)
	slog.InfoContext(r.Context(), "User logged in", "user_id", user.ID, "username", username)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user core.User) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	slog.InfoContext(r.Context(), "User logged out", "user_id", user.ID)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// startSession issues the session and a fresh CSRF token.
func (s *Server) startSession(w http.ResponseWriter, userID string) {
	token, err := s.sessions.Issue(userID)
	if err != nil {
		slog.Error("Failed to issue session token", "error", err, "user_id", userID)
		return
	}
	maxAge := int(s.sessions.TTL().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CSRFCookie,
		Value:    auth.NewCSRFToken(),
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}
