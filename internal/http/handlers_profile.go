package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"fintrack/internal/core"
)

const maxAvatarBytes = 2 << 20

var (
	errAvatarTooLarge    = errors.New("avatar exceeds size limit")
	errAvatarUnsupported = errors.New("unsupported avatar format")
)

func (s *Server) handleProfilePage(w http.ResponseWriter, r *http.Request, user core.User) {
	data := struct {
		pageData
		Profile core.Profile
	}{pageData: s.basePageData(r, user)}

	profile, err := s.store.GetProfile(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load profile", "error", err, "user_id", user.ID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	data.Profile = profile
	s.render(w, r, "profile.html", data)
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request, user core.User) {
	// The profile form posts multipart so it can carry an avatar file;
	// plain urlencoded posts still work.
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	profile, err := s.store.GetProfile(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	currency := strings.TrimSpace(r.PostFormValue("currency"))
	if currency != "" && len(currency) <= 3 {
		profile.Currency = currency
	}

	avatarPath, err := s.saveAvatar(r, user.ID)
	if err != nil {
		slog.WarnContext(r.Context(), "Avatar upload rejected", "error", err, "user_id", user.ID)
		msg := "Could not save avatar."
		switch {
		case errors.Is(err, errAvatarTooLarge):
			msg = "Avatar must be 2 MB or smaller."
		case errors.Is(err, errAvatarUnsupported):
			msg = "Avatar must be a PNG, JPG, GIF or WebP image."
		}
		redirectWithNotice(w, r, "/profile", NoticeError, msg)
		return
	}
	if avatarPath != "" {
		profile.AvatarPath = avatarPath
	}

	if err := s.store.UpdateProfile(r.Context(), profile); err != nil {
		slog.ErrorContext(r.Context(), "Failed to update profile", "error", err, "user_id", user.ID)
		redirectWithNotice(w, r, "/profile", NoticeError, "Could not save profile.")
		return
	}
	redirectWithNotice(w, r, "/profile", NoticeSuccess, "Profile updated.")
}

// saveAvatar stores the uploaded avatar image under the avatar directory
// and returns its URL path. Returns "" when the form carries no file.
func (s *Server) saveAvatar(r *http.Request, userID string) (string, error) {
	file, header, err := r.FormFile("avatar")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", fmt.Errorf("read avatar upload: %w", err)
	}
	defer file.Close()

	if header.Size > maxAvatarBytes {
		return "", errAvatarTooLarge
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
	default:
		return "", errAvatarUnsupported
	}

	if err := os.MkdirAll(s.avatarDir, 0o755); err != nil {
		return "", fmt.Errorf("create avatar directory: %w", err)
	}
	// One file per user; a new upload replaces the old one.
	name := userID + ext
	dst, err := os.Create(filepath.Join(s.avatarDir, name))
	if err != nil {
		return "", fmt.Errorf("create avatar file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(file, maxAvatarBytes)); err != nil {
		return "", fmt.Errorf("write avatar file: %w", err)
	}
	return "/avatars/" + name, nil
}

// handleDarkModeToggle flips the stored theme preference and returns the
// new value so the page can apply it without a reload.
func (s *Server) handleDarkModeToggle(w http.ResponseWriter, r *http.Request, user core.User) {
	dark, err := s.store.ToggleDarkMode(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to toggle dark mode", "error", err, "user_id", user.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not save preference"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dark_mode": dark})
}
