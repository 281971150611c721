package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func (s *Server) handleCategoryList(w http.ResponseWriter, r *http.Request, user core.User) {
	cats, err := s.store.ListCategories(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list categories", "error", err, "user_id", user.ID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data := struct {
		pageData
		Categories []core.Category
	}{pageData: s.basePageData(r, user), Categories: cats}
	s.render(w, r, "categories.html", data)
}

// handleCategoryForm renders both the new and the edit form; edit is
// distinguished by the id path segment.
func (s *Server) handleCategoryForm(w http.ResponseWriter, r *http.Request, user core.User) {
	data := struct {
		pageData
		Category core.Category
		IsEdit   bool
	}{pageData: s.basePageData(r, user)}

	if id := r.PathValue("id"); id != "" {
		cat, err := s.store.GetCategory(r.Context(), user.ID, id)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		data.Category = cat
		data.IsEdit = true
	}
	s.render(w, r, "category_form.html", data)
}

func categoryFromForm(r *http.Request, userID string) core.Category {
	kind := core.CategoryKind(strings.TrimSpace(r.PostFormValue("kind")))
	return core.Category{
		UserID: userID,
		Name:   sanitizeInput(r.PostFormValue("name")),
		Kind:   kind,
		Icon:   sanitizeInput(r.PostFormValue("icon")),
		Color:  strings.TrimSpace(r.PostFormValue("color")),
	}
}

func (s *Server) handleCategoryCreate(w http.ResponseWriter, r *http.Request, user core.User) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	cat := categoryFromForm(r, user.ID)
	if cat.Icon == "" {
		cat.Icon = "bi-tag"
	}
	if cat.Color == "" {
		cat.Color = "#6c757d"
	}

	if _, err := s.store.CreateCategory(r.Context(), cat); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			redirectWithNotice(w, r, "/categories", NoticeError, "A category with that name already exists.")
		default:
			slog.ErrorContext(r.Context(), "Failed to create category", "error", err, "user_id", user.ID)
			redirectWithNotice(w, r, "/categories", NoticeError, "Could not create category: "+err.Error())
		}
		return
	}
	redirectWithNotice(w, r, "/categories", NoticeSuccess, "Category created.")
}

func (s *Server) handleCategoryUpdate(w http.ResponseWriter, r *http.Request, user core.User) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	cat := categoryFromForm(r, user.ID)
	cat.ID = r.PathValue("id")

	existing, err := s.store.GetCategory(r.Context(), user.ID, cat.ID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if cat.Icon == "" {
		cat.Icon = existing.Icon
	}
	if cat.Color == "" {
		cat.Color = existing.Color
	}

	if err := s.store.UpdateCategory(r.Context(), cat); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, storage.ErrDuplicate):
			redirectWithNotice(w, r, "/categories", NoticeError, "A category with that name already exists.")
		default:
			redirectWithNotice(w, r, "/categories", NoticeError, "Could not update category: "+err.Error())
		}
		return
	}
	redirectWithNotice(w, r, "/categories", NoticeSuccess, "Category updated.")
}

// handleCategoryDelete removes a category; its entries stay behind as
// uncategorized. Responds with the AJAX delete contract.
func (s *Server) handleCategoryDelete(w http.ResponseWriter, r *http.Request, user core.User) {
	id := r.PathValue("id")
	err := s.store.DeleteCategory(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeDeleteFailure(w, http.StatusNotFound, "Delete failed. Please try again.")
			return
		}
		slog.ErrorContext(r.Context(), "Failed to delete category",
			"error", err, "category_id", id, "user_id", user.ID)
		writeDeleteFailure(w, http.StatusInternalServerError, "Delete failed. Please try again.")
		return
	}

	slog.InfoContext(r.Context(), "Category deleted", "category_id", id, "user_id", user.ID)
	writeDeleteSuccess(w, "Deleted successfully!")
}
