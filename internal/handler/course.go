package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/middleware"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/repository"
)

type CourseHandler struct {
	courses *repository.CourseRepository
}

func NewCourseHandler(courses *repository.CourseRepository) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List returns the course catalogue.
func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.List(r.Context())
	if err != nil {
		logger.Errorf("course list: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if courses == nil {
		courses = []model.Course{}
	}
	writeJSON(w, http.StatusOK, courses)
}

func (h *CourseHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	c, err := h.courses.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course not found")
			return
		}
		logger.Errorf("course get %s: %v", code, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Enrol registers the caller on the course, which adds the course channel to
// their membership on the next connection.
func (h *CourseHandler) Enrol(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	userID := middleware.GetUserID(r.Context())

	if _, err := h.courses.GetByCode(r.Context(), code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course not found")
			return
		}
		logger.Errorf("course enrol lookup %s: %v", code, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.courses.Enrol(r.Context(), code, userID); err != nil {
		logger.Errorf("course enrol %s user=%s: %v", code, userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CourseHandler) Unenrol(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	userID := middleware.GetUserID(r.Context())
	if err := h.courses.Unenrol(r.Context(), code, userID); err != nil {
		logger.Errorf("course unenrol %s user=%s: %v", code, userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyCourses lists the caller's enrolled course codes.
func (h *CourseHandler) MyCourses(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	codes, err := h.courses.EnrolledCourses(r.Context(), userID)
	if err != nil {
		logger.Errorf("course my user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if codes == nil {
		codes = []string{}
	}
	writeJSON(w, http.StatusOK, codes)
}
