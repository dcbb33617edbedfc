package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	apperrors "github.com/mealcycle/mealcycle/internal/errors"
	"github.com/mealcycle/mealcycle/internal/storage"
)

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	state, err := a.orch.Generate(r.Context(), userID)
	if err != nil {
		a.failed(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPlanView(state, time.Now()))
}

func (a *API) handleRegenerateWeek(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	weekStart, err := plan.ParseDate(chi.URLParam(r, "start"))
	if err != nil {
		a.failed(w, r, apperrors.New(apperrors.CodeInvalidWeekStart, "week start must be a YYYY-MM-DD date"))
		return
	}
	state, err := a.orch.RegenerateWeek(r.Context(), userID, weekStart)
	if err != nil {
		a.failed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlanView(state, time.Now()))
}

func (a *API) handleRegenerateFuture(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	state, err := a.orch.RegenerateAllFuture(r.Context(), userID)
	if err != nil {
		a.failed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlanView(state, time.Now()))
}

type replaceMealRequest struct {
	Date string `json:"date"`
	Slot string `json:"slot"`
}

func (a *API) handleReplaceMeal(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	var req replaceMealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.failed(w, r, apperrors.New(apperrors.CodeInvalidMealAssignment, "request body must be JSON"))
		return
	}
	date, err := plan.ParseDate(req.Date)
	if err != nil {
		a.failed(w, r, apperrors.New(apperrors.CodeInvalidMealAssignment, "date must be a YYYY-MM-DD date"))
		return
	}
	state, err := a.orch.ReplaceMeal(r.Context(), userID, date, recipe.Course(req.Slot))
	if err != nil {
		a.failed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlanView(state, time.Now()))
}

func (a *API) handleGetWeek(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	weekStart, err := plan.ParseDate(chi.URLParam(r, "start"))
	if err != nil {
		a.failed(w, r, apperrors.New(apperrors.CodeInvalidWeekStart, "week start must be a YYYY-MM-DD date"))
		return
	}
	rows, err := a.orch.GetWeek(r.Context(), userID, weekStart)
	if err != nil {
		a.failed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWeekView(weekStart, rows, time.Now()))
}

type preferencesRequest struct {
	Slots                   []string `json:"slots"`
	MaxPrepWeeknightMin     int      `json:"max_prep_weeknight_min"`
	MaxPrepWeekendMin       int      `json:"max_prep_weekend_min"`
	AvoidConsecutiveComplex bool     `json:"avoid_consecutive_complex"`
	CuisineVarietyWeight    float64  `json:"cuisine_variety_weight"`
	WeeksPerGeneration      int      `json:"weeks_per_generation"`
}

func (a *API) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.failed(w, r, apperrors.New(apperrors.CodeInvalidPreferences, "request body must be JSON"))
		return
	}
	err := a.orch.UpdatePreferences(r.Context(), storage.PreferencesRecord{
		UserID:                  userID,
		Slots:                   req.Slots,
		MaxPrepWeeknight:        time.Duration(req.MaxPrepWeeknightMin) * time.Minute,
		MaxPrepWeekend:          time.Duration(req.MaxPrepWeekendMin) * time.Minute,
		AvoidConsecutiveComplex: req.AvoidConsecutiveComplex,
		CuisineVarietyWeight:    req.CuisineVarietyWeight,
		WeeksPerGeneration:      req.WeeksPerGeneration,
	})
	if err != nil {
		a.failed(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// failed logs server faults and writes the error envelope. Client errors are
// expected traffic and stay out of the log at error level.
func (a *API) failed(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.GetCode(err).HTTPStatus() >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, err)
}
