/**
 * @description
 * This file contains the HTTP handlers for the promotion-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and write the HTTP response. Two groups exist: the promotion management
 * interface, and the read-only queries the conversational agent layer calls to
 * answer user questions about promotions and enrollment status.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/promotion-service/internal/app"
	"github.com/transfa/promotion-service/internal/domain"
	"github.com/transfa/promotion-service/internal/store"
)

// PromotionHandlers holds the application service that handlers will use.
type PromotionHandlers struct {
	service *app.Service
}

// NewPromotionHandlers creates the handler set.
func NewPromotionHandlers(service *app.Service) *PromotionHandlers {
	return &PromotionHandlers{service: service}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=warn component=api msg=\"response encode failed\" err=%v", err)
	}
}

// CreatePromotionHandler handles POST /promotions.
func (h *PromotionHandlers) CreatePromotionHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.CreatePromotionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	promo, err := h.service.CreatePromotion(r.Context(), payload)
	if err != nil {
		if errors.Is(err, app.ErrInvalidPromotionPayload) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("level=error component=api msg=\"create promotion failed\" err=%v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, promo)
}

// ListPromotionsHandler handles GET /promotions.
func (h *PromotionHandlers) ListPromotionsHandler(w http.ResponseWriter, r *http.Request) {
	promotions, err := h.service.ListPromotions(r.Context())
	if err != nil {
		log.Printf("level=error component=api msg=\"list promotions failed\" err=%v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if promotions == nil {
		promotions = []domain.PromotionDefinition{}
	}
	writeJSON(w, http.StatusOK, promotions)
}

// DeactivatePromotionHandler handles POST /promotions/{promotionID}/deactivate.
func (h *PromotionHandlers) DeactivatePromotionHandler(w http.ResponseWriter, r *http.Request) {
	promotionID, err := uuid.Parse(chi.URLParam(r, "promotionID"))
	if err != nil {
		http.Error(w, "Invalid promotion ID format", http.StatusBadRequest)
		return
	}

	if err := h.service.DeactivatePromotion(r.Context(), promotionID); err != nil {
		if errors.Is(err, store.ErrPromotionNotFound) {
			http.Error(w, "Promotion not found", http.StatusNotFound)
			return
		}
		log.Printf("level=error component=api msg=\"deactivate promotion failed\" promotion_id=%s err=%v", promotionID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ActivePromotionsHandler handles GET /promotions/active?account_id=.
// Without an account_id it lists active promotions; with one, each promotion
// is paired with that account's enrollment status. This is the query the
// conversational agent uses to answer "what promotions am I eligible for?".
func (h *PromotionHandlers) ActivePromotionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))

	statuses, err := h.service.ListActivePromotionsForAccount(r.Context(), accountID)
	if err != nil {
		log.Printf("level=error component=api msg=\"active promotions query failed\" account_id=%s err=%v", accountID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// AccountEnrollmentsHandler handles GET /promotions/accounts/{accountID}/enrollments.
func (h *PromotionHandlers) AccountEnrollmentsHandler(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(chi.URLParam(r, "accountID"))
	if accountID == "" {
		http.Error(w, "Account ID required", http.StatusBadRequest)
		return
	}

	enrollments, err := h.service.ListAccountEnrollments(r.Context(), accountID)
	if err != nil {
		log.Printf("level=error component=api msg=\"account enrollments query failed\" account_id=%s err=%v", accountID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if enrollments == nil {
		enrollments = []domain.Enrollment{}
	}
	writeJSON(w, http.StatusOK, enrollments)
}

// EnrollmentStatusHandler handles GET /promotions/{promotionID}/enrollments/{accountID}.
func (h *PromotionHandlers) EnrollmentStatusHandler(w http.ResponseWriter, r *http.Request) {
	promotionID, err := uuid.Parse(chi.URLParam(r, "promotionID"))
	if err != nil {
		http.Error(w, "Invalid promotion ID format", http.StatusBadRequest)
		return
	}
	accountID := strings.TrimSpace(chi.URLParam(r, "accountID"))
	if accountID == "" {
		http.Error(w, "Account ID required", http.StatusBadRequest)
		return
	}

	enrollment, err := h.service.GetEnrollmentStatus(r.Context(), promotionID, accountID)
	if err != nil {
		if errors.Is(err, store.ErrEnrollmentNotFound) {
			http.Error(w, "Enrollment not found", http.StatusNotFound)
			return
		}
		log.Printf("level=error component=api msg=\"enrollment status query failed\" promotion_id=%s account_id=%s err=%v", promotionID, accountID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, enrollment)
}
