// Package handlers exposes the public booking flow over JSON HTTP.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/salonbook/salonbook/libs/httpx"
	"github.com/salonbook/salonbook/services/booking-service/internal/availability"
	"github.com/salonbook/salonbook/services/booking-service/internal/booking"
	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
	"github.com/salonbook/salonbook/services/booking-service/internal/verification"
)

type Verifier interface {
	Start(ctx context.Context, req verification.StartRequest) (verification.StartResult, error)
	Status(ctx context.Context, sessionID string) (verification.SessionView, error)
	Verify(ctx context.Context, sessionID, code string) (model.Session, error)
	Resend(ctx context.Context, sessionID string) (model.Session, error)
	CompleteOAuth(ctx context.Context, stateToken, authCode string) (model.Session, error)
}

type Materializer interface {
	Materialize(ctx context.Context, sessionID string, update booking.ProfileUpdate) (model.Appointment, error)
}

// Config shapes the public slot listing and the Google redirect.
type Config struct {
	// Location is the salon's time zone; slot days start at its midnight.
	Location *time.Location
	// DayStart and DayEnd are wall-clock times of day bounding bookable hours.
	DayStart time.Duration
	DayEnd   time.Duration
	SlotStep time.Duration
	// GoogleReturnURL, when set, receives the browser after the OAuth callback instead of a
	// JSON body.
	GoogleReturnURL string
}

func DefaultConfig() Config {
	return Config{
		Location: time.UTC,
		DayStart: 9 * time.Hour,
		DayEnd:   20 * time.Hour,
		SlotStep: 30 * time.Minute,
	}
}

type Deps struct {
	Verifier     Verifier
	Materializer Materializer
	Store        store.Store
	Checker      *availability.Checker
	Logger       *slog.Logger
	Config       Config
	Now          func() time.Time
}

type BookingHandler struct {
	verifier     Verifier
	materializer Materializer
	store        store.Store
	checker      *availability.Checker
	logger       *slog.Logger
	cfg          Config
	now          func() time.Time
}

func NewBookingHandler(d Deps) *BookingHandler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Config.Location == nil {
		d.Config.Location = time.UTC
	}
	if d.Config.SlotStep <= 0 {
		d.Config.SlotStep = 30 * time.Minute
	}
	return &BookingHandler{
		verifier:     d.Verifier,
		materializer: d.Materializer,
		store:        d.Store,
		checker:      d.Checker,
		logger:       d.Logger,
		cfg:          d.Config,
		now:          d.Now,
	}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/public/verification/sessions", h.StartSession)
	mux.HandleFunc("GET /api/v1/public/verification/sessions/{id}", h.SessionStatus)
	mux.HandleFunc("POST /api/v1/public/verification/sessions/{id}/verify", h.VerifyCode)
	mux.HandleFunc("POST /api/v1/public/verification/sessions/{id}/resend", h.ResendCode)
	mux.HandleFunc("POST /api/v1/public/verification/sessions/{id}/appointment", h.CreateAppointment)
	mux.HandleFunc("GET /api/v1/public/verification/google/callback", h.GoogleCallback)
	mux.HandleFunc("GET /api/v1/public/slots", h.Slots)
}

type startSessionRequest struct {
	Channel      string `json:"channel" validate:"required"`
	Phone        string `json:"phone" validate:"omitempty,max=32"`
	Email        string `json:"email" validate:"omitempty,max=254"`
	CustomerName string `json:"customer_name" validate:"required,max=100"`
	MasterID     string `json:"master_id" validate:"required,max=64"`
	ServiceID    string `json:"service_id" validate:"required,max=64"`
	StartAt      string `json:"start_at" validate:"required"`
}

type verifyRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

type appointmentRequest struct {
	Email     *string `json:"email" validate:"omitempty,max=254"`
	BirthDate *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
}

type sessionResponse struct {
	SessionID         string `json:"session_id"`
	Channel           string `json:"channel"`
	State             string `json:"state"`
	ExpiresAt         string `json:"expires_at"`
	ExpiresInSeconds  int    `json:"expires_in_seconds"`
	ResendInSeconds   int    `json:"resend_in_seconds"`
	RemainingAttempts int    `json:"remaining_attempts"`
	RedirectURL       string `json:"redirect_url,omitempty"`
	TelegramLink      string `json:"telegram_link,omitempty"`
}

type appointmentResponse struct {
	AppointmentID string  `json:"appointment_id"`
	SessionID     string  `json:"session_id"`
	MasterID      string  `json:"master_id"`
	ServiceID     string  `json:"service_id"`
	StartAt       string  `json:"start_at"`
	EndAt         string  `json:"end_at"`
	CustomerName  string  `json:"customer_name"`
	Phone         string  `json:"phone,omitempty"`
	Email         *string `json:"email,omitempty"`
	BirthDate     *string `json:"birth_date,omitempty"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	CreatedAt     string  `json:"created_at"`
}

type slotItem struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

type slotsResponse struct {
	MasterID  string     `json:"master_id"`
	ServiceID string     `json:"service_id"`
	Date      string     `json:"date"`
	Slots     []slotItem `json:"slots"`
}

func (h *BookingHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, validationMessage(err))
		return
	}
	channel, ok := model.ParseChannel(req.Channel)
	if !ok {
		badRequest(w, "channel must be one of SMS, TELEGRAM, GOOGLE")
		return
	}
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		badRequest(w, "start_at must be an RFC 3339 timestamp")
		return
	}

	res, err := h.verifier.Start(r.Context(), verification.StartRequest{
		Channel:      channel,
		Phone:        req.Phone,
		Email:        req.Email,
		CustomerName: req.CustomerName,
		MasterID:     strings.TrimSpace(req.MasterID),
		ServiceID:    strings.TrimSpace(req.ServiceID),
		StartAt:      startAt,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	body := h.sessionBody(res.Session)
	body.RedirectURL = res.RedirectURL
	body.TelegramLink = res.TelegramLink
	httpx.WriteJSON(w, http.StatusCreated, body)
}

func (h *BookingHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	v, err := h.verifier.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		SessionID:         v.Session.ID,
		Channel:           string(v.Session.Channel),
		State:             string(v.State),
		ExpiresAt:         v.Session.ExpiresAt.UTC().Format(time.RFC3339),
		ExpiresInSeconds:  httpx.CeilSeconds(v.ExpiresIn),
		ResendInSeconds:   httpx.CeilSeconds(v.ResendIn),
		RemainingAttempts: v.RemainingAttempts,
	})
}

func (h *BookingHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, validationMessage(err))
		return
	}
	sess, err := h.verifier.Verify(r.Context(), r.PathValue("id"), req.Code)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.sessionBody(sess))
}

func (h *BookingHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	sess, err := h.verifier.Resend(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.sessionBody(sess))
}

func (h *BookingHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, validationMessage(err))
		return
	}
	update := booking.ProfileUpdate{Email: req.Email}
	if req.BirthDate != nil {
		d, err := time.Parse(time.DateOnly, *req.BirthDate)
		if err != nil {
			badRequest(w, "birth_date must use the format 2006-01-02")
			return
		}
		update.BirthDate = &d
	}

	appt, err := h.materializer.Materialize(r.Context(), r.PathValue("id"), update)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appointmentBody(appt))
}

// GoogleCallback is the OAuth redirect target. With a return URL configured the browser is
// sent back to the booking page carrying the outcome as query parameters.
func (h *BookingHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		sess model.Session
		err  error
	)
	switch {
	case q.Get("error") != "":
		err = errs.InvalidInput("google sign-in was cancelled")
	case q.Get("state") == "" || q.Get("code") == "":
		err = errs.InvalidInput("state and code are required")
	default:
		sess, err = h.verifier.CompleteOAuth(r.Context(), q.Get("state"), q.Get("code"))
	}

	if h.cfg.GoogleReturnURL == "" {
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, h.sessionBody(sess))
		return
	}

	target, perr := url.Parse(h.cfg.GoogleReturnURL)
	if perr != nil {
		h.logger.Error("invalid google return url", "err", perr)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	params := target.Query()
	if err != nil {
		kind := errs.KindOf(err)
		if kind == "" {
			h.logger.Error("google callback failed", "err", err)
			kind = "internal"
		}
		params.Set("error", string(kind))
		if e, ok := errs.As(err); ok && e.Kind == errs.KindCodeMismatch {
			params.Set("remaining_attempts", strconv.Itoa(e.RemainingAttempts))
		}
	} else {
		params.Set("session_id", sess.ID)
		params.Set("state", string(sess.State(h.now())))
	}
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	masterID := strings.TrimSpace(q.Get("master_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if masterID == "" || serviceID == "" {
		badRequest(w, "master_id and service_id are required")
		return
	}
	day, err := time.ParseInLocation(time.DateOnly, q.Get("date"), h.cfg.Location)
	if err != nil {
		badRequest(w, "date must use the format 2006-01-02")
		return
	}
	from := wallClock(day, h.cfg.DayStart)
	to := wallClock(day, h.cfg.DayEnd)

	var (
		starts []time.Time
		svc    model.Service
	)
	err = h.store.InTx(r.Context(), func(ctx context.Context, tx store.Tx) error {
		var err error
		if svc, err = tx.GetService(ctx, serviceID); err != nil {
			return err
		}
		starts, err = h.checker.FreeStarts(ctx, tx, masterID, serviceID, from, to, h.cfg.SlotStep)
		return err
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := slotsResponse{
		MasterID:  masterID,
		ServiceID: serviceID,
		Date:      day.Format(time.DateOnly),
		Slots:     make([]slotItem, 0, len(starts)),
	}
	for _, s := range starts {
		resp.Slots = append(resp.Slots, slotItem{
			StartAt: s.Format(time.RFC3339),
			EndAt:   availability.SlotEnd(s, svc.Duration()).Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) sessionBody(sess model.Session) sessionResponse {
	now := h.now()
	body := sessionResponse{
		SessionID:         sess.ID,
		Channel:           string(sess.Channel),
		State:             string(sess.State(now)),
		ExpiresAt:         sess.ExpiresAt.UTC().Format(time.RFC3339),
		RemainingAttempts: sess.RemainingAttempts(),
	}
	if d := sess.ExpiresAt.Sub(now); d > 0 {
		body.ExpiresInSeconds = httpx.CeilSeconds(d)
	}
	if d := sess.ResendAvailableAt.Sub(now); d > 0 {
		body.ResendInSeconds = httpx.CeilSeconds(d)
	}
	return body
}

func appointmentBody(a model.Appointment) appointmentResponse {
	out := appointmentResponse{
		AppointmentID: a.ID,
		SessionID:     a.SessionID,
		MasterID:      a.MasterID,
		ServiceID:     a.ServiceID,
		StartAt:       a.StartAt.UTC().Format(time.RFC3339),
		EndAt:         a.EndAt.UTC().Format(time.RFC3339),
		CustomerName:  a.CustomerName,
		Phone:         a.Phone,
		Email:         a.Email,
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.BirthDate != nil {
		d := a.BirthDate.Format(time.DateOnly)
		out.BirthDate = &d
	}
	return out
}

// wallClock returns the local time off after midnight of day as read on a wall clock, so
// opening hours hold on days when the zone's offset changes.
func wallClock(day time.Time, off time.Duration) time.Time {
	y, m, d := day.Date()
	h := off / time.Hour
	mins := (off % time.Hour) / time.Minute
	return time.Date(y, m, d, int(h), int(mins), 0, 0, day.Location())
}
