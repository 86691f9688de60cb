package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/availability"
	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/phone"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("booking-service/verification")

// Deps wires the service. Channel collaborators are optional; a nil collaborator disables
// its channel.
type Deps struct {
	Store    store.Store
	Sessions *Sessions
	Checker  *availability.Checker
	SMS      SMSSender
	Telegram TelegramSender
	OAuth    OAuthProvider
	State    StateCodec
	Limiter  SendLimiter
	Logger   *slog.Logger
	Now      func() time.Time
	// SendTimeout bounds one SMS or Telegram delivery. Sends run inside the store
	// transaction, so this also caps how long a session row (or the in-memory store) stays
	// locked. Zero means DefaultSendTimeout.
	SendTimeout time.Duration
}

const DefaultSendTimeout = 10 * time.Second

// Service runs the verification state machine from session creation to VERIFIED.
type Service struct {
	store    store.Store
	sessions *Sessions
	checker  *availability.Checker
	sms      SMSSender
	telegram TelegramSender
	oauth    OAuthProvider
	state    StateCodec
	limiter  SendLimiter
	logger   *slog.Logger
	now      func() time.Time

	sendTimeout time.Duration
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.SendTimeout <= 0 {
		d.SendTimeout = DefaultSendTimeout
	}
	return &Service{
		store:    d.Store,
		sessions: d.Sessions,
		checker:  d.Checker,
		sms:      d.SMS,
		telegram: d.Telegram,
		oauth:    d.OAuth,
		state:    d.State,
		limiter:  d.Limiter,
		logger:   d.Logger,
		now:      d.Now,

		sendTimeout: d.SendTimeout,
	}
}

type StartRequest struct {
	Channel      model.Channel
	Phone        string
	Email        string
	CustomerName string
	MasterID     string
	ServiceID    string
	StartAt      time.Time
}

// StartResult tells the client how to continue: enter a code, follow RedirectURL (GOOGLE),
// or open TelegramLink when the bot does not know the customer's chat yet.
type StartResult struct {
	Session      model.Session
	State        model.State
	RedirectURL  string
	TelegramLink string
}

// SessionView is the polling projection of a session with server-held countdowns.
type SessionView struct {
	Session           model.Session
	State             model.State
	RemainingAttempts int
	ExpiresIn         time.Duration
	ResendIn          time.Duration
}

func (s *Service) Enabled(c model.Channel) bool {
	switch c {
	case model.ChannelSMS:
		return s.sms != nil
	case model.ChannelTelegram:
		return s.telegram != nil
	case model.ChannelGoogle:
		return s.oauth != nil && s.state != nil
	default:
		return false
	}
}

// Start opens a session for the requested slot and dispatches the code or redirect in the
// same transaction. When dispatch fails nothing is persisted.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	ctx, span := tracer.Start(ctx, "verification.Start", trace.WithAttributes(
		attribute.String("channel", string(req.Channel)),
		attribute.String("master_id", req.MasterID),
	))
	defer span.End()

	in, err := s.prepare(req)
	if err != nil {
		return StartResult{}, err
	}
	if err := s.throttle(ctx, in.Channel, in.SubjectKey); err != nil {
		return StartResult{}, err
	}

	var res StartResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		svc, err := tx.GetService(ctx, req.ServiceID)
		if err != nil {
			return err
		}
		in.Slot = model.Slot{
			ServiceID: svc.ID,
			MasterID:  req.MasterID,
			StartAt:   req.StartAt,
			EndAt:     availability.SlotEnd(req.StartAt, svc.Duration()),
		}
		ok, err := s.checker.IsBookable(ctx, tx, availability.Query{
			MasterID:  in.Slot.MasterID,
			ServiceID: in.Slot.ServiceID,
			StartAt:   in.Slot.StartAt,
			EndAt:     in.Slot.EndAt,
		})
		if err != nil {
			return err
		}
		if !ok {
			return &errs.Error{Kind: errs.KindInvalidInput, Message: "the selected time is not available", Action: errs.ActionPickNewSlot}
		}

		if in.Channel == model.ChannelTelegram {
			chatID, err := s.knownChat(ctx, tx, in.SubjectKey)
			if err != nil {
				return err
			}
			in.TelegramChatID = chatID
		}

		sess, code, err := s.sessions.Create(ctx, tx, in)
		if err != nil {
			return err
		}
		res, err = s.dispatch(ctx, tx, sess, code)
		return err
	})
	if err != nil {
		if errors.Is(err, errs.ErrDispatchFailed) {
			s.logger.Warn("verification dispatch failed", "channel", in.Channel, "err", err)
		}
		return StartResult{}, err
	}
	res.State = res.Session.State(s.now())
	s.logger.Info("verification session started",
		"session_id", res.Session.ID,
		"channel", res.Session.Channel,
		"state", res.State,
		"master_id", res.Session.Slot.MasterID,
	)
	return res, nil
}

// Verify checks a submitted code. A mismatch is committed before the error is returned so
// attempts count even though the call fails.
func (s *Service) Verify(ctx context.Context, sessionID, code string) (model.Session, error) {
	ctx, span := tracer.Start(ctx, "verification.Verify")
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		return model.Session{}, errs.InvalidInput("code is required")
	}

	var (
		out    model.Session
		result error
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, err := s.sessions.Get(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := requireState(sess.State(s.now()), model.StatePendingCode); err != nil {
			return err
		}
		if !sess.Channel.UsesCode() {
			return errs.InvalidInput("%s sessions are verified by the provider callback", sess.Channel)
		}
		if codeMatches(sess.CodeHash, code) {
			out, err = s.sessions.MarkVerified(ctx, tx, sess.ID)
			return err
		}
		out, err = s.sessions.RecordFailedAttempt(ctx, tx, sess.ID)
		if err != nil {
			return err
		}
		result = s.rejection(out)
		return nil
	})
	if err != nil {
		return model.Session{}, err
	}
	if result != nil {
		s.logger.Info("verification code rejected", "session_id", sessionID, "remaining_attempts", out.RemainingAttempts())
		return model.Session{}, result
	}
	s.logger.Info("session verified", "session_id", out.ID, "channel", out.Channel)
	return out, nil
}

// Resend issues a new code. The cooldown is per session and the send limiter is per
// subject; a failed delivery keeps the previous code valid.
func (s *Service) Resend(ctx context.Context, sessionID string) (model.Session, error) {
	ctx, span := tracer.Start(ctx, "verification.Resend")
	defer span.End()

	var out model.Session
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, code, err := s.sessions.Resend(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := s.throttle(ctx, sess.Channel, sess.SubjectKey); err != nil {
			return err
		}
		if err := s.sendCode(ctx, sess, code); err != nil {
			return &errs.Error{Kind: errs.KindDispatchFailed, Message: "could not deliver verification", Action: errs.ActionRetry, Err: err}
		}
		out, err = s.sessions.MarkDispatched(ctx, tx, sess)
		return err
	})
	if err != nil {
		return model.Session{}, err
	}
	s.logger.Info("verification code resent", "session_id", out.ID, "channel", out.Channel)
	return out, nil
}

func (s *Service) Status(ctx context.Context, sessionID string) (SessionView, error) {
	var sess model.Session
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		sess, err = s.sessions.Get(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		return SessionView{}, err
	}
	now := s.now()
	v := SessionView{
		Session:           sess,
		State:             sess.State(now),
		RemainingAttempts: sess.RemainingAttempts(),
	}
	if d := sess.ExpiresAt.Sub(now); d > 0 {
		v.ExpiresIn = d
	}
	if d := sess.ResendAvailableAt.Sub(now); d > 0 {
		v.ResendIn = d
	}
	return v, nil
}

// CompleteOAuth finishes a GOOGLE session from the provider redirect. An account whose
// e-mail differs from the subject counts as a failed attempt.
func (s *Service) CompleteOAuth(ctx context.Context, stateToken, authCode string) (model.Session, error) {
	ctx, span := tracer.Start(ctx, "verification.CompleteOAuth")
	defer span.End()

	if s.oauth == nil || s.state == nil {
		return model.Session{}, errs.InvalidInput("google sign-in is not enabled")
	}
	sessionID, err := s.state.Parse(stateToken)
	if err != nil {
		return model.Session{}, errs.InvalidInput("invalid oauth state")
	}
	if strings.TrimSpace(authCode) == "" {
		return model.Session{}, errs.InvalidInput("authorization code is required")
	}

	// Reject dead sessions before spending the authorization code.
	view, err := s.Status(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if err := requireState(view.State, model.StatePendingCode); err != nil {
		return model.Session{}, err
	}

	ident, err := s.oauth.Exchange(ctx, authCode)
	if err != nil {
		return model.Session{}, errs.InvalidInput("google sign-in failed: %v", err)
	}

	var (
		out    model.Session
		result error
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, err := s.sessions.Get(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := requireState(sess.State(s.now()), model.StatePendingCode); err != nil {
			return err
		}
		if sess.Channel != model.ChannelGoogle {
			return errs.InvalidInput("session is not a google session")
		}
		if ident.EmailVerified && strings.EqualFold(ident.Email, sess.SubjectKey) {
			out, err = s.sessions.MarkVerified(ctx, tx, sess.ID)
			return err
		}
		out, err = s.sessions.RecordFailedAttempt(ctx, tx, sess.ID)
		if err != nil {
			return err
		}
		result = s.rejection(out)
		return nil
	})
	if err != nil {
		return model.Session{}, err
	}
	if result != nil {
		s.logger.Info("google account does not match session", "session_id", sessionID)
		return model.Session{}, result
	}
	s.logger.Info("session verified", "session_id", out.ID, "channel", out.Channel)
	return out, nil
}

// AttachTelegramChat binds a CREATED Telegram session to the chat that opened its deep
// link. If the chat's phone is already known and matches, the code is sent right away;
// otherwise the caller must ask the user to share their contact.
func (s *Service) AttachTelegramChat(ctx context.Context, sessionID string, chatID int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "verification.AttachTelegramChat")
	defer span.End()

	if s.telegram == nil {
		return false, errs.InvalidInput("telegram is not enabled")
	}
	var sent bool
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, err := s.sessions.Get(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Channel != model.ChannelTelegram {
			return errs.InvalidInput("session is not a telegram session")
		}
		switch st := sess.State(s.now()); st {
		case model.StateCreated:
		case model.StatePendingCode:
			if sess.TelegramChatID != nil && *sess.TelegramChatID == chatID {
				sent = true
				return nil
			}
			return errs.InvalidInput("session is linked to another chat")
		default:
			return requireState(st, model.StateCreated)
		}

		sess.TelegramChatID = &chatID
		contact, err := tx.GetTelegramContact(ctx, chatID)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			return tx.UpdateSession(ctx, sess)
		case err != nil:
			return err
		}
		if !phone.Matches(sess.SubjectKey, contact.Phone) {
			return tx.UpdateSession(ctx, sess)
		}
		if err := s.issueTelegramCode(ctx, tx, sess); err != nil {
			return err
		}
		sent = true
		return nil
	})
	return sent, err
}

// ShareTelegramContact records the phone a chat proved by sharing its own contact and, if
// a Telegram session is waiting on that chat, sends its code.
func (s *Service) ShareTelegramContact(ctx context.Context, chatID int64, rawPhone string) (bool, error) {
	ctx, span := tracer.Start(ctx, "verification.ShareTelegramContact")
	defer span.End()

	if s.telegram == nil {
		return false, errs.InvalidInput("telegram is not enabled")
	}
	digits, err := s.sessions.policy.Phone.Canonical(rawPhone)
	if err != nil {
		return false, err
	}

	var (
		sent   bool
		result error
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.now()
		if err := tx.UpsertTelegramContact(ctx, model.TelegramContact{ChatID: chatID, Phone: digits, UpdatedAt: now}); err != nil {
			return err
		}
		sess, err := tx.FindCreatedTelegramSession(ctx, chatID, now)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		if !phone.Matches(sess.SubjectKey, digits) {
			result = errs.InvalidInput("shared phone does not match the booking phone")
			return nil
		}
		if err := s.issueTelegramCode(ctx, tx, sess); err != nil {
			return err
		}
		sent = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return sent, result
}

func (s *Service) prepare(req StartRequest) (NewSession, error) {
	if !s.Enabled(req.Channel) {
		return NewSession{}, errs.InvalidInput("channel %q is not available", req.Channel)
	}
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return NewSession{}, errs.InvalidInput("customer name is required")
	}
	if req.MasterID == "" || req.ServiceID == "" {
		return NewSession{}, errs.InvalidInput("master and service are required")
	}
	if req.StartAt.IsZero() {
		return NewSession{}, errs.InvalidInput("start time is required")
	}

	in := NewSession{Channel: req.Channel, CustomerName: name}
	rules := s.sessions.policy.Phone
	switch req.Channel {
	case model.ChannelGoogle:
		addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
		if err != nil {
			return NewSession{}, errs.InvalidInput("invalid email address")
		}
		in.SubjectKey = strings.ToLower(addr.Address)
		if strings.TrimSpace(req.Phone) != "" {
			digits, err := rules.Canonical(req.Phone)
			if err != nil {
				return NewSession{}, err
			}
			in.ContactPhone = digits
		}
	default:
		digits, err := rules.Canonical(req.Phone)
		if err != nil {
			return NewSession{}, err
		}
		in.SubjectKey = digits
		in.ContactPhone = digits
	}
	return in, nil
}

func (s *Service) throttle(ctx context.Context, channel model.Channel, subject string) error {
	if s.limiter == nil {
		return nil
	}
	ok, retryAfter, err := s.limiter.Allow(ctx, string(channel)+":"+subject)
	if err != nil {
		// Losing the limiter must not block bookings; the per-session cooldown still applies.
		s.logger.Warn("send limiter unavailable", "err", err)
		return nil
	}
	if !ok {
		return errs.ResendCooldown(retryAfter)
	}
	return nil
}

// knownChat resolves the Telegram chat of a phone from stored contacts. Ambiguous matches
// are an error.
func (s *Service) knownChat(ctx context.Context, tx store.Tx, digits string) (*int64, error) {
	contacts, err := tx.ListTelegramContactsBySuffix(ctx, phone.SuffixKey(digits))
	if err != nil {
		return nil, err
	}
	phones := make([]string, len(contacts))
	for i, c := range contacts {
		phones[i] = c.Phone
	}
	idx, err := phone.MatchSuffix(digits, phones)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	chatID := contacts[idx].ChatID
	return &chatID, nil
}

// dispatch delivers the first code or redirect and moves the session to PENDING_CODE.
// A Telegram session without a known chat stays CREATED and gets a deep link instead.
func (s *Service) dispatch(ctx context.Context, tx store.Tx, sess model.Session, code string) (StartResult, error) {
	var res StartResult
	switch sess.Channel {
	case model.ChannelGoogle:
		state, err := s.state.Sign(sess.ID, sess.ExpiresAt)
		if err != nil {
			return StartResult{}, errs.DispatchFailed(err)
		}
		res.RedirectURL = s.oauth.AuthURL(state, sess.SubjectKey)
	case model.ChannelTelegram:
		if sess.TelegramChatID == nil {
			res.Session = sess
			res.TelegramLink = s.telegram.DeepLink(sess.ID)
			return res, nil
		}
		if err := s.sendCode(ctx, sess, code); err != nil {
			return StartResult{}, errs.DispatchFailed(err)
		}
	default:
		if err := s.sendCode(ctx, sess, code); err != nil {
			return StartResult{}, errs.DispatchFailed(err)
		}
	}
	sess, err := s.sessions.MarkDispatched(ctx, tx, sess)
	if err != nil {
		return StartResult{}, err
	}
	res.Session = sess
	return res, nil
}

func (s *Service) issueTelegramCode(ctx context.Context, tx store.Tx, sess model.Session) error {
	sess, code, err := s.sessions.Rotate(ctx, tx, sess)
	if err != nil {
		return err
	}
	if err := s.sendCode(ctx, sess, code); err != nil {
		return errs.DispatchFailed(err)
	}
	_, err = s.sessions.MarkDispatched(ctx, tx, sess)
	return err
}

func (s *Service) sendCode(ctx context.Context, sess model.Session, code string) error {
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	switch sess.Channel {
	case model.ChannelSMS:
		if s.sms == nil {
			return errors.New("sms channel not configured")
		}
		return s.sms.Send(ctx, sess.SubjectKey, CodeMessage(code, s.sessions.policy.TTL))
	case model.ChannelTelegram:
		if s.telegram == nil || sess.TelegramChatID == nil {
			return errors.New("telegram chat not linked")
		}
		return s.telegram.SendCode(ctx, *sess.TelegramChatID, code)
	default:
		return fmt.Errorf("channel %s does not send codes", sess.Channel)
	}
}

// rejection is the error reported after a failed attempt has been committed.
func (s *Service) rejection(sess model.Session) error {
	if sess.State(s.now()) == model.StateLocked {
		return errs.SessionLocked()
	}
	return errs.CodeMismatch(sess.RemainingAttempts())
}

// CodeMessage is the SMS body carrying a code.
func CodeMessage(code string, ttl time.Duration) string {
	return fmt.Sprintf("Your booking code is %s. It is valid for %d minutes.", code, int(ttl.Minutes()))
}
