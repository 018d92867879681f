package linking

import (
	"context"
	"strings"

	"github.com/desertthunder/spotlink/internal/models"
)

// Phase is a step of the authorization code exchange.
type Phase int

const (
	PhaseReceived Phase = iota
	PhaseValidated
	PhaseDeviceVerified
	PhaseTokenExchanged
	PhasePersisted
	PhaseComplete
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseReceived:
		return "RECEIVED"
	case PhaseValidated:
		return "VALIDATED"
	case PhaseDeviceVerified:
		return "DEVICE_VERIFIED"
	case PhaseTokenExchanged:
		return "TOKEN_EXCHANGED"
	case PhasePersisted:
		return "PERSISTED"
	case PhaseComplete:
		return "COMPLETE"
	default:
		return "ERROR"
	}
}

// CallbackParams is what the provider redirect (or a forwarding client) delivers.
type CallbackParams struct {
	Code  string
	State string
	// Error is set instead of Code when the user declined consent.
	Error            string
	ErrorDescription string
}

// ExchangeResult is the outcome of a completed exchange.
type ExchangeResult struct {
	DeviceID string
	Token    models.TokenPayload
}

// ExchangeFailure wraps an exchange error with the phase that was reached before it failed.
type ExchangeFailure struct {
	Reached Phase
	Cause   *Error
}

func (f *ExchangeFailure) Error() string { return f.Cause.Error() }

func (f *ExchangeFailure) Unwrap() error { return f.Cause }

// exchange tracks one run of the state machine.
type exchange struct {
	linker   *Linker
	params   CallbackParams
	phase    Phase
	deviceID string
	token    models.TokenPayload
}

// Exchange runs RECEIVED → VALIDATED → DEVICE_VERIFIED → TOKEN_EXCHANGED → PERSISTED → COMPLETE.
//
// The device is verified before the single-use code is spent. No step is retried: once the
// code reaches the provider, any later failure requires the user to start over.
func (l *Linker) Exchange(ctx context.Context, params CallbackParams) (ExchangeResult, error) {
	x := &exchange{linker: l, params: params, phase: PhaseReceived}
	l.logger.Debug("exchange transition", "phase", x.phase)

	steps := []struct {
		next Phase
		run  func(context.Context) *Error
	}{
		{PhaseValidated, x.validate},
		{PhaseDeviceVerified, x.verifyDevice},
		{PhaseTokenExchanged, x.exchangeCode},
		{PhasePersisted, x.persist},
	}

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			l.logger.Warn("exchange failed",
				"phase", x.phase, "failed", step.next, "kind", err.Kind, "device", x.deviceID,
				"status", err.Status, "body", err.Body, "err", err.Err)
			failed := x.phase
			x.phase = PhaseError
			return ExchangeResult{DeviceID: x.deviceID}, &ExchangeFailure{Reached: failed, Cause: err}
		}
		x.phase = step.next
		l.logger.Debug("exchange transition", "phase", x.phase, "device", x.deviceID)
	}

	x.phase = PhaseComplete
	l.logger.Info("device linked", "device", x.deviceID)
	return ExchangeResult{DeviceID: x.deviceID, Token: x.token}, nil
}

func (x *exchange) validate(ctx context.Context) *Error {
	const op = "exchange"
	if reason := strings.TrimSpace(x.params.Error); reason != "" {
		return &Error{Kind: KindAuthorizationDenied, Op: op, Body: reason, Message: x.params.ErrorDescription}
	}

	code, raw := strings.TrimSpace(x.params.Code), strings.TrimSpace(x.params.State)
	if code == "" || raw == "" {
		return &Error{Kind: KindMissingParameter, Op: op}
	}

	deviceID, err := x.linker.resolveState(ctx, op, raw)
	if err != nil {
		le, _ := AsError(err)
		return le
	}
	if deviceID == "" {
		return &Error{Kind: KindMissingParameter, Op: op}
	}

	x.params.Code = code
	x.deviceID = deviceID
	return nil
}

func (x *exchange) verifyDevice(ctx context.Context) *Error {
	lookup, err := x.linker.store.GetToken(ctx, x.deviceID)
	if err != nil {
		return storageError(KindStorageFailed, "exchange", err)
	}
	if !lookup.Exists {
		return &Error{Kind: KindDeviceNotRegistered, Op: "exchange"}
	}
	return nil
}

func (x *exchange) exchangeCode(ctx context.Context) *Error {
	token, err := x.linker.provider.Exchange(ctx, x.params.Code)
	if err != nil {
		return providerError("exchange", err)
	}
	if token.RefreshToken == "" {
		return &Error{Kind: KindNoRefreshToken, Op: "exchange"}
	}
	x.token = token
	return nil
}

func (x *exchange) persist(ctx context.Context) *Error {
	if err := x.linker.store.SetRefreshToken(ctx, x.deviceID, x.token.RefreshToken); err != nil {
		return storageError(KindPersistenceFailed, "exchange", err)
	}
	return nil
}
