package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/membership-service/internal/events"
)

// AuditService writes authentication events to the security log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventUserRegistered, a.handleEvent)
	a.dispatcher.Subscribe(events.EventUserLoggedIn, a.handleEvent)
	a.dispatcher.Subscribe(events.EventLoginFailed, a.handleLoginFailed)
	a.dispatcher.Subscribe(events.EventTokenRefreshed, a.handleTokenRefreshed)
	a.dispatcher.Subscribe(events.EventSessionsRevoked, a.handleSessionsRevoked)
}

func (a *AuditService) handleEvent(_ context.Context, event events.Event) error {
	a.logger.Info(string(event.Type), baseFields(event)...)
	return nil
}

func (a *AuditService) handleLoginFailed(_ context.Context, event events.Event) error {
	fields := baseFields(event)
	if p, ok := event.Payload.(events.LoginFailedPayload); ok {
		// The email is logged; the reason tells unknown accounts from bad passwords.
		fields = append(fields, zap.String("email", p.Email), zap.String("reason", p.Reason))
	}
	a.logger.Warn(string(event.Type), fields...)
	return nil
}

func (a *AuditService) handleTokenRefreshed(_ context.Context, event events.Event) error {
	fields := baseFields(event)
	if p, ok := event.Payload.(events.TokenRefreshedPayload); ok {
		fields = append(fields, zap.Bool("rotated", p.Rotated))
	}
	a.logger.Info(string(event.Type), fields...)
	return nil
}

func (a *AuditService) handleSessionsRevoked(_ context.Context, event events.Event) error {
	fields := baseFields(event)
	if p, ok := event.Payload.(events.SessionsRevokedPayload); ok {
		fields = append(fields, zap.Int64("revoked", p.Revoked), zap.String("actor_id", p.ActorID))
	}
	a.logger.Info(string(event.Type), fields...)
	return nil
}

func baseFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.Time("at", event.Timestamp),
	}
}
