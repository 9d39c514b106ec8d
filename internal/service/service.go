package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/identity"
	"hotelpos/backend/internal/notify"
	"hotelpos/backend/internal/numbering"
	"hotelpos/backend/internal/store"
	"hotelpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const defaultPublishTimeout = 2 * time.Second

type Options struct {
	InvoicePrefix string
	Now           func() time.Time
	// PublishTimeout bounds each kitchen broadcast. Zero means two seconds.
	PublishTimeout time.Duration
}

type Service struct {
	repo           store.Repository
	identity       *identity.Checker
	broadcaster    notify.Broadcaster
	validate       *validator.Validate
	invoiceScope   numbering.Scope
	now            func() time.Time
	publishTimeout time.Duration
}

func New(repo store.Repository, broadcaster notify.Broadcaster, opts Options) *Service {
	if broadcaster == nil {
		broadcaster = notify.NoopBroadcaster{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	return &Service{
		repo:           repo,
		identity:       identity.NewChecker(repo),
		broadcaster:    broadcaster,
		validate:       newValidator(),
		invoiceScope:   numbering.Invoice(opts.InvoicePrefix),
		now:            opts.Now,
		publishTimeout: opts.PublishTimeout,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		d, ok := field.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		line := sl.Current().Interface().(domain.CartLine)
		reportQuantityScale(sl, line.Quantity, "quantity", "Quantity")
	}, domain.CartLine{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		line := sl.Current().Interface().(domain.PurchaseOrderItemInput)
		reportQuantityScale(sl, line.QuantityOrdered, "quantity_ordered", "QuantityOrdered")
	}, domain.PurchaseOrderItemInput{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		item := sl.Current().Interface().(domain.InventoryItemCreateRequest)
		reportQuantityScale(sl, item.CurrentStock, "current_stock", "CurrentStock")
		reportQuantityScale(sl, item.MinimumStock, "minimum_stock", "MinimumStock")
	}, domain.InventoryItemCreateRequest{})
	return v
}

func reportQuantityScale(sl validator.StructLevel, qty decimal.Decimal, field string, structField string) {
	if !domain.FitsQuantityScale(qty) {
		sl.ReportError(qty, field, structField, "scale", strconv.Itoa(domain.QuantityScale))
	}
}

// check validates req and reports every failing field as one ErrValidation.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "numeric":
		return field + " must contain digits only"
	case "min":
		return fmt.Sprintf("%s must have at least %s characters or entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s characters", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "scale":
		return fmt.Sprintf("%s must have at most %s decimal places", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

// fieldPath drops the struct name so "CreateOrderRequest.items[0].quantity"
// reads as "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, fmt.Errorf("%w: sign in required", store.ErrAuthentication)
	}
	return actor, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the backing store when it can be checked.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.repo.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// PingBroadcaster checks the kitchen broadcast channel. Broadcasting is best
// effort, so callers report a failure here without failing the request.
func (s *Service) PingBroadcaster(ctx context.Context) error {
	if p, ok := s.broadcaster.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		RequestID:     xid.RequestIDFrom(ctx),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("audit: write failed")
	}
}
