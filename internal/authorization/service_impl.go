package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/memoria/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleAdmin   = "admin"
	RolePartner = "partner"
	RoleSystem  = "system"
)

const (
	ObjectCommission = "commission"
	ObjectPayout     = "payout"
	ObjectPartner    = "partner"
	ObjectOrder      = "order"
	ObjectCodeBatch  = "code_batch"
	ObjectAuditLog   = "audit_log"

	ObjectActivationCode = "activation_code"
)

const (
	ActionCommissionView    = "commission.view"
	ActionCommissionApprove = "commission.approve"
	ActionCommissionReject  = "commission.reject"
	ActionCommissionExport  = "commission.export"

	ActionPayoutCreate = "payout.create"
	ActionPayoutView   = "payout.view"

	ActionPartnerManage = "partner.manage"

	ActionOrderFulfill = "order.fulfill"
	ActionOrderCancel  = "order.cancel"

	ActionCodeBatchRequest = "code_batch.request"
	ActionCodeBatchView    = "code_batch.view"

	ActionAuditLogView = "audit_log.view"

	ActionActivationCodeRedeem = "activation_code.redeem"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	actor.Role = strings.ToLower(strings.TrimSpace(actor.Role))
	actor.ID = strings.TrimSpace(actor.ID)
	roleName, err := resolveRole(actor)
	if err != nil {
		return err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := actor.Subject()
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

// resolveRole accepts admins and partners only with a snowflake id.
func resolveRole(actor Actor) (string, error) {
	switch actor.Role {
	case RoleSystem:
		return "role:system", nil
	case RoleAdmin, RolePartner:
		id, err := snowflake.ParseString(actor.ID)
		if err != nil || id == 0 {
			return "", ErrInvalidActor
		}
		return fmt.Sprintf("role:%s", actor.Role), nil
	default:
		return "", ErrInvalidActor
	}
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor Actor, object string, action string) {
	s.log.Info("authorization denied",
		zap.String("subject", actor.Subject()),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if actor.ID != "" {
		actorID = &actor.ID
	}
	targetID := object
	_ = s.auditSvc.AuditLog(ctx, actor.Role, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Partner permissions, always scoped to the partner's own records by the handlers.
		{"role:partner", ObjectCommission, ActionCommissionView},
		{"role:partner", ObjectCommission, ActionCommissionExport},
		{"role:partner", ObjectPayout, ActionPayoutView},
		{"role:partner", ObjectCodeBatch, ActionCodeBatchRequest},
		{"role:partner", ObjectCodeBatch, ActionCodeBatchView},

		// Admin permissions
		{"role:admin", ObjectCommission, ActionCommissionView},
		{"role:admin", ObjectCommission, ActionCommissionApprove},
		{"role:admin", ObjectCommission, ActionCommissionReject},
		{"role:admin", ObjectCommission, ActionCommissionExport},
		{"role:admin", ObjectPayout, ActionPayoutCreate},
		{"role:admin", ObjectPayout, ActionPayoutView},
		{"role:admin", ObjectPartner, ActionPartnerManage},
		{"role:admin", ObjectOrder, ActionOrderFulfill},
		{"role:admin", ObjectOrder, ActionOrderCancel},
		{"role:admin", ObjectCodeBatch, ActionCodeBatchView},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// System permissions for automated processes
		{"role:system", ObjectOrder, ActionOrderCancel},
		{"role:system", ObjectCommission, ActionCommissionView},
		{"role:system", ObjectActivationCode, ActionActivationCodeRedeem},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
