package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	core "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Store is the persistence port used by Service.
type Store interface {
	Get(ctx context.Context, tenantID, id int64) (Account, error)
	List(ctx context.Context, tenantID int64) ([]Account, error)
	Insert(ctx context.Context, a Account) (Account, error)
	Delete(ctx context.Context, tenantID, id int64) error
	HasLedgerLines(ctx context.Context, tenantID, id int64) (bool, error)
	HasChildren(ctx context.Context, tenantID, id int64) (bool, error)
	SetActive(ctx context.Context, tenantID, id int64, active bool) (Account, error)
}

// LedgerStore is the subset of account persistence used inside a posting
// unit of work.
type LedgerStore interface {
	LockForPosting(ctx context.Context, tenantID int64, ids []int64) (map[int64]Account, error)
	ApplyDelta(ctx context.Context, tenantID, id int64, amount decimal.Decimal) (decimal.Decimal, error)
	FirstByCategory(ctx context.Context, tenantID int64, category string) (Account, error)
}

// AuditPort records registry changes.
type AuditPort interface {
	Record(ctx context.Context, log core.AuditLog) error
}

// Service manages the chart of accounts.
type Service struct {
	repo   Store
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the registry service.
func NewService(repo Store, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Create validates and stores a new account. The opening balance is given on
// the account's normal side.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.TenantID <= 0 {
		return Account{}, fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	if in.Code == "" || in.Name == "" {
		return Account{}, fmt.Errorf("%w: code and name required", shared.ErrValidation)
	}
	if !in.Type.Valid() {
		return Account{}, fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, in.Type)
	}
	side := in.NormalSide
	if side == "" {
		side = in.Type.NormalSide()
	}
	if side != shared.SideDebit && side != shared.SideCredit {
		return Account{}, fmt.Errorf("%w: unknown normal side %q", shared.ErrValidation, side)
	}
	if in.IsHeader && !in.OpeningBalance.IsZero() {
		return Account{}, fmt.Errorf("%w: header accounts cannot carry an opening balance", shared.ErrValidation)
	}

	var parent *Account
	if in.ParentID != nil {
		p, err := s.repo.Get(ctx, in.TenantID, *in.ParentID)
		if err != nil {
			return Account{}, err
		}
		if !p.IsHeader || p.Type != in.Type {
			return Account{}, shared.ErrInvalidParent
		}
		parent = &p
	}

	created, err := s.repo.Insert(ctx, Account{
		TenantID:       in.TenantID,
		Code:           in.Code,
		Name:           in.Name,
		Type:           in.Type,
		NormalSide:     side,
		ParentID:       in.ParentID,
		Level:          ResolveLevel(parent),
		IsHeader:       in.IsHeader,
		Category:       strings.ToUpper(strings.TrimSpace(in.Category)),
		OpeningBalance: shared.SignedBalance(side, shared.Round2(in.OpeningBalance)),
		IsActive:       true,
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.TenantID, in.ActorID, "account.create", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Account, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// Tree returns the chart of accounts in display order.
func (s *Service) Tree(ctx context.Context, tenantID int64, filter TreeFilter) ([]TreeRow, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, filter.Type)
	}
	list, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return BuildTree(list, filter), nil
}

// Delete removes an account that was never posted to and has no children.
func (s *Service) Delete(ctx context.Context, tenantID, id, actorID int64) error {
	if _, err := s.repo.Get(ctx, tenantID, id); err != nil {
		return err
	}
	hasChildren, err := s.repo.HasChildren(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if hasChildren {
		return shared.ErrAccountInUse
	}
	hasLines, err := s.repo.HasLedgerLines(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if hasLines {
		return shared.ErrAccountInUse
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.record(ctx, tenantID, actorID, "account.delete", id, nil)
	return nil
}

// SetActive enables or disables postings to the account.
func (s *Service) SetActive(ctx context.Context, tenantID, id, actorID int64, active bool) (Account, error) {
	updated, err := s.repo.SetActive(ctx, tenantID, id, active)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, tenantID, actorID, "account.set_active", id, map[string]any{"active": active})
	return updated, nil
}

func (s *Service) record(ctx context.Context, tenantID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, core.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit account change", slog.String("action", action), slog.Any("error", err))
	}
}
