package audit

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// ExportLimit caps the rows of one CSV export.
	ExportLimit = 10000
)

// Repository reads recorded audit entries, newest first.
type Repository interface {
	AuditTimeline(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo Repository
}

// NewService membuat service audit timeline baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline mengambil data audit dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if err := s.check(filters); err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := query(filters)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	rows, err := s.repo.AuditTimeline(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export mengambil seluruh data timeline tanpa paging, dibatasi ExportLimit.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if err := s.check(filters); err != nil {
		return nil, err
	}
	q := query(filters)
	q.Limit = ExportLimit
	return s.repo.AuditTimeline(ctx, q)
}

func (s *Service) check(filters TimelineFilters) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	if filters.TenantID <= 0 {
		return fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return fmt.Errorf("%w: from is after to", shared.ErrValidation)
	}
	return nil
}

func query(filters TimelineFilters) Query {
	return Query{
		TenantID: filters.TenantID,
		From:     filters.From,
		To:       filters.To,
		ActorID:  filters.ActorID,
		Entity:   filters.Entity,
		EntityID: filters.EntityID,
		Action:   filters.Action,
	}
}
