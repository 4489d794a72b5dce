package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/ident"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/naming"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
	"github.com/bizzlechizzle/aupat/pkg/rule"
)

// LocationService 桌面端与命令行的地点管理.
type LocationService struct {
	db    *gorm.DB
	ids   *ident.Generator
	clock *model.RevisionClock
}

// NewLocationService 创建 LocationService.
func NewLocationService(db *gorm.DB, ids *ident.Generator, clock *model.RevisionClock) *LocationService {
	return &LocationService{db: db, ids: ids, clock: clock}
}

// Create 新建地点. 标识符在插入事务内生成.
func (s *LocationService) Create(ctx context.Context, req *types.CreateLocationRequest) (*types.LocationInfo, error) {
	if req == nil {
		return nil, fmt.Errorf("empty request: %w", errs.ErrValidationFailed)
	}

	if err := rule.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrValidationFailed, err)
	}

	now := model.Stamp(time.Now())
	loc := &model.Location{
		Name:      req.Name,
		ShortName: req.ShortName,
		State:     req.State,
		Type:      req.Type,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}

	if loc.ShortName == "" {
		loc.ShortName = naming.ShortName(req.Name)
	}

	rev := s.clock.Begin()
	defer rev.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := s.ids.Generate(ctx, tx, loc.TableName())
		if err != nil {
			return err
		}

		loc.ID = id
		loc.CreatedAt = now
		loc.UpdatedAt = now
		loc.ModifiedAt = rev.Next()

		return tx.Create(loc).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create location: %w", err)
	}

	info := locationInfo(loc)

	return &info, nil
}

// Get 按 ID 读取地点.
func (s *LocationService) Get(ctx context.Context, id string) (*model.Location, error) {
	var loc model.Location

	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("location %s: %w", id, errs.ErrNotFound)
	}

	if err != nil {
		return nil, err
	}

	return &loc, nil
}

// Resolve 按完整 ID、ID 前缀或短名查找地点.
func (s *LocationService) Resolve(ctx context.Context, ref string) (*model.Location, error) {
	if ident.Valid(ref) {
		return s.Get(ctx, ref)
	}

	var locs []model.Location

	q := s.db.WithContext(ctx).Limit(2)
	if len(ref) >= 8 {
		q = q.Where("short_name = ? OR (id >= ? AND id < ?)", ref, ref, ref+"~")
	} else {
		q = q.Where("short_name = ?", ref)
	}

	if err := q.Find(&locs).Error; err != nil {
		return nil, err
	}

	switch len(locs) {
	case 0:
		return nil, fmt.Errorf("location %q: %w", ref, errs.ErrNotFound)
	case 1:
		return &locs[0], nil
	default:
		return nil, fmt.Errorf("location %q is ambiguous: %w", ref, errs.ErrValidationFailed)
	}
}

// List 按名称列出地点.
func (s *LocationService) List(ctx context.Context) (*types.ListLocationsResponse, error) {
	var locs []model.Location
	if err := s.db.WithContext(ctx).Order("name").Find(&locs).Error; err != nil {
		return nil, err
	}

	resp := &types.ListLocationsResponse{Locations: make([]types.LocationInfo, 0, len(locs))}
	for i := range locs {
		resp.Locations = append(resp.Locations, locationInfo(&locs[i]))
	}

	return resp, nil
}
