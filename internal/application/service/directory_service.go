package service

import (
	"context"
	"errors"
	"strings"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/pkg/utils"
)

// DirectoryService maintains the per-country approver chains
type DirectoryService interface {
	List(ctx context.Context, country string) ([]*entity.Approver, error)
	Add(ctx context.Context, a *entity.Approver) (*entity.Approver, error)
}

type directoryServiceImpl struct {
	approvers port.ApproverRepository
	logger    Logger
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(approvers port.ApproverRepository, logger Logger) DirectoryService {
	return &directoryServiceImpl{approvers: approvers, logger: logger}
}

func (s *directoryServiceImpl) List(ctx context.Context, country string) ([]*entity.Approver, error) {
	list, err := s.approvers.ListByCountry(ctx, strings.TrimSpace(country))
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*entity.Approver{}
	}
	return list, nil
}

// Add inserts a directory entry. Existing suppliers keep the chain they
// were seeded with.
func (s *directoryServiceImpl) Add(ctx context.Context, in *entity.Approver) (*entity.Approver, error) {
	if in == nil {
		return nil, apperr.Validation("approver is required")
	}
	a := *in
	a.Country = strings.TrimSpace(a.Country)
	a.Name = strings.TrimSpace(a.Name)
	a.Email = strings.TrimSpace(a.Email)

	switch {
	case a.Level < 1:
		return nil, apperr.Validation("level must be at least 1")
	case a.Country == "":
		return nil, apperr.Validation("country is required")
	case a.Name == "":
		return nil, apperr.Validation("name is required")
	}
	if err := utils.ValidateEmail(a.Email); err != nil {
		return nil, apperr.Validation("%v", err)
	}

	if err := s.approvers.Create(ctx, &a); err != nil {
		if errors.Is(err, port.ErrDuplicate) {
			return nil, apperr.Conflict("Approver already exists for Level %d and Country %s", a.Level, a.Country)
		}
		s.logger.Error("Failed to add approver", "level", a.Level, "country", a.Country, "error", err)
		return nil, err
	}

	s.logger.Info("Approver added", "level", a.Level, "country", a.Country, "email", a.Email)
	return &a, nil
}
