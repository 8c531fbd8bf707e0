package service

import (
	"context"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/logger"
	"parkreserve-backend/internal/repository"
)

type catalogService struct {
	resourceRepo repository.ResourceRepository
}

func NewCatalogService(resourceRepo repository.ResourceRepository) CatalogService {
	return &catalogService{resourceRepo: resourceRepo}
}

func (s *catalogService) ListResources(ctx context.Context, filter domain.ResourceFilter) ([]domain.Resource, error) {
	logger.EnterMethod("catalogService.ListResources", "type", filter.Type, "activeOnly", filter.ActiveOnly)
	if filter.Type != "" && !filter.Type.Valid() {
		err := domain.NewError(domain.CodeValidation, "unknown resource type %q", filter.Type)
		logger.ExitMethodWithError("catalogService.ListResources", err)
		return nil, err
	}
	resources, err := s.resourceRepo.List(ctx, filter)
	if err != nil {
		logger.ExitMethodWithError("catalogService.ListResources", err)
		return nil, err
	}
	logger.ExitMethod("catalogService.ListResources", "count", len(resources))
	return resources, nil
}

func (s *catalogService) GetResource(ctx context.Context, id int32) (*domain.Resource, error) {
	return s.resourceRepo.GetByID(ctx, id)
}
