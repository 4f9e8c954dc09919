package service

import (
	"context"

	"offline-sync-engine/internal/domain"

	"go.uber.org/zap"
)

type BusinessService struct {
	docs   *DocumentService
	logger *zap.Logger
}

func NewBusinessService(docs *DocumentService, logger *zap.Logger) *BusinessService {
	return &BusinessService{docs: docs, logger: logger}
}

func (s *BusinessService) Create(ctx context.Context, in domain.Business) (*domain.Document, error) {
	return s.docs.CreateDocument(ctx, domain.CollectionBusinesses, map[string]any{
		domain.FieldName: in.Name,
	})
}

func (s *BusinessService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.docs.GetDocument(ctx, domain.CollectionBusinesses, id)
}

func (s *BusinessService) List(ctx context.Context) ([]*domain.Document, error) {
	return s.docs.ListDocuments(ctx, domain.CollectionBusinesses, nil)
}

func (s *BusinessService) Update(ctx context.Context, id string, patch map[string]any) (*domain.Document, error) {
	return s.docs.UpdateDocument(ctx, domain.CollectionBusinesses, id, patch)
}

// Delete soft-deletes every live article of the business, then the
// business itself.
func (s *BusinessService) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := s.docs.GetDocument(ctx, domain.CollectionBusinesses, id); err != nil {
		return false, err
	}

	articles, err := s.docs.ListDocuments(ctx, domain.CollectionArticles, map[string]string{
		domain.FieldBusinessID: id,
	})
	if err != nil {
		return false, err
	}

	for _, a := range articles {
		if _, err := s.docs.DeleteDocument(ctx, domain.CollectionArticles, a.ID); err != nil {
			return false, err
		}
	}

	if _, err := s.docs.DeleteDocument(ctx, domain.CollectionBusinesses, id); err != nil {
		return false, err
	}

	s.logger.Info("business and associated articles deleted",
		zap.String("business_id", id),
		zap.Int("articles", len(articles)),
	)
	return true, nil
}

func (s *BusinessService) ListWithArticleCount(ctx context.Context) ([]domain.BusinessWithArticleCount, error) {
	businesses, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.BusinessWithArticleCount, 0, len(businesses))
	for _, b := range businesses {
		articles, err := s.docs.ListDocuments(ctx, domain.CollectionArticles, map[string]string{
			domain.FieldBusinessID: b.ID,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, domain.BusinessWithArticleCount{Document: b, ArticleCount: len(articles)})
	}
	return out, nil
}
