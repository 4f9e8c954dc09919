package service

import (
	"context"
	"errors"
	"strings"

	"offline-sync-engine/internal/domain"
)

const unknownBusinessName = "Unknown Business"

type ArticleService struct {
	docs *DocumentService
}

func NewArticleService(docs *DocumentService) *ArticleService {
	return &ArticleService{docs: docs}
}

func (s *ArticleService) Create(ctx context.Context, in domain.Article) (*domain.Document, error) {
	data := map[string]any{
		domain.FieldName:       in.Name,
		domain.FieldBusinessID: in.BusinessID,
	}
	if in.Qty != nil {
		data[domain.FieldQty] = *in.Qty
	}
	if in.SellingPrice != nil {
		data[domain.FieldSellingPrice] = *in.SellingPrice
	}
	return s.docs.CreateDocument(ctx, domain.CollectionArticles, data)
}

func (s *ArticleService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.docs.GetDocument(ctx, domain.CollectionArticles, id)
}

func (s *ArticleService) List(ctx context.Context) ([]*domain.Document, error) {
	return s.docs.ListDocuments(ctx, domain.CollectionArticles, nil)
}

func (s *ArticleService) ListByBusiness(ctx context.Context, businessID string) ([]*domain.Document, error) {
	return s.docs.ListDocuments(ctx, domain.CollectionArticles, map[string]string{
		domain.FieldBusinessID: businessID,
	})
}

func (s *ArticleService) Update(ctx context.Context, id string, patch map[string]any) (*domain.Document, error) {
	return s.docs.UpdateDocument(ctx, domain.CollectionArticles, id, patch)
}

func (s *ArticleService) Delete(ctx context.Context, id string) (bool, error) {
	return s.docs.DeleteDocument(ctx, domain.CollectionArticles, id)
}

// Search matches article names case-insensitively.
func (s *ArticleService) Search(ctx context.Context, term string) ([]*domain.Document, error) {
	articles, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	term = strings.ToLower(term)
	var out []*domain.Document
	for _, a := range articles {
		if strings.Contains(strings.ToLower(a.StringField(domain.FieldName)), term) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *ArticleService) ListWithBusinessName(ctx context.Context) ([]domain.ArticleWithBusinessName, error) {
	articles, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ArticleWithBusinessName, 0, len(articles))
	for _, a := range articles {
		name := unknownBusinessName
		b, err := s.docs.GetDocument(ctx, domain.CollectionBusinesses, a.StringField(domain.FieldBusinessID))
		switch {
		case err == nil:
			name = b.StringField(domain.FieldName)
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
		out = append(out, domain.ArticleWithBusinessName{Document: a, BusinessName: name})
	}
	return out, nil
}
