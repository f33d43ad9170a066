package api

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// Interest is one selectable category.
type Interest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CategoriesService talks to the categories endpoint.
type CategoriesService struct {
	client *Client
}

func NewCategoriesService(client *Client) *CategoriesService {
	return &CategoriesService{client: client}
}

// Interests returns the selectable interest categories. The endpoint answers
// with a bare array rather than the usual envelope.
func (s *CategoriesService) Interests(ctx context.Context) ([]Interest, error) {
	var interests []Interest
	if err := s.client.Do(ctx, http.MethodGet, "/api/categories/", nil, &interests); err != nil {
		return nil, errors.WithMessage(err, "[CategoriesService.Interests]")
	}
	return interests, nil
}
