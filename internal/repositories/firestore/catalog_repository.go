package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/food-hunger/api/internal/domain"
	pfirestore "github.com/food-hunger/api/internal/platform/firestore"
	"github.com/food-hunger/api/internal/repositories"
)

const (
	restaurantsCollection = "restaurants"
	menuItemsCollection   = "menu_items"
)

// CatalogRepository reads restaurant and menu item documents from Firestore.
type CatalogRepository struct {
	restaurants *pfirestore.BaseRepository[restaurantDocument]
	menuItems   *pfirestore.BaseRepository[menuItemDocument]
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs a Firestore-backed catalog read model.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository: firestore provider is required")
	}
	return &CatalogRepository{
		restaurants: pfirestore.NewBaseRepository[restaurantDocument](provider, restaurantsCollection, nil, nil),
		menuItems:   pfirestore.NewBaseRepository[menuItemDocument](provider, menuItemsCollection, nil, nil),
	}, nil
}

// GetMenuItem fetches a menu item and verifies it belongs to the given restaurant.
// A menu item stored under a different restaurant reports not found.
func (r *CatalogRepository) GetMenuItem(ctx context.Context, restaurantID, menuItemID string) (domain.MenuItem, error) {
	if r == nil || r.menuItems == nil {
		return domain.MenuItem{}, errors.New("catalog repository not initialised")
	}
	restaurantID = strings.TrimSpace(restaurantID)
	menuItemID = strings.TrimSpace(menuItemID)
	if restaurantID == "" {
		return domain.MenuItem{}, errors.New("catalog repository: restaurant id is required")
	}
	if menuItemID == "" {
		return domain.MenuItem{}, errors.New("catalog repository: menu item id is required")
	}

	doc, err := r.menuItems.Get(ctx, menuItemID)
	if err != nil {
		return domain.MenuItem{}, err
	}
	if doc.Data.RestaurantID != restaurantID {
		return domain.MenuItem{}, &notFoundError{resource: "menu item", id: menuItemID}
	}

	return domain.MenuItem{
		ID:           menuItemID,
		RestaurantID: doc.Data.RestaurantID,
		Name:         doc.Data.Name,
		Price:        doc.Data.Price,
		Available:    doc.Data.Available,
	}, nil
}

// RestaurantExists reports whether an active restaurant document exists.
func (r *CatalogRepository) RestaurantExists(ctx context.Context, restaurantID string) (bool, error) {
	if r == nil || r.restaurants == nil {
		return false, errors.New("catalog repository not initialised")
	}
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return false, errors.New("catalog repository: restaurant id is required")
	}

	doc, err := r.restaurants.Get(ctx, restaurantID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return false, nil
		}
		return false, err
	}
	return doc.Data.IsActive, nil
}

type restaurantDocument struct {
	Name     string `firestore:"name"`
	IsActive bool   `firestore:"isActive"`
}

type menuItemDocument struct {
	RestaurantID string `firestore:"restaurantId"`
	Name         string `firestore:"name"`
	Price        int64  `firestore:"price"`
	Available    bool   `firestore:"available"`
}

// notFoundError satisfies repositories.RepositoryError for catalog lookups that
// resolve a document outside the requested restaurant.
type notFoundError struct {
	resource string
	id       string
}

func (e *notFoundError) Error() string {
	return e.resource + " " + e.id + ": not found"
}

func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }
