package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

// FederatedIdentityRepository is the Mongo-backed link store for the
// external identity linker.
type FederatedIdentityRepository struct {
	links *mongo.Collection
}

// NewFederatedIdentityRepository creates the repository on the given database.
func NewFederatedIdentityRepository(db *mongo.Database) *FederatedIdentityRepository {
	return &FederatedIdentityRepository{links: db.Collection(FederatedIdentitiesCollection)}
}

// EnsureIndexes creates the unique (provider, provider_user_id) index that
// keeps an external identity bound to a single local account.
func (r *FederatedIdentityRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.links.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "provider", Value: 1},
			{Key: "provider_user_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create federated identity index: %w", err)
	}
	return nil
}

// FindByProviderUser implements domain.FederatedIdentityRepository.
func (r *FederatedIdentityRepository) FindByProviderUser(
	ctx context.Context, provider, providerUserID string,
) (*domain.FederatedIdentity, error) {
	filter := bson.M{"provider": provider, "provider_user_id": providerUserID}

	var link domain.FederatedIdentity
	if err := r.links.FindOne(ctx, filter).Decode(&link); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrFederatedIdentityNotFound
		}
		return nil, fmt.Errorf("failed to look up federated identity: %w", err)
	}
	return &link, nil
}

// Save implements domain.FederatedIdentityRepository.
func (r *FederatedIdentityRepository) Save(ctx context.Context, identity *domain.FederatedIdentity) error {
	if _, err := r.links.InsertOne(ctx, identity); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("federated identity already linked: %w", err)
		}
		return fmt.Errorf("failed to save federated identity: %w", err)
	}
	return nil
}
