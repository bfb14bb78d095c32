package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/velia-dev/oidc/domain"
	serrors "github.com/velia-dev/oidc/errors"
)

// AuthCodeRepository is the Mongo-backed AuthorizationCodeStore. Redemption
// rides on FindOneAndDelete, a single atomic document operation, so the
// at-most-once guarantee holds across service replicas.
type AuthCodeRepository struct {
	codes *mongo.Collection
}

// NewAuthCodeRepository creates the repository on the given database.
func NewAuthCodeRepository(db *mongo.Database) *AuthCodeRepository {
	return &AuthCodeRepository{codes: db.Collection(CodesCollection)}
}

// EnsureIndexes creates the TTL index removing expired codes server-side.
func (r *AuthCodeRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.codes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("failed to create auth code TTL index: %w", err)
	}
	return nil
}

// Save implements domain.AuthorizationCodeStore.
func (r *AuthCodeRepository) Save(ctx context.Context, code *domain.AuthorizationCode) error {
	if code.Code == "" {
		return errors.New("authorization code value cannot be empty")
	}

	if _, err := r.codes.InsertOne(ctx, code); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("authorization code already exists: %w", err)
		}
		log.Error().Err(err).Msg("failed to save authorization code")
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

// Redeem implements domain.AuthorizationCodeStore. The expiry filter runs
// inside the same atomic operation as the delete, so a code past its
// lifetime is absent even before the TTL monitor removes the document.
func (r *AuthCodeRepository) Redeem(ctx context.Context, code string) (*domain.AuthorizationCode, error) {
	filter := bson.M{
		"_id":        code,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}

	var info domain.AuthorizationCode
	err := r.codes.FindOneAndDelete(ctx, filter).Decode(&info)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrCodeNotFound
		}
		log.Error().Err(err).Msg("failed to redeem authorization code")
		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}
	return &info, nil
}
