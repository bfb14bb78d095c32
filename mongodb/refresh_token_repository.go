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

// RefreshTokenRepository is the Mongo-backed RefreshTokenStore. Consume is a
// FindOneAndUpdate filtered on used=false, one atomic document operation per
// key; family revocation is a plain UpdateMany.
type RefreshTokenRepository struct {
	tokens *mongo.Collection
}

// NewRefreshTokenRepository creates the repository on the given database.
func NewRefreshTokenRepository(db *mongo.Database) *RefreshTokenRepository {
	return &RefreshTokenRepository{tokens: db.Collection(RefreshTokensCollection)}
}

// EnsureIndexes creates the family index and the TTL index removing expired
// records server-side.
func (r *RefreshTokenRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.tokens.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "family_id", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create refresh token indexes: %w", err)
	}
	return nil
}

// Save implements domain.RefreshTokenStore.
func (r *RefreshTokenRepository) Save(ctx context.Context, token *domain.RefreshToken) error {
	if token.ID == "" {
		return errors.New("refresh token value cannot be empty")
	}

	if _, err := r.tokens.InsertOne(ctx, token); err != nil {
		log.Error().Err(err).Str("family_id", token.FamilyID).Msg("failed to save refresh token")
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// Consume implements domain.RefreshTokenStore. On a miss, the record is
// re-read without the used/revoked filters to tell replay apart from a
// genuinely absent or expired token.
func (r *RefreshTokenRepository) Consume(ctx context.Context, id string) (*domain.RefreshToken, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":        id,
		"used":       false,
		"revoked":    false,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{"used": true}}

	var token domain.RefreshToken
	err := r.tokens.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&token)
	if err == nil {
		return &token, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		log.Error().Err(err).Msg("failed to consume refresh token")
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	err = r.tokens.FindOne(ctx, bson.M{"_id": id}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("failed to inspect refresh token: %w", err)
	}

	switch {
	case token.Expired(now):
		return nil, serrors.ErrRefreshTokenNotFound
	case token.Revoked:
		return &token, serrors.ErrRefreshTokenRevoked
	default:
		return &token, serrors.ErrRefreshTokenUsed
	}
}

// RevokeFamily implements domain.RefreshTokenStore.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := r.tokens.UpdateMany(ctx,
		bson.M{"family_id": familyID},
		bson.M{"$set": bson.M{"revoked": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token family: %w", err)
	}
	return nil
}
