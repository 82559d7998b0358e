// Package credentials stores API tokens for remote generation providers.
// Tokens live in the database rather than the environment so they can be
// rotated at runtime without redeploying the worker fleet.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored token for a provider, or "" when none is set.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProviderToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken stores or replaces a provider's token.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return errors.New("provider name is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}
	return s.upsert(ctx, provider, token, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertProviderToken, provider, token, raw)
	return err
}
