package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

const (
	EnvAccessToken  = "CONNECTLY_ACCESS_TOKEN"
	EnvRefreshToken = "CONNECTLY_REFRESH_TOKEN"
)

// EnvPair reads a credential pair from the environment.
func EnvPair() (Pair, bool) {
	p := Pair{
		Access:  os.Getenv(EnvAccessToken),
		Refresh: os.Getenv(EnvRefreshToken),
	}
	return p, !p.Empty()
}

// SeedFromEnv writes the environment pair into s when s holds nothing.
// Existing credentials always win over the environment.
func SeedFromEnv(ctx context.Context, s Store, logger *zerolog.Logger) (bool, error) {
	p, ok := EnvPair()
	if !ok {
		return false, nil
	}
	if _, stored := s.Read(ctx); stored {
		return false, nil
	}
	if err := s.Write(ctx, p); err != nil {
		return false, fmt.Errorf("failed to seed credentials from environment: %w", err)
	}
	if logger != nil {
		logger.Info().Bool("has_refresh", p.Refresh != "").Msg("📝 Seeded credentials from environment")
	}
	return true, nil
}
