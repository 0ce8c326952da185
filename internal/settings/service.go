package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brasato/brasato/internal/shared"
)

const feeCacheKey = "settings:fees"

// Service serves fee schedule snapshots with a short Redis cache in front of
// app_settings. The cache is dropped eagerly on every write, so a fee change
// is visible to the next settlement as soon as the TTL allows.
type Service struct {
	repo   RepositoryPort
	rdb    *redis.Client
	ttl    time.Duration
	audit  shared.AuditPort
	logger *slog.Logger
}

func NewService(repo RepositoryPort, rdb *redis.Client, ttl time.Duration, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, rdb: rdb, ttl: ttl, audit: audit, logger: logger}
}

// FeeSchedule returns the current fee snapshot, serving from cache when warm.
// A cold or unreachable cache degrades to a direct database read.
func (s *Service) FeeSchedule(ctx context.Context) (FeeSchedule, error) {
	if s.rdb != nil {
		payload, err := s.rdb.Get(ctx, feeCacheKey).Bytes()
		if err == nil {
			var fees FeeSchedule
			if err := json.Unmarshal(payload, &fees); err == nil {
				return fees, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("settings cache read failed", "error", err)
		}
	}
	fees, err := s.loadFees(ctx)
	if err != nil {
		return FeeSchedule{}, err
	}
	if s.rdb != nil {
		if raw, err := json.Marshal(fees); err == nil {
			if err := s.rdb.Set(ctx, feeCacheKey, raw, s.ttl).Err(); err != nil {
				s.logger.Warn("settings cache write failed", "error", err)
			}
		}
	}
	return fees, nil
}

// List returns every stored setting.
func (s *Service) List(ctx context.Context) ([]Setting, error) {
	return s.repo.ListSettings(ctx)
}

// UpdateFee changes one fee percentage and invalidates the cached snapshot.
func (s *Service) UpdateFee(ctx context.Context, key string, percent float64, actorID int64) error {
	if !knownFeeKey(key) {
		return ErrUnknownKey
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidPercent
	}
	value := strconv.FormatFloat(percent, 'f', -1, 64)
	if err := s.repo.UpsertSetting(ctx, key, value); err != nil {
		return err
	}
	if s.rdb != nil {
		if err := s.rdb.Del(ctx, feeCacheKey).Err(); err != nil {
			s.logger.Warn("settings cache invalidation failed", "error", err)
		}
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "settings.update_fee",
			Entity:   "app_setting",
			EntityID: key,
			Meta:     map[string]any{"value": value},
		}); err != nil {
			s.logger.Warn("audit record failed", "key", key, "error", err)
		}
	}
	return nil
}

func (s *Service) loadFees(ctx context.Context) (FeeSchedule, error) {
	rows, err := s.repo.ListSettings(ctx)
	if err != nil {
		return FeeSchedule{}, err
	}
	var fees FeeSchedule
	for _, row := range rows {
		pct, err := strconv.ParseFloat(strings.TrimSpace(row.Value), 64)
		if err != nil {
			continue
		}
		switch row.Key {
		case KeyCreditCardFee:
			fees.CreditCard = pct
		case KeyDebitCardFee:
			fees.DebitCard = pct
		case KeyPixFee:
			fees.Pix = pct
		case KeyIfoodFee:
			fees.Ifood = pct
		case KeyUberEatsFee:
			fees.UberEats = pct
		}
	}
	return fees, nil
}
