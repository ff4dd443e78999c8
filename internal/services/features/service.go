// Package features composes the per-order feature vector from historical
// aggregates, blacklist membership and the order payload itself. The
// sub-lookups fan out concurrently and the extraction fails whole when
// any one of them fails; scoring never runs on a silently partial vector.
package features

import (
	"context"
	"fmt"
	"time"

	"rtoshield/internal/config"
	"rtoshield/internal/errs"
	"rtoshield/internal/metrics"
	"rtoshield/internal/models"
	"rtoshield/internal/repositories"
	"rtoshield/internal/services/phone"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Cache TTLs per data class. Phone and address aggregates move fast,
// city aggregates barely move.
const (
	phoneCacheTTL     = 2 * time.Minute
	addressCacheTTL   = 5 * time.Minute
	cityCacheTTL      = 30 * time.Minute
	customerCacheTTL  = 2 * time.Minute
	blacklistCacheTTL = time.Minute
)

const (
	highValueAmount     = 5000
	highDiscountPercent = 40
	nightOrderStartHour = 22
	nightOrderEndHour   = 6
	zeroHistoryAmountV  = 1.0 // amount_vs_customer_avg neutral default
)

type service struct {
	orders     repositories.OrderRepository
	phones     repositories.PhoneRepository
	stats      repositories.StatsRepository
	blacklist  repositories.BlacklistRepository
	cache      repositories.CacheRepository
	normalizer *phone.Normalizer
	cities     *config.CityTiers
	metrics    metrics.Collector
	logger     *zap.Logger
}

// NewService creates the feature extractor.
func NewService(
	orders repositories.OrderRepository,
	phones repositories.PhoneRepository,
	stats repositories.StatsRepository,
	blacklist repositories.BlacklistRepository,
	cache repositories.CacheRepository,
	normalizer *phone.Normalizer,
	cities *config.CityTiers,
	collector metrics.Collector,
	logger *zap.Logger,
) Extractor {
	if orders == nil || phones == nil || stats == nil || blacklist == nil {
		panic("repositories are required")
	}
	if normalizer == nil {
		panic("phone normalizer is required")
	}
	if cities == nil {
		panic("city tiers are required")
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		orders:     orders,
		phones:     phones,
		stats:      stats,
		blacklist:  blacklist,
		cache:      cache,
		normalizer: normalizer,
		cities:     cities,
		metrics:    collector,
		logger:     logger,
	}
}

type blacklistFlags struct {
	Phone bool `json:"phone"`
	Email bool `json:"email"`
	IP    bool `json:"ip"`
}

// Extract builds the feature vector. All history lookups run
// concurrently; the first failure aborts the whole extraction.
func (s *service) Extract(ctx context.Context, order *models.Order) (*OrderFeatures, error) {
	f := s.staticFeatures(order)

	var (
		phoneRec *models.PhoneRecord
		addrStat *models.AddressStat
		cityStat *models.CityStat
		history  *repositories.CustomerHistory
		flags    blacklistFlags
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		phoneRec, err = s.lookupPhone(gctx, order.PhoneNormalized)
		return err
	})
	g.Go(func() error {
		var err error
		addrStat, err = s.lookupAddress(gctx, order.TenantID, order.AddressKey)
		return err
	})
	g.Go(func() error {
		var err error
		cityStat, err = s.lookupCity(gctx, order.ShippingCity)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.lookupCustomer(gctx, order)
		return err
	})
	g.Go(func() error {
		var err error
		flags, err = s.lookupBlacklist(gctx, order)
		return err
	})

	if err := g.Wait(); err != nil {
		s.metrics.RecordError("feature_extract", errs.KindOf(err).String())
		return nil, fmt.Errorf("feature extraction for order %d: %w", order.ID, err)
	}

	s.applyPhone(f, phoneRec, order.PlacedAt)
	s.applyAddress(f, addrStat)
	s.applyCity(f, cityStat, order.ShippingCity)
	s.applyCustomer(f, history, order.Amount)
	f.PhoneBlacklisted = flags.Phone
	f.EmailBlacklisted = flags.Email
	f.IPBlacklisted = flags.IP

	return f, nil
}

func (s *service) staticFeatures(order *models.Order) *OrderFeatures {
	placedAt := order.PlacedAt
	if placedAt.IsZero() {
		placedAt = order.CreatedAt
	}
	hour := placedAt.Hour()
	weekday := placedAt.Weekday()

	// The order's own phone is the authority on validity; a first-seen
	// number must not read as invalid just because no aggregate exists.
	raw := order.CustomerPhone
	if order.PhoneNormalized != "" {
		raw = order.PhoneNormalized
	}
	normalized := s.normalizer.Normalize(raw)

	return &OrderFeatures{
		PhoneValid:          normalized.IsValid,
		PhoneIsMobile:       normalized.IsMobile,
		OrderAmount:         order.Amount,
		ItemCount:           float64(order.ItemCount),
		IsCOD:               order.IsCOD(),
		IsHighValue:         order.Amount > highValueAmount,
		OrderHour:           float64(hour),
		IsWeekend:           weekday == time.Saturday || weekday == time.Sunday,
		IsNightOrder:        hour >= nightOrderStartHour || hour < nightOrderEndHour,
		DiscountPercent:     order.DiscountPercent,
		IsHighDiscount:      order.DiscountPercent > highDiscountPercent,
		AmountVsCustomerAvg: zeroHistoryAmountV,
	}
}

func (s *service) lookupPhone(ctx context.Context, phone string) (*models.PhoneRecord, error) {
	if phone == "" {
		return nil, nil
	}
	var rec models.PhoneRecord
	found, err := s.cachedFetch(ctx, "feat:phone:"+phone, "phone", phoneCacheTTL, &rec, func() (interface{}, error) {
		r, err := s.phones.GetByNormalized(ctx, phone)
		if err == repositories.ErrPhoneNotFound {
			return nil, nil
		}
		return r, err
	})
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (s *service) lookupAddress(ctx context.Context, tenantID uint, addressKey string) (*models.AddressStat, error) {
	if addressKey == "" {
		return nil, nil
	}
	key := fmt.Sprintf("feat:addr:%d:%s", tenantID, addressKey)
	var stat models.AddressStat
	found, err := s.cachedFetch(ctx, key, "address", addressCacheTTL, &stat, func() (interface{}, error) {
		r, err := s.stats.GetAddress(ctx, tenantID, addressKey)
		if err == repositories.ErrStatNotFound {
			return nil, nil
		}
		return r, err
	})
	if err != nil || !found {
		return nil, err
	}
	return &stat, nil
}

func (s *service) lookupCity(ctx context.Context, city string) (*models.CityStat, error) {
	if city == "" {
		return nil, nil
	}
	var stat models.CityStat
	found, err := s.cachedFetch(ctx, "feat:city:"+city, "city", cityCacheTTL, &stat, func() (interface{}, error) {
		r, err := s.stats.GetCity(ctx, city)
		if err == repositories.ErrStatNotFound {
			return nil, nil
		}
		return r, err
	})
	if err != nil || !found {
		return nil, err
	}
	return &stat, nil
}

func (s *service) lookupCustomer(ctx context.Context, order *models.Order) (*repositories.CustomerHistory, error) {
	key := fmt.Sprintf("feat:cust:%d:%s:%s", order.TenantID, order.PhoneNormalized, order.CustomerEmail)
	var history repositories.CustomerHistory
	found, err := s.cachedFetch(ctx, key, "customer", customerCacheTTL, &history, func() (interface{}, error) {
		return s.orders.CustomerHistory(ctx, order.TenantID, order.PhoneNormalized, order.CustomerEmail, order.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return &repositories.CustomerHistory{}, nil
	}
	return &history, nil
}

func (s *service) lookupBlacklist(ctx context.Context, order *models.Order) (blacklistFlags, error) {
	key := fmt.Sprintf("feat:bl:%d:%s:%s:%s", order.TenantID, order.PhoneNormalized, order.CustomerEmail, order.CustomerIP)
	var flags blacklistFlags
	found, err := s.cachedFetch(ctx, key, "blacklist", blacklistCacheTTL, &flags, func() (interface{}, error) {
		var out blacklistFlags
		var err error
		if out.Phone, err = s.blacklist.IsListed(ctx, order.TenantID, models.BlacklistTypePhone, order.PhoneNormalized); err != nil {
			return nil, err
		}
		if out.Email, err = s.blacklist.IsListed(ctx, order.TenantID, models.BlacklistTypeEmail, order.CustomerEmail); err != nil {
			return nil, err
		}
		if out.IP, err = s.blacklist.IsListed(ctx, order.TenantID, models.BlacklistTypeIP, order.CustomerIP); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil || !found {
		return blacklistFlags{}, err
	}
	return flags, nil
}

// cachedFetch reads dest from the cache or falls back to fetch and
// repopulates. Cache failures fail open: the fetch still runs and the
// error is only logged. Returns false when the fetch legitimately found
// nothing (zero history).
func (s *service) cachedFetch(ctx context.Context, key, class string, ttl time.Duration, dest interface{}, fetch func() (interface{}, error)) (bool, error) {
	if s.cache != nil {
		err := s.cache.Get(ctx, key, dest)
		if err == nil {
			s.metrics.RecordCacheHit(class)
			return true, nil
		}
		if err != repositories.ErrCacheMiss {
			s.logger.Warn("feature cache read failed, proceeding uncached",
				zap.String("key", key), zap.Error(err))
		}
		s.metrics.RecordCacheMiss(class)
	}

	value, err := fetch()
	if err != nil {
		return false, errs.Dependency("feature_lookup_"+class, err)
	}
	if value == nil || isNilPointer(value) {
		return false, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, value, ttl); err != nil {
			s.logger.Warn("feature cache write failed",
				zap.String("key", key), zap.Error(err))
		}
	}
	return true, copyValue(value, dest)
}
