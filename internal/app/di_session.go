package app

import (
	"fmt"

	sessionRepository "github.com/allisson/fieldvault/internal/session/repository"
	sessionService "github.com/allisson/fieldvault/internal/session/service"
	sessionUsecase "github.com/allisson/fieldvault/internal/session/usecase"
)

// TokenService returns the bearer token service.
func (c *Container) TokenService() sessionService.TokenService {
	c.tokenServiceInit.Do(func() {
		c.tokenService = sessionService.NewTokenService()
	})
	return c.tokenService
}

// RegistrationRateLimiter returns the in-process per-IP token bucket limiter
// for registration-grant issuance.
func (c *Container) RegistrationRateLimiter() *sessionService.RegistrationRateLimiter {
	c.registrationLimiterInit.Do(func() {
		c.registrationLimiter = sessionService.NewRegistrationRateLimiter(
			c.config.RegistrationRatePerSec,
			c.config.RegistrationRateBurst,
		)
	})
	return c.registrationLimiter
}

// SessionRepository returns the session repository.
func (c *Container) SessionRepository() (sessionUsecase.SessionRepository, error) {
	var err error
	c.sessionRepoInit.Do(func() {
		client, clientErr := c.RedisClient()
		if clientErr != nil {
			err = fmt.Errorf("failed to get redis client for session repository: %w", clientErr)
			c.initErrors["sessionRepo"] = err
			return
		}
		c.sessionRepo = sessionRepository.NewRedisSessionRepository(client)
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sessionRepo"]; exists {
		return nil, storedErr
	}
	return c.sessionRepo, nil
}

// DekCacheRepository returns the split-DEK cache repository.
func (c *Container) DekCacheRepository() (sessionUsecase.DekCacheRepository, error) {
	var err error
	c.dekCacheRepoInit.Do(func() {
		client, clientErr := c.RedisClient()
		if clientErr != nil {
			err = fmt.Errorf("failed to get redis client for dek cache repository: %w", clientErr)
			c.initErrors["dekCacheRepo"] = err
			return
		}
		c.dekCacheRepo = sessionRepository.NewRedisDekCacheRepository(client)
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dekCacheRepo"]; exists {
		return nil, storedErr
	}
	return c.dekCacheRepo, nil
}

// BlacklistRepository returns the token blacklist repository.
func (c *Container) BlacklistRepository() (sessionUsecase.BlacklistRepository, error) {
	var err error
	c.blacklistRepoInit.Do(func() {
		client, clientErr := c.RedisClient()
		if clientErr != nil {
			err = fmt.Errorf("failed to get redis client for blacklist repository: %w", clientErr)
			c.initErrors["blacklistRepo"] = err
			return
		}
		c.blacklistRepo = sessionRepository.NewRedisBlacklistRepository(client)
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["blacklistRepo"]; exists {
		return nil, storedErr
	}
	return c.blacklistRepo, nil
}

// RegistrationTokenRepository returns the registration grant repository.
func (c *Container) RegistrationTokenRepository() (sessionUsecase.RegistrationTokenRepository, error) {
	var err error
	c.registrationRepoInit.Do(func() {
		client, clientErr := c.RedisClient()
		if clientErr != nil {
			err = fmt.Errorf("failed to get redis client for registration repository: %w", clientErr)
			c.initErrors["registrationRepo"] = err
			return
		}
		c.registrationRepo = sessionRepository.NewRedisRegistrationTokenRepository(client)
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["registrationRepo"]; exists {
		return nil, storedErr
	}
	return c.registrationRepo, nil
}

// LockRepository returns the distributed lock repository.
func (c *Container) LockRepository() (sessionUsecase.LockRepository, error) {
	var err error
	c.lockRepoInit.Do(func() {
		client, clientErr := c.RedisClient()
		if clientErr != nil {
			err = fmt.Errorf("failed to get redis client for lock repository: %w", clientErr)
			c.initErrors["lockRepo"] = err
			return
		}
		c.lockRepo = sessionRepository.NewRedisLockRepository(client)
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["lockRepo"]; exists {
		return nil, storedErr
	}
	return c.lockRepo, nil
}

// CounterRepository returns the shared counter repository.
func (c *Container) CounterRepository() (sessionUsecase.CounterRepository, error) {
	var err error
	c.counterRepoInit.Do(func() {
		client, clientErr := c.RedisClient()
		if clientErr != nil {
			err = fmt.Errorf("failed to get redis client for counter repository: %w", clientErr)
			c.initErrors["counterRepo"] = err
			return
		}
		c.counterRepo = sessionRepository.NewRedisCounterRepository(client)
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["counterRepo"]; exists {
		return nil, storedErr
	}
	return c.counterRepo, nil
}

// IdentityProvider returns the upstream refresh provider, or nil when no
// upstream URL is configured. With a nil provider the session cache is
// authoritative: a cache miss is a terminal verification failure.
func (c *Container) IdentityProvider() sessionUsecase.IdentityProvider {
	c.identityProviderInit.Do(func() {
		if c.config.UpstreamRefreshURL == "" {
			return
		}
		c.identityProvider = sessionService.NewUpstreamRefreshProvider(
			c.config.UpstreamRefreshURL,
			c.config.UpstreamRefreshTimeout,
		)
	})
	return c.identityProvider
}

// SessionUseCase returns the session use case.
func (c *Container) SessionUseCase() (sessionUsecase.SessionUseCase, error) {
	var err error
	c.sessionUseCaseInit.Do(func() {
		c.sessionUseCase, err = c.initSessionUseCase()
		if err != nil {
			c.initErrors["sessionUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sessionUseCase"]; exists {
		return nil, storedErr
	}
	return c.sessionUseCase, nil
}

// DekCacheUseCase returns the split-DEK cache use case.
func (c *Container) DekCacheUseCase() (sessionUsecase.DekCacheUseCase, error) {
	var err error
	c.dekCacheUseCaseInit.Do(func() {
		c.dekCacheUseCase, err = c.initDekCacheUseCase()
		if err != nil {
			c.initErrors["dekCacheUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dekCacheUseCase"]; exists {
		return nil, storedErr
	}
	return c.dekCacheUseCase, nil
}

// initSessionUseCase creates the session use case with all its dependencies.
func (c *Container) initSessionUseCase() (sessionUsecase.SessionUseCase, error) {
	sessionRepo, err := c.SessionRepository()
	if err != nil {
		return nil, err
	}
	dekCacheRepo, err := c.DekCacheRepository()
	if err != nil {
		return nil, err
	}
	blacklistRepo, err := c.BlacklistRepository()
	if err != nil {
		return nil, err
	}
	registrationRepo, err := c.RegistrationTokenRepository()
	if err != nil {
		return nil, err
	}
	counterRepo, err := c.CounterRepository()
	if err != nil {
		return nil, err
	}

	baseUseCase := sessionUsecase.NewSessionUseCase(
		c.TokenService(),
		sessionRepo,
		dekCacheRepo,
		blacklistRepo,
		registrationRepo,
		counterRepo,
		c.IdentityProvider(),
		c.RegistrationRateLimiter(),
		sessionUsecase.RegistrationRateLimitPolicy{
			WindowLimit: c.config.RegistrationWindowLimit,
			Window:      c.config.RegistrationWindow,
		},
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for session use case: %w", err)
		}
		return sessionUsecase.NewSessionUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initDekCacheUseCase creates the split-DEK cache use case.
func (c *Container) initDekCacheUseCase() (sessionUsecase.DekCacheUseCase, error) {
	keyChain, err := c.CacheKeyChain()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache key chain for dek cache use case: %w", err)
	}

	dekCacheRepo, err := c.DekCacheRepository()
	if err != nil {
		return nil, err
	}

	baseUseCase := sessionUsecase.NewDekCacheUseCase(
		c.AEADManager(),
		c.SplitCustody(),
		keyChain,
		dekCacheRepo,
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for dek cache use case: %w", err)
		}
		return sessionUsecase.NewDekCacheUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
