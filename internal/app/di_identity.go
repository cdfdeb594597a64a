package app

import (
	"fmt"

	identityRepository "github.com/allisson/fieldvault/internal/identity/repository"
	identityUsecase "github.com/allisson/fieldvault/internal/identity/usecase"
)

// IdentityRepository returns the identity repository based on database driver.
func (c *Container) IdentityRepository() (identityUsecase.IdentityRepository, error) {
	var err error
	c.identityRepoInit.Do(func() {
		c.identityRepo, err = c.initIdentityRepository()
		if err != nil {
			c.initErrors["identityRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["identityRepo"]; exists {
		return nil, storedErr
	}
	return c.identityRepo, nil
}

// IdentityUseCase returns the identity use case.
func (c *Container) IdentityUseCase() (identityUsecase.UseCase, error) {
	var err error
	c.identityUseCaseInit.Do(func() {
		c.identityUseCase, err = c.initIdentityUseCase()
		if err != nil {
			c.initErrors["identityUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["identityUseCase"]; exists {
		return nil, storedErr
	}
	return c.identityUseCase, nil
}

// initIdentityRepository creates the identity repository based on the database driver.
func (c *Container) initIdentityRepository() (identityUsecase.IdentityRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for identity repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return identityRepository.NewPostgreSQLIdentityRepository(db), nil
	case "mysql":
		return identityRepository.NewMySQLIdentityRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initIdentityUseCase creates the identity use case with all its dependencies.
func (c *Container) initIdentityUseCase() (identityUsecase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for identity use case: %w", err)
	}

	identityRepo, err := c.IdentityRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get identity repository for identity use case: %w", err)
	}

	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get key manager for identity use case: %w", err)
	}

	sessionUseCase, err := c.SessionUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get session use case for identity use case: %w", err)
	}

	dekCacheUseCase, err := c.DekCacheUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get dek cache use case for identity use case: %w", err)
	}

	lockRepo, err := c.LockRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get lock repository for identity use case: %w", err)
	}

	counterRepo, err := c.CounterRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get counter repository for identity use case: %w", err)
	}

	baseUseCase, err := identityUsecase.NewIdentityUseCase(
		txManager,
		identityRepo,
		keyManager,
		c.SplitCustody(),
		c.FieldCodec(),
		sessionUseCase,
		dekCacheUseCase,
		lockRepo,
		counterRepo,
		identityUsecase.LockoutPolicy{
			MaxAttempts: c.config.LockoutMaxAttempts,
			Duration:    c.config.LockoutDuration,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity use case: %w", err)
	}

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for identity use case: %w", err)
		}
		return identityUsecase.NewIdentityUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
