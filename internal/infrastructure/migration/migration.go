package migration

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/orris-inc/keygate/internal/shared/logger"
)

// Manager picks the migration strategy for the configured database driver.
type Manager struct {
	strategy Strategy
	logger   logger.Interface
}

// NewManager uses versioned scripts for MySQL and AutoMigrate for SQLite.
func NewManager(driver string, log logger.Interface) *Manager {
	var strategy Strategy
	switch driver {
	case "mysql":
		strategy = NewGooseStrategy(log)
	default:
		strategy = NewGormAutoMigrateStrategy(log)
	}
	return &Manager{strategy: strategy, logger: log.With("component", "migration.manager")}
}

func (m *Manager) Migrate(db *gorm.DB) error {
	m.logger.Infow("starting database migration", "strategy", m.strategy.GetName())
	if err := m.strategy.Migrate(db, AutoMigrateModels()...); err != nil {
		return fmt.Errorf("migration failed with strategy %s: %w", m.strategy.GetName(), err)
	}
	return nil
}

// Down rolls back steps versions. Only versioned strategies support it.
func (m *Manager) Down(db *gorm.DB, steps int) error {
	g, ok := m.strategy.(*GooseStrategy)
	if !ok {
		return fmt.Errorf("strategy %s does not support rollback", m.strategy.GetName())
	}
	return g.MigrateDown(db, steps)
}

func (m *Manager) Status(db *gorm.DB) error {
	g, ok := m.strategy.(*GooseStrategy)
	if !ok {
		m.logger.Infow("schema is managed by auto migration", "strategy", m.strategy.GetName())
		return nil
	}
	return g.Status(db)
}

func (m *Manager) GetStrategy() Strategy {
	return m.strategy
}
