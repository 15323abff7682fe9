package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/feastline/feastline-backend/internal/platform/envutil"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
)

type Service struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

// New opens the plan store. DB_DRIVER=sqlite selects an embedded file
// database for local development; anything else connects to Postgres.
func New(log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DBService")

	driver := strings.ToLower(envutil.Str("DB_DRIVER", "postgres"))
	var (
		conn *gorm.DB
		err  error
	)
	switch driver {
	case "sqlite":
		path := envutil.Str("SQLITE_PATH", "feastline.db")
		serviceLog.Info("Opening sqlite database", "path", path)
		conn, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	default:
		driver = "postgres"
		host := envutil.Str("POSTGRES_HOST", "localhost")
		port := envutil.Str("POSTGRES_PORT", "5432")
		user := envutil.Str("POSTGRES_USER", "postgres")
		password := envutil.Str("POSTGRES_PASSWORD", "")
		name := envutil.Str("POSTGRES_NAME", "feastline")
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		serviceLog.Info("Connecting to Postgres...", "host", host, "db", name)
		conn, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "postgres" {
		if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
		}
	}

	return &Service{db: conn, driver: driver, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

// AutoMigrateAll migrates every table and, on Postgres, wires each child
// table to meal_plan with ON DELETE CASCADE so deleting a plan removes its
// whole entity graph.
func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := s.db.AutoMigrate(
		&types.MealPlan{},
		&types.Attendee{},
		&types.AgentDecision{},
		&types.SelectedRecipe{},
		&types.ShoppingItem{},
		&types.BudgetAnalysis{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if s.driver != "postgres" {
		return nil
	}
	for _, child := range []string{
		"attendee",
		"agent_decision",
		"selected_recipe",
		"shopping_item",
		"budget_analysis",
	} {
		stmt := fmt.Sprintf(`
			ALTER TABLE %q
			DROP CONSTRAINT IF EXISTS "fk_%s_plan_id";
		`, child, child)
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("drop fk for %s: %w", child, err)
		}
		stmt = fmt.Sprintf(`
			ALTER TABLE %q
			ADD CONSTRAINT "fk_%s_plan_id"
			FOREIGN KEY ("plan_id")
			REFERENCES "meal_plan"("id")
			ON DELETE CASCADE;
		`, child, child)
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("add fk for %s: %w", child, err)
		}
	}
	return nil
}
