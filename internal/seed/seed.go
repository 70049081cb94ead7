// internal/seed/seed.go
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/repository"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SystemOwnerID owns the Open Grove.
const SystemOwnerID = "system"

// DemoOwnerID owns the development demo grove. Mint a token for it with
// `grovectl dev-token --sub demo-owner`.
const DemoOwnerID = "demo-owner"

// EnsureOpenGrove creates the Open Grove that hosts public memorials when it
// does not exist yet.
func EnsureOpenGrove(ctx context.Context, repos *repository.Repositories, openGroveID string, now time.Time) (*repository.Grove, error) {
	existing, err := repos.GroveRepo.FindByID(ctx, openGroveID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up open grove: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	grove := &repository.Grove{
		ID:           openGroveID,
		Name:         "Open Grove",
		OwnerID:      SystemOwnerID,
		PlanType:     "open",
		TreeLimit:    1 << 30,
		MonthlyPrice: decimal.Zero,
		Status:       repository.GroveActive,
		CreatedAt:    now,
	}
	if err := repos.GroveRepo.Create(ctx, grove); err != nil {
		return nil, fmt.Errorf("failed to create open grove: %w", err)
	}
	return grove, nil
}

// SeedData loads development data. It is safe to run on every start.
func SeedData(ctx context.Context, repos *repository.Repositories, services *service.Services, openGroveID string, log zerolog.Logger) error {
	now := time.Now().UTC()

	if _, err := EnsureOpenGrove(ctx, repos, openGroveID, now); err != nil {
		return err
	}

	groves, err := repos.GroveRepo.FindByOwner(ctx, DemoOwnerID)
	if err != nil {
		return fmt.Errorf("failed to check demo grove: %w", err)
	}
	if len(groves) > 0 {
		log.Info().Msg("[Seed] Data already exists, skipping...")
		return nil
	}

	log.Info().Msg("[Seed] Creating demo grove...")

	family := service.GrovePlans()[1]
	grove := &repository.Grove{
		Name:         "Demo Family Grove",
		OwnerID:      DemoOwnerID,
		PlanType:     family.Type,
		TreeLimit:    family.TreeLimit,
		MonthlyPrice: family.MonthlyPrice,
		Status:       repository.GroveActive,
		CreatedAt:    now,
	}
	if err := repos.GroveRepo.Create(ctx, grove); err != nil {
		return fmt.Errorf("failed to create demo grove: %w", err)
	}

	owner := &service.Caller{AccountID: DemoOwnerID, Email: "demo@grove.local", DisplayName: "Demo Owner"}
	memorials := []struct {
		name  string
		born  int
		died  int
		grove string
		story string
	}{
		{"Eleanor Whitfield", 1921, 2008, grove.ID, "She kept bees behind the schoolhouse for forty years."},
		{"Thomas Whitfield", 1918, 1999, grove.ID, "Every Sunday he walked the whole family to the river."},
		{"Rosa Delgado", 1935, 2017, "", "Her kitchen was open to anyone on the street."},
	}

	for _, m := range memorials {
		born := time.Date(m.born, time.January, 1, 0, 0, 0, 0, time.UTC)
		died := time.Date(m.died, time.January, 1, 0, 0, 0, 0, time.UTC)
		res, err := services.Person.CreateLegacyPerson(ctx, owner, service.CreatePersonInput{
			Name:          m.name,
			BirthDate:     &born,
			DeathDate:     &died,
			GroveID:       m.grove,
			Resolution:    service.ResolutionCreateAnyway,
			InitialMemory: &service.MemoryInput{Title: "A first memory", Body: m.story},
		})
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", m.name, err)
		}
		log.Info().Str("person", res.Person.ID).Str("name", m.name).Msg("[Seed] planted memorial")
	}

	log.Info().Msg("[Seed] Seeding completed")
	return nil
}
