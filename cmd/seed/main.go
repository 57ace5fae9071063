// Command seed prepares a development database: it applies the embedded
// migrations, inserts a demo tutor roster when the directory is empty and
// prints signed access tokens for local testing.
//
// Usage:
//
//	ENV=development go run ./cmd/seed --confirm
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-connect-api/internal/models"
	"github.com/noah-isme/tutor-connect-api/internal/repository"
	"github.com/noah-isme/tutor-connect-api/internal/service"
	"github.com/noah-isme/tutor-connect-api/pkg/config"
	"github.com/noah-isme/tutor-connect-api/pkg/database"
	"github.com/noah-isme/tutor-connect-api/pkg/logger"
)

var demoTutors = []models.CreateTutorRequest{
	{Name: "Ada Lovelace", Specialty: "Mathematics", Expertise: []string{"Algebra", "Calculus"}, Level: 5, Status: "available", CommunicationModes: []string{"video", "chat"}},
	{Name: "Niels Bohr", Specialty: "Physics", Expertise: []string{"Mechanics", "Quantum"}, Level: 4, Status: "busy", CommunicationModes: []string{"video", "audio"}},
	{Name: "Marie Curie", Specialty: "Chemistry", Expertise: []string{"Organic", "Physics"}, Level: 5, Status: "available", CommunicationModes: []string{"video", "audio", "chat"}},
	{Name: "Jane Austen", Specialty: "English", Expertise: []string{"Essay Writing", "Literature"}, Level: 3, Status: "scheduled", CommunicationModes: []string{"chat"}},
	{Name: "Alan Turing", Specialty: "Computer Science", Expertise: []string{"Algorithms", "Mathematics"}, Level: 2, Status: "available"},
}

func main() {
	confirm := flag.Bool("confirm", false, "Confirm seeding (required)")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed access tokens")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Env == config.EnvProduction {
		log.Fatalf("seed refuses to run with ENV=%s", cfg.Env)
	}
	if !*confirm {
		log.Fatalf("--confirm is required: go run ./cmd/seed --confirm")
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	applied, err := database.Migrate(ctx, db, logr)
	if err != nil {
		logr.Fatal("migration failed", zap.Error(err))
	}
	logr.Info("migrations complete", zap.Strings("applied", applied))

	tutors := service.NewTutorService(repository.NewTutorRepository(db), nil, nil, nil, logr, service.TutorServiceConfig{})
	_, page, _, err := tutors.List(ctx, models.TutorFilter{PageSize: 1})
	if err != nil {
		logr.Fatal("failed to inspect tutors", zap.Error(err))
	}
	if page.TotalCount == 0 {
		for _, req := range demoTutors {
			tutor, err := tutors.Create(ctx, req)
			if err != nil {
				logr.Fatal("failed to seed tutor", zap.String("name", req.Name), zap.Error(err))
			}
			logr.Info("tutor seeded", zap.String("id", tutor.ID), zap.String("name", tutor.Name))
		}
	} else {
		logr.Info("tutor directory already populated, skipping", zap.Int("count", page.TotalCount))
	}

	tutorID := "tutor-demo"
	if listed, _, _, err := tutors.List(ctx, models.TutorFilter{PageSize: 1}); err == nil && len(listed) > 0 {
		tutorID = listed[0].ID
	}

	auth := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	for _, user := range []struct {
		id    string
		email string
		role  models.UserRole
	}{
		{"student-demo", "student@tutor-connect.local", models.RoleStudent},
		{tutorID, "tutor@tutor-connect.local", models.RoleTutor},
		{"admin-demo", "admin@tutor-connect.local", models.RoleAdmin},
	} {
		token, err := auth.IssueToken(user.id, user.email, user.role, *tokenTTL)
		if err != nil {
			logr.Fatal("failed to issue token", zap.Error(err))
		}
		fmt.Printf("%-8s %s\n", user.role, token)
	}
}
