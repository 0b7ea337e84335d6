// seed inserts development sample data for local testing and prints a bearer
// token for the dev org. Idempotent: skips inserts if the dev lab already exists.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"labstate/internal/config"
	"labstate/internal/db"
	labdomain "labstate/internal/lab/domain"
	labrepo "labstate/internal/lab/repository"
	"labstate/internal/security"
	signaldomain "labstate/internal/signal/domain"
	signalrepo "labstate/internal/signal/repository"
)

const (
	devOrgID   = "dev-org-001"
	devUserID  = "dev-user-001"
	devLabName = "Dev Lab"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	labs := labrepo.NewPostgresRepository(pool)
	signals := signalrepo.NewPostgresRepository(pool)

	lab, err := labs.GetByOrg(ctx, devOrgID)
	if err != nil {
		log.Fatalf("lookup lab: %v", err)
	}
	if lab == nil {
		now := time.Now().UTC()
		lab = &labdomain.Lab{
			ID:        uuid.NewString(),
			OrgID:     devOrgID,
			Name:      devLabName,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := labs.Create(ctx, lab); err != nil {
			log.Fatalf("create lab: %v", err)
		}
		if err := seedSignals(ctx, signals, lab.ID); err != nil {
			log.Fatalf("seed signals: %v", err)
		}
		log.Printf("seeded lab %s with sample signals", lab.ID)
	} else {
		log.Printf("lab %s already exists, skipping inserts", lab.ID)
	}

	validator := security.NewValidator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	token, err := validator.Issue(devUserID, devOrgID, 24*time.Hour)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Printf("lab_id: %s\ntoken:  %s\n", lab.ID, token)
}

func seedSignals(ctx context.Context, repo signalrepo.Repository, labID string) error {
	payloads := []struct {
		kind    signaldomain.Kind
		content any
	}{
		{signaldomain.KindExperiment, signaldomain.ExperimentContent{
			Technique:     "PCR amplification",
			Outcome:       "success",
			Notes:         "Amplified 1.2kb fragment, clean single band at 60C annealing.",
			EquipmentUsed: []string{"Bio-Rad T100 thermocycler"},
			ReagentsUsed:  []string{"Q5 polymerase"},
		}},
		{signaldomain.KindDocument, signaldomain.DocumentContent{
			Filename:            "crispr-protocol.pdf",
			DocumentType:        "protocol",
			TextChunks:          []string{"Standard CRISPR-Cas9 knockout protocol for HEK293 cells using lipofection."},
			ExtractedTechniques: []string{"CRISPR-Cas9", "lipofection"},
		}},
		{signaldomain.KindCorrection, signaldomain.CorrectionContent{
			CorrectionType: "remove",
			Field:          "equipment",
			ItemName:       "confocal microscope",
			Reason:         "Instrument moved to the imaging core facility.",
		}},
	}

	for _, p := range payloads {
		raw, err := json.Marshal(p.content)
		if err != nil {
			return err
		}
		sig := &signaldomain.Signal{
			ID:        uuid.NewString(),
			LabID:     labID,
			Kind:      p.kind,
			Content:   raw,
			CreatedAt: time.Now().UTC(),
			CreatedBy: devUserID,
		}
		if err := repo.Create(ctx, sig); err != nil {
			return err
		}
	}
	return nil
}
