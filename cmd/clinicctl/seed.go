package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neiandria/clinic-scheduling/internal/records"
)

var specialties = []string{
	"Clínica Geral",
	"Pediatria",
	"Cardiologia",
	"Dermatologia",
	"Ortopedia",
	"Neurologia",
	"Ginecologia",
	"Oftalmologia",
}

var states = []string{"SP", "RJ", "MG", "RS", "PR", "BA"}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake doctors and patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctors, _ := cmd.Flags().GetInt("doctors")
			patients, _ := cmd.Flags().GetInt("patients")
			seed, _ := cmd.Flags().GetUint64("seed")

			ctx := cmd.Context()
			_, pool, logger, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			defer func() { _ = logger.Sync() }()

			logger.Info("seed starting", zap.Int("doctors", doctors), zap.Int("patients", patients))
			if err := seedDirectory(ctx, records.NewPgDirectory(pool), gofakeit.New(seed), doctors, patients, logger); err != nil {
				return err
			}
			logger.Info("seed complete")
			return nil
		},
	}
	cmd.Flags().Int("doctors", 20, "Number of doctors to insert")
	cmd.Flags().Int("patients", 500, "Number of patients to insert")
	cmd.Flags().Uint64("seed", 0, "Faker seed, 0 picks a random one")
	return cmd
}

// seedDirectory fills dir with fake records. IDs are left to the directory.
func seedDirectory(ctx context.Context, dir records.Directory, f *gofakeit.Faker, doctors, patients int, logger *zap.Logger) error {
	for i := 0; i < doctors; i++ {
		doc := records.Doctor{
			Name:      "Dr. " + f.Name(),
			Email:     f.Email(),
			Phone:     f.Numerify("(##) 9####-####"),
			Specialty: specialties[f.Number(0, len(specialties)-1)],
			CRM:       states[f.Number(0, len(states)-1)] + f.Numerify("#####"),
			CPF:       f.Numerify("###.###.###-##"),
		}
		if _, err := dir.AddDoctor(ctx, doc); err != nil {
			return fmt.Errorf("seed doctor %d: %w", i, err)
		}
	}
	logger.Info("doctors seeded", zap.Int("count", doctors))

	const logEvery = 100
	oldest := time.Date(1940, time.January, 1, 0, 0, 0, 0, time.UTC)
	youngest := time.Date(2020, time.December, 31, 0, 0, 0, 0, time.UTC)

	for i := 0; i < patients; i++ {
		sex := "Masculino"
		if f.Bool() {
			sex = "Feminino"
		}
		birth := f.DateRange(oldest, youngest)
		p := records.Patient{
			Name:      f.Name(),
			BirthDate: time.Date(birth.Year(), birth.Month(), birth.Day(), 0, 0, 0, 0, time.UTC),
			CPF:       f.Numerify("###.###.###-##"),
			Sex:       sex,
			Email:     f.Email(),
			Phone:     f.Numerify("(##) 9####-####"),
		}
		if _, err := dir.AddPatient(ctx, p); err != nil {
			return fmt.Errorf("seed patient %d: %w", i, err)
		}
		if (i+1)%logEvery == 0 {
			logger.Debug("patients seeded", zap.Int("done", i+1), zap.Int("total", patients))
		}
	}
	logger.Info("patients seeded", zap.Int("count", patients))

	return nil
}
