package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saraivavision/booking-api/internal/booking"
	"github.com/saraivavision/booking-api/internal/config"
	"github.com/saraivavision/booking-api/internal/db"
)

// Seeds the appointments table with fake bookings spread over the coming two
// weeks, for local development and load testing.
func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	logger.Info().Msg("seed starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("load clinic timezone")
	}

	schedule, err := booking.NewWorkSchedule(cfg.ScheduleStart, cfg.ScheduleEnd, cfg.SlotMinutes, loc)
	if err != nil {
		logger.Fatal().Err(err).Msg("build work schedule")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	repo := booking.NewPgRepository(pool)
	tokens := booking.NewTokenService(repo, loc)

	created := 0
	now := time.Now()
	localNow := now.In(loc)
	today := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)

	for day := 1; day <= 14; day++ {
		date := today.AddDate(0, 0, day)
		slots := schedule.SlotsForDate(date, now)
		for _, slot := range slots {
			// Roughly half the grid stays free so availability looks real.
			if gofakeit.Bool() {
				continue
			}

			token, err := tokens.Issue()
			if err != nil {
				logger.Fatal().Err(err).Msg("issue token")
			}

			appt := &booking.Appointment{
				ID:           uuid.New(),
				PatientName:  gofakeit.Name(),
				PatientEmail: gofakeit.Email(),
				PatientPhone: fakeBrazilianPhone(),
				Date:         date,
				Time:         slot,
				Status:       booking.StatusPending,
				Token:        token,
			}

			if _, err := repo.Insert(ctx, appt); err != nil {
				if errors.Is(err, booking.ErrSlotTaken) {
					continue
				}
				logger.Fatal().Err(err).Msg("insert appointment")
			}
			created++
		}
	}

	logger.Info().Int("appointments", created).Msg("seed complete")
}

func fakeBrazilianPhone() string {
	return fmt.Sprintf("(%d) 9%04d-%04d",
		gofakeit.Number(11, 99),
		gofakeit.Number(0, 9999),
		gofakeit.Number(0, 9999))
}
