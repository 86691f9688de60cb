package main

import (
	"time"

	"github.com/salonbook/salonbook/libs/config"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/store/memstore"
	"github.com/salonbook/salonbook/services/booking-service/internal/verification"
)

// fileConfig is the optional YAML file named by CONFIG_FILE. Environment variables win
// over values from the file.
type fileConfig struct {
	Verification verification.Policy `yaml:"verification"`
	Seed         seedConfig          `yaml:"seed"`
}

// seedConfig fills the in-memory store; Postgres catalogs are managed in SQL.
type seedConfig struct {
	Masters []struct {
		ID             string `yaml:"id"`
		Name           string `yaml:"name"`
		TelegramChatID *int64 `yaml:"telegram_chat_id"`
	} `yaml:"masters"`
	Services []struct {
		ID              string `yaml:"id"`
		Name            string `yaml:"name"`
		DurationMinutes int    `yaml:"duration_minutes"`
	} `yaml:"services"`
}

func loadConfig() (fileConfig, error) {
	fc := fileConfig{Verification: verification.DefaultPolicy()}
	if err := config.LoadYAML(config.String("CONFIG_FILE", ""), &fc); err != nil {
		return fc, err
	}

	p := &fc.Verification
	p.TTL = config.Duration("VERIFICATION_TTL", p.TTL)
	p.ResendCooldown = config.Duration("VERIFICATION_RESEND_COOLDOWN", p.ResendCooldown)
	p.MaxAttempts = config.Int("VERIFICATION_MAX_ATTEMPTS", p.MaxAttempts)
	p.CodeLength = config.Int("VERIFICATION_CODE_LENGTH", p.CodeLength)
	p.ClockSkew = config.Duration("VERIFICATION_CLOCK_SKEW", p.ClockSkew)
	p.SendLimit = config.Int("VERIFICATION_SEND_LIMIT", p.SendLimit)
	p.SendWindow = config.Duration("VERIFICATION_SEND_WINDOW", p.SendWindow)
	p.Retention = config.Duration("VERIFICATION_RETENTION", p.Retention)
	p.Phone.MinDigits = config.Int("PHONE_MIN_DIGITS", p.Phone.MinDigits)
	p.Phone.MaxDigits = config.Int("PHONE_MAX_DIGITS", p.Phone.MaxDigits)
	return fc, p.Validate()
}

func seedMemory(s *memstore.Store, seed seedConfig) {
	for _, m := range seed.Masters {
		s.AddMaster(model.Master{ID: m.ID, Name: m.Name, Active: true, TelegramChatID: m.TelegramChatID})
	}
	for _, svc := range seed.Services {
		s.AddService(model.Service{ID: svc.ID, Name: svc.Name, DurationMinutes: svc.DurationMinutes})
	}
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
