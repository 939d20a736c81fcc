package statsd

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/bus"
	"github.com/opensource-finance/riskview/internal/domain"
)

// SeedConfig controls the generated demo data set.
type SeedConfig struct {
	Customers    int
	Transactions int
	Days         int       // transactions are spread over the Days before Anchor
	Seed         uint64    // same seed and anchor give the same data
	Anchor       time.Time // zero means today at midnight UTC
	UnscoredEach int       // every Nth transaction is left unscored, 0 scores all
}

// DefaultSeedConfig returns the demo data set used by cmd/statsd --seed.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Customers:    40,
		Transactions: 600,
		Days:         45,
		Seed:         42,
		UnscoredEach: 10,
	}
}

// SeedReport summarizes a seeding run.
type SeedReport struct {
	Customers    int
	Transactions int
	ScoreIDs     []int64 // transactions to hand to the scoring pipeline
}

var (
	phoneModels = []string{"iPhone 15", "iPhone 13", "Pixel 8", "Galaxy S23", "Galaxy A54", "Redmi Note 12"}
	osVersions  = []string{"iOS 17.4", "iOS 16.7", "Android 14", "Android 13", "Android 12"}
)

type seedCustomer struct {
	id      string
	risky   bool
	devices []string
	os      string
}

// Seed writes a deterministic data set of customers and transactions.
func Seed(ctx context.Context, repo domain.Repository, cfg SeedConfig) (*SeedReport, error) {
	if cfg.Customers <= 0 || cfg.Transactions <= 0 {
		return nil, fmt.Errorf("seed needs customers and transactions, got %d and %d", cfg.Customers, cfg.Transactions)
	}
	if cfg.Days <= 0 {
		cfg.Days = 30
	}
	anchor := cfg.Anchor
	if anchor.IsZero() {
		anchor = time.Now().UTC().Truncate(24 * time.Hour)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	customers := make([]seedCustomer, cfg.Customers)
	for i := range customers {
		c := seedCustomer{
			id:    fmt.Sprintf("C%04d", i+1),
			risky: rng.Float64() < 0.15,
			os:    osVersions[rng.IntN(len(osVersions))],
		}
		n := 1 + rng.IntN(2)
		if c.risky {
			n += 2 + rng.IntN(3)
		}
		for range n {
			c.devices = append(c.devices, phoneModels[rng.IntN(len(phoneModels))])
		}
		customers[i] = c

		if err := repo.SaveBehavior(ctx, behaviorFor(rng, c, anchor)); err != nil {
			return nil, fmt.Errorf("failed to seed behavior of %s: %w", c.id, err)
		}
	}

	records := make([]domain.TransactionRecord, cfg.Transactions)
	span := time.Duration(cfg.Days) * 24 * time.Hour
	for i := range records {
		c := customers[rng.IntN(len(customers))]

		fraudChance := 0.02
		if c.risky {
			fraudChance = 0.30
		}
		isFraud := rng.Float64() < fraudChance

		// log-normal amounts around 120, fraud skews larger
		mu := 4.8
		if isFraud {
			mu = 7.2
		}
		amount := decimal.NewFromFloat(math.Exp(mu + rng.NormFloat64()*0.8)).Round(2)

		ts := anchor.Add(-time.Duration(rng.Int64N(int64(span))))
		if isFraud && rng.Float64() < 0.5 {
			// fraud clusters at night
			day := ts.Truncate(24 * time.Hour)
			if night := day.Add(time.Duration(rng.IntN(5*3600)) * time.Second); !night.After(anchor) {
				ts = night
			}
		}

		r := domain.TransactionRecord{
			CustomerID:  c.id,
			RecipientID: fmt.Sprintf("R%04d", 1+rng.IntN(200)),
			Amount:      amount,
			Timestamp:   ts,
			IsFraud:     isFraud,
		}
		if rng.Float64() < 0.9 {
			r.DeviceModel = c.devices[rng.IntN(len(c.devices))]
			r.OSVersion = c.os
		}
		records[i] = r
	}

	slices.SortStableFunc(records, func(a, b domain.TransactionRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	report := &SeedReport{Customers: len(customers), Transactions: len(records)}
	for i := range records {
		r := &records[i]
		r.ID = int64(i + 1)
		r.TransactionID = fmt.Sprintf("TX-%06d", r.ID)
		if err := repo.SaveTransaction(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to seed transaction %d: %w", r.ID, err)
		}
		if cfg.UnscoredEach > 0 && r.ID%int64(cfg.UnscoredEach) == 0 {
			continue
		}
		report.ScoreIDs = append(report.ScoreIDs, r.ID)
	}
	return report, nil
}

func behaviorFor(rng *rand.Rand, c seedCustomer, anchor time.Time) *domain.CustomerBehavior {
	b := &domain.CustomerBehavior{
		CustomerID:       c.id,
		DeviceChanges:    len(c.devices) - 1,
		OSChanges:        rng.IntN(2),
		LoginsLast7Days:  rng.IntN(15),
		LatestPhoneModel: c.devices[len(c.devices)-1],
		LatestOSVersion:  c.os,
		BurstinessScore:  math.Round(rng.Float64()*40) / 100,
		UpdatedAt:        anchor,
	}
	shift := rng.Float64()*0.6 - 0.3
	if c.risky {
		b.OSChanges += 2 + rng.IntN(2)
		b.LoginsLast7Days += 10 + rng.IntN(20)
		shift = 0.4 + rng.Float64()*0.8
		b.BurstinessScore = 0.5 + math.Round(rng.Float64()*50)/100
	}
	b.LoginFrequencyChange = math.Round(shift*100) / 100
	b.LoginsLast30Days = b.LoginsLast7Days*3 + rng.IntN(20)
	return b
}

// Ingest hands transactions to the scoring worker by publishing one
// transaction.ingested event per ID.
func Ingest(ctx context.Context, eventBus domain.EventBus, scope string, ids []int64) error {
	for _, id := range ids {
		if err := bus.PublishJSON(ctx, eventBus, scope, domain.TopicTransactionIngested, domain.TransactionEvent{ID: id}); err != nil {
			return fmt.Errorf("failed to publish transaction %d: %w", id, err)
		}
	}
	return nil
}
