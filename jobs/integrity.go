package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/quillbooks/quillbooks/internal/balance"
	"github.com/quillbooks/quillbooks/internal/observability"
	"github.com/quillbooks/quillbooks/internal/shared"
)

// integrityLockTTL bounds how long a sweep may hold a company's lock.
const integrityLockTTL = 10 * time.Minute

// IntegrityChecker runs the trial balance self-check across companies.
type IntegrityChecker struct {
	balances *balance.Service
	repo     balance.Repository
	redis    *redis.Client
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewIntegrityChecker constructs the checker.
func NewIntegrityChecker(balances *balance.Service, repo balance.Repository, rdb *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *IntegrityChecker {
	return &IntegrityChecker{balances: balances, repo: repo, redis: rdb, metrics: metrics, logger: logger}
}

// HandleTask processes TaskLedgerIntegrity tasks.
func (c *IntegrityChecker) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.CompanyID != 0 {
		return c.checkCompany(ctx, payload.CompanyID)
	}
	return c.Sweep(ctx)
}

// Sweep runs the check for every company that has accounts.
func (c *IntegrityChecker) Sweep(ctx context.Context) error {
	ids, err := c.repo.ListCompanyIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := c.checkCompany(ctx, id); err != nil {
			c.logger.Error("integrity check failed",
				slog.Int64("company_id", id),
				slog.Any("error", err))
		}
	}
	return nil
}

func (c *IntegrityChecker) checkCompany(ctx context.Context, companyID int64) error {
	release, ok, err := c.acquireLock(ctx, companyID)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Info("integrity check skipped, lock held",
			slog.Int64("company_id", companyID))
		return nil
	}
	defer release()

	rows, err := c.balances.TrialBalance(ctx, companyID, nil)
	if err != nil {
		return err
	}
	check := balance.ValidateTrialBalance(rows)
	if !check.IsBalanced {
		c.metrics.IntegrityFailure()
		c.logger.Error("trial balance out of balance",
			slog.Int64("company_id", companyID),
			slog.String("debit_total", check.DebitTotal.String()),
			slog.String("credit_total", check.CreditTotal.String()))
		return nil
	}
	c.logger.Info("trial balance verified",
		slog.Int64("company_id", companyID),
		slog.Int("accounts", len(rows)))
	return nil
}

// acquireLock takes the per-company redis lock. Without redis the check
// proceeds unguarded, which is fine for a single worker.
func (c *IntegrityChecker) acquireLock(ctx context.Context, companyID int64) (func(), bool, error) {
	if c.redis == nil {
		return func() {}, true, nil
	}
	key := shared.LedgerIntegrityLockKey(companyID)
	ok, err := c.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), integrityLockTTL).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		if err := c.redis.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			c.logger.Warn("integrity lock release failed",
				slog.Int64("company_id", companyID),
				slog.Any("error", err))
		}
	}, true, nil
}
