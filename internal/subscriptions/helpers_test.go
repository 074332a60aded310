package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/vowvendors-backend/internal/plancatalog"
	"github.com/angelmondragon/vowvendors-backend/internal/vendors"
	"github.com/angelmondragon/vowvendors-backend/pkg/db/models"
	"github.com/angelmondragon/vowvendors-backend/pkg/enums"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
	"github.com/angelmondragon/vowvendors-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const vendorsTable = `
CREATE TABLE IF NOT EXISTS vendors (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  business_name TEXT NOT NULL,
  subscription_plan TEXT,
  subscription_end_date DATETIME,
  subscription_synced_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK ((subscription_plan IS NULL) = (subscription_end_date IS NULL))
);`

var testCatalog = plancatalog.Static{
	"price_essential_m": {PriceID: "price_essential_m", PlanType: "essential", BillingInterval: enums.BillingIntervalMonthly},
	"price_elite_y":     {PriceID: "price_elite_y", PlanType: "elite", BillingInterval: enums.BillingIntervalAnnual},
}

type sqliteTx struct {
	db *gorm.DB
}

func (s sqliteTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

type recordingEmitter struct {
	events []outbox.DomainEvent
	err    error
}

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

type fakeProvider struct {
	byID       map[string]Snapshot
	byCustomer map[string]Snapshot
	errs       map[string]error
	calls      []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		byID:       map[string]Snapshot{},
		byCustomer: map[string]Snapshot{},
		errs:       map[string]error{},
	}
}

func (f *fakeProvider) Get(_ context.Context, id string) (Snapshot, error) {
	if err, ok := f.errs[id]; ok {
		return Snapshot{}, err
	}
	snap, ok := f.byID[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("subscription %s not found", id)
	}
	return snap, nil
}

func (f *fakeProvider) LatestActiveForCustomer(_ context.Context, customerID string) (Snapshot, error) {
	f.calls = append(f.calls, customerID)
	if err, ok := f.errs[customerID]; ok {
		return Snapshot{}, err
	}
	snap, ok := f.byCustomer[customerID]
	if !ok {
		return Snapshot{}, ErrNoActiveSubscription
	}
	return snap, nil
}

type countingRecorder struct {
	counts map[string]int
}

func (c *countingRecorder) Observe(outcome string) {
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[outcome]++
}

type fixture struct {
	db       *gorm.DB
	repo     vendors.Repository
	emitter  *recordingEmitter
	provider *fakeProvider
	syncer   *Syncer
}

func newFixture(t *testing.T, catalog plancatalog.Catalog) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(vendorsTable).Error)

	repo := vendors.NewRepository(db)
	emitter := &recordingEmitter{}
	syncer, err := NewSyncer(SyncerParams{
		DB:      sqliteTx{db: db},
		Vendors: repo,
		Catalog: catalog,
		Outbox:  emitter,
		Logger:  logger.Nop(),
	})
	require.NoError(t, err)
	return &fixture{db: db, repo: repo, emitter: emitter, provider: newFakeProvider(), syncer: syncer}
}

func (f *fixture) seedVendor(t *testing.T, plan *string, end *time.Time) models.Vendor {
	t.Helper()
	vendor := models.Vendor{
		ID:                  uuid.New(),
		UserID:              uuid.New(),
		BusinessName:        "Evergreen Photo Co",
		SubscriptionPlan:    plan,
		SubscriptionEndDate: end,
	}
	require.NoError(t, f.db.Create(&vendor).Error)
	return vendor
}

func (f *fixture) load(t *testing.T, userID uuid.UUID) models.Vendor {
	t.Helper()
	got, err := f.repo.FindByUserID(context.Background(), userID)
	require.NoError(t, err)
	return *got
}

// snapshot returns plan and end date for every vendor keyed by vendor id.
func (f *fixture) snapshot(t *testing.T) map[uuid.UUID]string {
	t.Helper()
	var rows []models.Vendor
	require.NoError(t, f.db.Find(&rows).Error)
	out := make(map[uuid.UUID]string, len(rows))
	for _, row := range rows {
		end := "<nil>"
		if row.SubscriptionEndDate != nil {
			end = row.SubscriptionEndDate.UTC().Format(time.RFC3339)
		}
		out[row.ID] = row.PlanName() + "|" + end
	}
	return out
}

func (f *fixture) requirePaired(t *testing.T) {
	t.Helper()
	var rows []models.Vendor
	require.NoError(t, f.db.Find(&rows).Error)
	for _, row := range rows {
		require.Equal(t, row.SubscriptionPlan == nil, row.SubscriptionEndDate == nil,
			"vendor %s has split subscription fields", row.ID)
	}
}

func ptr[T any](v T) *T { return &v }
