package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := NewSQLStore(db, SQLite)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seed(t *testing.T, s models.LedgerStore, id, guest string, total, down money.Amount, created time.Time) {
	t.Helper()
	rec := models.NewLedgerRecord(id, total, down, created)
	rec.GuestName = guest
	require.NoError(t, s.Create(context.Background(), rec))
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	seed(t, s, "BK-1", "Andres Bonifacio", 100000, 30000, now)

	rec, err := s.Load(ctx, "BK-1")
	require.NoError(t, err)
	assert.Equal(t, "Andres Bonifacio", rec.GuestName)
	assert.Equal(t, money.Amount(30000), rec.AmountPaid)
	assert.Equal(t, money.Amount(70000), rec.RemainingBal)
	assert.Equal(t, int64(1), rec.Version)
	assert.Nil(t, rec.ProofReference)

	proof := "uploads/proof.png"
	rec.ProofReference = &proof
	rec.ClaimedAmount = 70000
	rec.UpdatedAt = now.Add(time.Minute)

	version, err := s.CommitIfVersion(ctx, rec, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	reloaded, err := s.Load(ctx, "BK-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), reloaded.Version)
	require.NotNil(t, reloaded.ProofReference)
	assert.Equal(t, proof, *reloaded.ProofReference)
	assert.Equal(t, money.Amount(70000), reloaded.ClaimedAmount)

	_, err = s.CommitIfVersion(ctx, rec, 1)
	assert.ErrorIs(t, err, models.ErrConflict)

	err = s.Create(ctx, models.NewLedgerRecord("BK-1", 1, 0, now))
	assert.ErrorIs(t, err, models.ErrDuplicateBooking)

	_, err = s.Load(ctx, "BK-404")
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

func TestSQLiteStore_ConcurrentCommitsOnSameVersion(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seed(t, s, "BK-1", "Gabriela Silang", 100000, 0, time.Now().UTC())

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := s.Load(ctx, "BK-1")
			if err != nil {
				return
			}
			rec.AmountPaid = money.Amount(1000 * (i + 1))
			rec.Reconcile()
			rec.UpdatedAt = time.Now().UTC()

			_, err = s.CommitIfVersion(ctx, rec, 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if models.IsRetryable(err) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)

	final, err := s.Load(ctx, "BK-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version)
	assert.Equal(t, final.Remaining(), final.RemainingBal)
}

func TestSQLiteStore_ListAndSummary(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	seed(t, s, "BK-1", "Maria Santos", 100000, 0, base)
	seed(t, s, "BK-2", "Juan Dela Cruz", 50000, 50000, base.Add(time.Hour))
	seed(t, s, "BK-3", "Maria Clara", 80000, 20000, base.Add(2*time.Hour))

	rec, err := s.Load(ctx, "BK-2")
	require.NoError(t, err)
	reviewer := "staff-1"
	reviewedAt := base.Add(3 * time.Hour)
	rec.Status = models.PaymentApproved
	rec.ReviewedBy = &reviewer
	rec.ReviewedAt = &reviewedAt
	rec.UpdatedAt = reviewedAt
	_, err = s.CommitIfVersion(ctx, rec, rec.Version)
	require.NoError(t, err)

	t.Run("default order is newest first", func(t *testing.T) {
		page, err := s.List(ctx, models.ListQuery{Page: 1, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Items, 3)
		assert.Equal(t, "BK-3", page.Items[0].BookingID)
		assert.Equal(t, "BK-1", page.Items[2].BookingID)
	})

	t.Run("search by guest and status filter", func(t *testing.T) {
		page, err := s.List(ctx, models.ListQuery{Status: models.PaymentPending, Search: "maria", Page: 1, Limit: 10, SortBy: models.SortRemaining})
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "BK-3", page.Items[0].BookingID)
		assert.Equal(t, "BK-1", page.Items[1].BookingID)
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := s.List(ctx, models.ListQuery{Page: 2, Limit: 2, SortBy: models.SortBookingID})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "BK-3", page.Items[0].BookingID)
	})

	t.Run("summary", func(t *testing.T) {
		summary, err := s.Summary(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Approved)
		assert.Equal(t, 2, summary.Pending)
		assert.Equal(t, money.Amount(230000), summary.TotalAmount)
		assert.Equal(t, money.Amount(160000), summary.TotalRemaining)
	})
}

func TestStores_SearchIsLiteral(t *testing.T) {
	now := time.Now().UTC()
	stores := map[string]models.LedgerStore{
		"sqlite": newSQLiteStore(t),
		"memory": NewMemoryStore(),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, s, "BK-100", "Ana 100% Reyes", 1000, 0, now)
			seed(t, s, "BK-200", "Ben Cruz", 1000, 0, now)
			seed(t, s, "BKX1", "Carla Diaz", 1000, 0, now)
			seed(t, s, "BK_1", "Dina Lim", 1000, 0, now)

			for _, tc := range []struct {
				search string
				want   []string
			}{
				{"_", []string{"BK_1"}},
				{"%", []string{"BK-100"}},
				{"BK_1", []string{"BK_1"}},
				{`\`, nil},
				{"bk-", []string{"BK-100", "BK-200"}},
			} {
				page, err := s.List(ctx, models.ListQuery{Search: tc.search, Page: 1, Limit: 10, SortBy: models.SortBookingID})
				require.NoError(t, err)

				var got []string
				for _, rec := range page.Items {
					got = append(got, rec.BookingID)
				}
				assert.Equal(t, tc.want, got, "search %q", tc.search)
				assert.Equal(t, len(tc.want), page.Total, "search %q", tc.search)
			}
		})
	}
}
