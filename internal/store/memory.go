package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
)

// MemoryStore keeps ledgers in process. It honours the same version contract
// as SQLStore and is used by tests and the contention benchmark.
type MemoryStore struct {
	mu         sync.RWMutex
	ledgers    map[string]*models.LedgerRecord
	activities []models.ActivityLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledgers: make(map[string]*models.LedgerRecord)}
}

func (m *MemoryStore) Load(ctx context.Context, bookingID string) (*models.LedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.ledgers[bookingID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrBookingNotFound, bookingID)
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) CommitIfVersion(ctx context.Context, rec *models.LedgerRecord, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.ledgers[rec.BookingID]
	if !ok || current.Version != expectedVersion {
		return 0, fmt.Errorf("%w: booking %s at version %d", models.ErrConflict, rec.BookingID, expectedVersion)
	}

	next := rec.Clone()
	// booking metadata and the owed total are not writable through commits
	next.TotalAmount = current.TotalAmount
	next.DownPayment = current.DownPayment
	next.GuestName = current.GuestName
	next.GuestEmail = current.GuestEmail
	next.CreatedAt = current.CreatedAt
	next.Version = expectedVersion + 1
	m.ledgers[rec.BookingID] = next

	return next.Version, nil
}

func (m *MemoryStore) Create(ctx context.Context, rec *models.LedgerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ledgers[rec.BookingID]; exists {
		return fmt.Errorf("%w: %s", models.ErrDuplicateBooking, rec.BookingID)
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	m.ledgers[rec.BookingID] = rec.Clone()
	return nil
}

func (m *MemoryStore) matching(status models.PaymentStatus, search string) []models.LedgerRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(search))
	out := []models.LedgerRecord{}
	for _, rec := range m.ledgers {
		if status != "" && rec.Status != status {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(rec.BookingID), q) &&
			!strings.Contains(strings.ToLower(rec.GuestName), q) {
			continue
		}
		out = append(out, *rec.Clone())
	}
	return out
}

func (m *MemoryStore) List(ctx context.Context, q models.ListQuery) (*models.LedgerPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := m.matching(q.Status, q.Search)

	compare, ok := memoryCompare[q.SortBy]
	if !ok {
		compare = memoryCompare[models.SortCreatedAt]
		q.SortDesc = true
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := &items[i], &items[j]
		if c := compare(a, b); c != 0 {
			if q.SortDesc {
				return c > 0
			}
			return c < 0
		}
		return a.BookingID < b.BookingID
	})

	total := len(items)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < total {
		end = start + q.Limit
	}

	return newPage(items[start:end], q, total), nil
}

func (m *MemoryStore) Summary(ctx context.Context, search string) (*models.StatusSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var s models.StatusSummary
	for _, rec := range m.matching("", search) {
		switch rec.Status {
		case models.PaymentApproved:
			s.Approved++
		case models.PaymentPending:
			s.Pending++
		case models.PaymentRejected:
			s.Rejected++
		}
		s.TotalAmount = money.Add(s.TotalAmount, rec.TotalAmount)
		s.TotalPaid = money.Add(s.TotalPaid, rec.AmountPaid)
		s.TotalRemaining = money.Add(s.TotalRemaining, rec.RemainingBal)
	}
	return &s, nil
}

func (m *MemoryStore) InsertActivity(ctx context.Context, entry models.ActivityLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, entry)
	return nil
}

// Activities returns a copy of the recorded activity log.
func (m *MemoryStore) Activities() []models.ActivityLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ActivityLog(nil), m.activities...)
}

type compareFunc func(a, b *models.LedgerRecord) int

var memoryCompare = map[models.SortField]compareFunc{
	models.SortBookingID: func(a, b *models.LedgerRecord) int { return strings.Compare(a.BookingID, b.BookingID) },
	models.SortGuest: func(a, b *models.LedgerRecord) int {
		return strings.Compare(strings.ToLower(a.GuestName), strings.ToLower(b.GuestName))
	},
	models.SortTotalAmount: func(a, b *models.LedgerRecord) int { return money.Compare(a.TotalAmount, b.TotalAmount) },
	models.SortDownPayment: func(a, b *models.LedgerRecord) int { return money.Compare(a.DownPayment, b.DownPayment) },
	models.SortAmountPaid:  func(a, b *models.LedgerRecord) int { return money.Compare(a.AmountPaid, b.AmountPaid) },
	models.SortRemaining:   func(a, b *models.LedgerRecord) int { return money.Compare(a.RemainingBal, b.RemainingBal) },
	models.SortStatus:      func(a, b *models.LedgerRecord) int { return strings.Compare(string(a.Status), string(b.Status)) },
	models.SortCreatedAt:   func(a, b *models.LedgerRecord) int { return a.CreatedAt.Compare(b.CreatedAt) },
}
