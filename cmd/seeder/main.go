package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/havenstay/backend/internal/config"
	"github.com/havenstay/backend/internal/database"
	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
	"github.com/havenstay/backend/internal/store"
	"github.com/jackc/pgx/v5"
)

var guestNames = []string{
	"Maria Santos", "Juan Dela Cruz", "Jose Rizal", "Andres Bonifacio", "Gabriela Silang",
	"Emilio Aguinaldo", "Melchora Aquino", "Apolinario Mabini", "Teresa Magbanua", "Diego Silang",
}

// bookingID is the ID of the i-th seeded booking (1-based). The benchmark
// targets the same IDs.
func bookingID(i int) string {
	return fmt.Sprintf("BK-%06d", i)
}

func main() {
	envFile := flag.String("config", ".env", "path to the .env file")
	total := flag.Int("bookings", 1000, "number of bookings to seed")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("Seeder bulk-loads with COPY and needs postgres, got %q", cfg.Database.Driver)
	}

	ctx := context.Background()

	// schema via the same migration the server runs
	db, err := database.OpenPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	if err := store.NewSQLStore(db, store.Postgres).Migrate(ctx); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	db.Close()

	conn, err := pgx.Connect(ctx, cfg.Database.URL())
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	log.Println("--- Seeding Database ---")

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM booking_ledgers").Scan(&count); err != nil {
		log.Fatalf("Count failed: %v", err)
	}
	if count >= *total {
		log.Printf("Database already has %d ledgers. Skipping.", count)
		return
	}

	log.Printf("Generating %d bookings...", *total)
	now := time.Now().UTC()
	bookings := make([][]any, 0, *total)
	ledgers := make([][]any, 0, *total)

	for i := 1; i <= *total; i++ {
		id := bookingID(i)
		guest := guestNames[rand.IntN(len(guestNames))]
		created := now.Add(-time.Duration(rand.IntN(90*24)) * time.Hour)

		// totals between 1,500.00 and 25,000.00, in whole pesos
		totalAmount := money.Amount((1500 + rand.Int64N(23500)) * 100)
		down := money.Amount(int64(totalAmount) * int64(rand.IntN(4)) / 10)

		rec := models.NewLedgerRecord(id, totalAmount, down, created)
		rec.ClaimedAmount = rec.Remaining()

		bookings = append(bookings, []any{id, guest, fmt.Sprintf("guest%d@example.com", i), created})
		ledgers = append(ledgers, []any{
			rec.BookingID, int64(rec.TotalAmount), int64(rec.DownPayment), int64(rec.AmountPaid),
			int64(rec.RemainingBal), int64(rec.ClaimedAmount), string(rec.Status), int64(1), created, created,
		})
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		log.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE booking_ledgers, bookings CASCADE"); err != nil {
		log.Fatalf("Truncate failed: %v", err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"bookings"},
		[]string{"id", "guest_name", "guest_email", "created_at"},
		pgx.CopyFromRows(bookings),
	); err != nil {
		log.Fatalf("Bulk insert of bookings failed: %v", err)
	}

	copyCount, err := tx.CopyFrom(ctx,
		pgx.Identifier{"booking_ledgers"},
		[]string{"booking_id", "total_amount", "down_payment", "amount_paid",
			"remaining_balance", "claimed_amount", "status", "version", "created_at", "updated_at"},
		pgx.CopyFromRows(ledgers),
	)
	if err != nil {
		log.Fatalf("Bulk insert of ledgers failed: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Commit failed: %v", err)
	}

	log.Printf("Successfully seeded %d ledgers.", copyCount)
}
