package store

import (
	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
)

func amount(v int64) money.Amount {
	return money.Amount(v)
}

func newPage(items []models.LedgerRecord, q models.ListQuery, total int) *models.LedgerPage {
	totalPages := 0
	if q.Limit > 0 {
		totalPages = (total + q.Limit - 1) / q.Limit
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	return &models.LedgerPage{
		Items:      items,
		Page:       page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
