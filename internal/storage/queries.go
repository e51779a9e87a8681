package storage

import (
	"database/sql"

	"expensetracker/internal/core"
)

const expenseColumns = `local_id, amount, description, category, date, remote_id`

const (
	insertExpense = `INSERT INTO expenses (amount, description, category, date, remote_id) VALUES (?, ?, ?, ?, ?)`
	updateExpense = `UPDATE expenses SET amount = ?, description = ?, category = ?, date = ? WHERE local_id = ?`
	deleteExpense = `DELETE FROM expenses WHERE local_id = ?`
	setRemoteID   = `UPDATE expenses SET remote_id = ? WHERE local_id = ? AND remote_id IS NULL`
	clearExpenses = `DELETE FROM expenses`

	selectExpense    = `SELECT ` + expenseColumns + ` FROM expenses WHERE local_id = ?`
	selectAll        = `SELECT ` + expenseColumns + ` FROM expenses ORDER BY date DESC, local_id DESC`
	selectByCategory = `SELECT ` + expenseColumns + ` FROM expenses WHERE category = ? ORDER BY date DESC, local_id DESC`
	selectInRange    = `SELECT ` + expenseColumns + ` FROM expenses WHERE date BETWEEN ? AND ? ORDER BY date DESC, local_id DESC`
	selectCategories = `SELECT DISTINCT category FROM expenses ORDER BY category`

	sumAll          = `SELECT COALESCE(SUM(amount), 0) FROM expenses`
	sumByCategory   = `SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE category = ?`
	sumInRange      = `SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE date BETWEEN ? AND ?`
	countByCategory = `SELECT category, COUNT(*) FROM expenses GROUP BY category ORDER BY category`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e        core.Expense
		dateMs   int64
		remoteID sql.NullString
	)
	if err := s.Scan(&e.LocalID, &e.Amount.Cents, &e.Description, &e.Category, &dateMs, &remoteID); err != nil {
		return core.Expense{}, err
	}
	e.OccurredAt = core.FromMillis(dateMs)
	e.RemoteID = remoteID.String
	return e, nil
}
