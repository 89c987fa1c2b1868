package database

import (
	"gorm.io/gorm"

	"github.com/yukikurage/circuit/internal/utils"
)

// Paginate applies pagination to a GORM query
func Paginate(params utils.PaginationParams) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if params.Limit <= 0 {
			return db
		}
		return db.Offset(params.Offset).Limit(params.Limit)
	}
}

// DateRange restricts column to [from, to]; empty bounds are open.
func DateRange(column, from, to string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if from != "" {
			db = db.Where(column+" >= ?", from)
		}
		if to != "" {
			db = db.Where(column+" <= ?", to)
		}
		return db
	}
}
