package models

import "gorm.io/gorm"

// Page-number pagination shared by the followers, following, outbox and
// replies collections.

// DefaultPageSize is the number of items per collection page.
const DefaultPageSize = 10

// Pages returns the number of pages needed to hold total items. An empty
// collection still has one (empty) first page.
func Pages(total int64, size int) int {
	if size < 1 {
		size = DefaultPageSize
	}
	n := int((total + int64(size) - 1) / int64(size))
	if n < 1 {
		n = 1
	}
	return n
}

// PageScope returns a query scope selecting the given 1-based page.
func PageScope(page, size int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * size).Limit(size)
	}
}
