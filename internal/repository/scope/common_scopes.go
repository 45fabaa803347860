package scope

import "gorm.io/gorm"

func OrderByUpdatedDesc(db *gorm.DB) *gorm.DB {
	return db.Order("updated_at DESC")
}

// Chronological orders messages by creation time, ties broken by insertion sequence.
func Chronological(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("seq ASC")
}

func OnlineFirst(db *gorm.DB) *gorm.DB {
	return db.Order("is_online DESC").Order("last_seen DESC")
}

func Paginate(limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}
