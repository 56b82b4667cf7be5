package changefeed

import (
	"log/slog"

	"gorm.io/gorm"
)

const (
	pluginName     = "changefeed"
	commitCallback = "gorm:commit_or_rollback_transaction"
)

// GormPlugin publishes committed creates, updates and deletes to a Feed.
// Statements run inside a caller-managed transaction are not published: gorm
// has no commit hook for them, and they may still roll back.
type GormPlugin struct {
	feed *Feed
}

func NewGormPlugin(feed *Feed) *GormPlugin {
	return &GormPlugin{feed: feed}
}

func (p *GormPlugin) Name() string {
	return pluginName
}

func (p *GormPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().After(commitCallback).Register(pluginName+":create", p.emit(EventInsert)); err != nil {
		return err
	}
	if err := cb.Update().After(commitCallback).Register(pluginName+":update", p.emit(EventUpdate)); err != nil {
		return err
	}
	return cb.Delete().After(commitCallback).Register(pluginName+":delete", p.emit(EventDelete))
}

func (p *GormPlugin) emit(kind EventType) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Error != nil || db.Statement == nil || db.Statement.Table == "" {
			return
		}
		if db.RowsAffected == 0 {
			return
		}
		if inCallerTransaction(db) {
			slog.Debug("Skipping change inside open transaction", "table", db.Statement.Table)
			return
		}

		change := Change{Table: db.Statement.Table, EventType: kind}
		if kind == EventDelete {
			change.Old = db.Statement.Dest
		} else {
			change.New = db.Statement.Dest
		}
		p.feed.Publish(change)
	}
}

// inCallerTransaction is true while the statement still runs on an open
// transaction. gorm restores the pool after committing its own transaction,
// so only caller-managed ones remain.
func inCallerTransaction(db *gorm.DB) bool {
	_, ok := db.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}
