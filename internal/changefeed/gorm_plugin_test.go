package changefeed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func statement(table string, rows int64, dest interface{}, err error) *gorm.DB {
	return &gorm.DB{
		Error:        err,
		RowsAffected: rows,
		Statement:    &gorm.Statement{Table: table, Dest: dest},
	}
}

func TestGormPluginEmit(t *testing.T) {
	feed := NewFeed()
	plugin := NewGormPlugin(feed)

	var got []Change
	cancel := feed.Subscribe("notifications", func(c Change) { got = append(got, c) })
	defer cancel()

	row := map[string]interface{}{"id": 1}
	plugin.emit(EventInsert)(statement("notifications", 1, row, nil))
	plugin.emit(EventDelete)(statement("notifications", 1, row, nil))

	// Failed, empty or untabled statements are not published.
	plugin.emit(EventUpdate)(statement("notifications", 1, row, errors.New("boom")))
	plugin.emit(EventUpdate)(statement("notifications", 0, row, nil))
	plugin.emit(EventUpdate)(statement("", 1, row, nil))

	require.Len(t, got, 2)
	assert.Equal(t, EventInsert, got[0].EventType)
	assert.Equal(t, row, got[0].New)
	assert.Nil(t, got[0].Old)
	assert.Equal(t, EventDelete, got[1].EventType)
	assert.Equal(t, row, got[1].Old)
	assert.Equal(t, "changefeed", plugin.Name())
}

// openTx stands in for a *sql.Tx still held by the caller.
type openTx struct {
	gorm.ConnPool
}

func (openTx) Commit() error   { return nil }
func (openTx) Rollback() error { return nil }

func TestGormPluginSkipsOpenTransaction(t *testing.T) {
	feed := NewFeed()
	plugin := NewGormPlugin(feed)

	published := 0
	cancel := feed.Subscribe("notifications", func(Change) { published++ })
	defer cancel()

	inTx := statement("notifications", 1, map[string]interface{}{"id": 2}, nil)
	inTx.Statement.ConnPool = openTx{}
	plugin.emit(EventInsert)(inTx)
	assert.Zero(t, published)

	plugin.emit(EventInsert)(statement("notifications", 1, map[string]interface{}{"id": 3}, nil))
	assert.Equal(t, 1, published)
}
