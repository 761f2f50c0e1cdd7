package reader

import (
	"github.com/google/uuid"

	"storeprice/logger"
	"storeprice/models"
)

// Sink receives decoded rows. *feed.Feed satisfies it.
type Sink interface {
	Append(rows ...models.RawRow) int
}

// BatchFunc is called after every delivered batch with the reader name and
// the number of rows the sink admitted.
type BatchFunc func(source string, admitted int)

// deliver appends one decoded file or message as a single batch so the feed
// raises one notification for it.
func deliver(log *logger.Log, sink Sink, source, origin string, rows []models.RawRow, onBatch BatchFunc) int {
	batchID := uuid.NewString()
	admitted := sink.Append(rows...)

	entry := log.WithComponent(source).WithFields(logger.Fields{
		"batch_id": batchID,
		"origin":   origin,
		"rows":     len(rows),
		"admitted": admitted,
	})
	logger.LogDataFlowEntry(entry, source, "feed", admitted, "rows")
	logger.RecordFeedBatch(source, admitted)

	if onBatch != nil {
		onBatch(source, admitted)
	}
	return admitted
}
