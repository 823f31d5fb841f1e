package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/logging"
	"github.com/JonMunkholm/publsync/internal/schema"
	"github.com/JonMunkholm/publsync/internal/store"
)

// HistoryFields builds the history row of a run. Sync DateTime is the start
// time in the export offset; Downloaded Files holds base names only.
func HistoryFields(res Result, files []string, offset string) store.Fields {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}

	return store.Fields{
		schema.HistoryDateTime:       res.Started.In(core.OffsetLocation(offset)).Format(time.RFC3339),
		schema.HistoryDuration:       math.Round(res.Duration.Seconds()*10) / 10,
		schema.HistoryStatus:         res.Status(),
		schema.HistoryMembersNew:     res.Members.Inserted,
		schema.HistoryOrdersNew:      res.Orders.Inserted,
		schema.HistoryRefundsNew:     res.Refunds.Insert.Inserted,
		schema.HistoryRefundsUpdated: res.Refunds.Status.Updated,
		schema.HistoryDownloaded:     strings.Join(names, ", "),
	}
}

// RecordHistory appends one row to the history table. It runs after fatal
// runs too. A failure is logged and returned; the sync itself is not undone.
func (o *Orchestrator) RecordHistory(ctx context.Context, res Result, files []string) error {
	name := o.settings.Tables.SyncHistory
	if name == "" {
		return nil
	}
	if res.RunID != "" {
		ctx = logging.WithRunID(ctx, res.RunID)
	}
	log := logging.With(ctx, o.log)

	fields := HistoryFields(res, files, o.settings.TimezoneOffset)
	if _, err := o.base.Table(name).BatchCreate(ctx, []store.Fields{fields}); err != nil {
		log.Error("history not recorded", "table", name, "error", err)
		return fmt.Errorf("record history: %w", err)
	}
	log.Info("history recorded", "table", name, "status", fields[schema.HistoryStatus])
	return nil
}
