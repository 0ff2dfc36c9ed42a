package httpapi

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// ── Run summary ──────────────────────────────────────────────────────────────

func summaryToStruct(s types.RunSummary) (*structpb.Struct, error) {
	fields := map[string]any{
		"alerts_sent":         s.Sent,
		"alerts_skipped":      s.Skipped,
		"dry_run":             s.DryRun,
		"alerts_failed":       s.Failed,
		"alerts_acknowledged": s.Acknowledged,
		"run_id":              s.RunID,
	}
	if len(s.SkipReasons) > 0 {
		reasons := make(map[string]any, len(s.SkipReasons))
		for k, v := range s.SkipReasons {
			reasons[k] = v
		}
		fields["skip_reasons"] = reasons
	}
	return structpb.NewStruct(fields)
}

// ── Run log ──────────────────────────────────────────────────────────────────

func runLogEntry(r store.RunRecord) types.RunLogEntry {
	return types.RunLogEntry{
		RunID:        r.RunID,
		Source:       r.Source,
		StartedAt:    r.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt:   r.FinishedAt.UTC().Format(time.RFC3339Nano),
		Sent:         r.Sent,
		Skipped:      r.Skipped,
		Failed:       r.Failed,
		Acknowledged: r.Acknowledged,
		DryRun:       r.DryRun,
		Error:        r.Error,
	}
}

func runLogResponse(recs []store.RunRecord) types.RunLogResponse {
	resp := types.RunLogResponse{Runs: make([]types.RunLogEntry, 0, len(recs))}
	for _, r := range recs {
		resp.Runs = append(resp.Runs, runLogEntry(r))
	}
	return resp
}

func runLogToStruct(resp types.RunLogResponse) (*structpb.Struct, error) {
	runs := make([]any, 0, len(resp.Runs))
	for _, e := range resp.Runs {
		m := map[string]any{
			"run_id":              e.RunID,
			"source":              e.Source,
			"started_at":          e.StartedAt,
			"finished_at":         e.FinishedAt,
			"alerts_sent":         e.Sent,
			"alerts_skipped":      e.Skipped,
			"alerts_failed":       e.Failed,
			"alerts_acknowledged": e.Acknowledged,
			"dry_run":             e.DryRun,
		}
		if e.Error != "" {
			m["error"] = e.Error
		}
		runs = append(runs, m)
	}
	return structpb.NewStruct(map[string]any{"runs": runs})
}

// ── Misc ─────────────────────────────────────────────────────────────────────

func healthToStruct(h types.HealthResponse) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"ok": h.OK})
}

func errorToStruct(e types.ErrorResponse) (*structpb.Struct, error) {
	m := map[string]any{"error": e.Error}
	if e.Message != "" {
		m["message"] = e.Message
	}
	return structpb.NewStruct(m)
}
