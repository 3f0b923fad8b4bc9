// Package cmd implements the serptracker CLI.
//
// Architecture overview:
//   - Refresh orchestration: internal/refresh.Orchestrator takes a batch of keyword records, resolves
//     a provider adapter for each (a per-keyword engine override wins over the global provider), and
//     runs each provider group either fanned out (parallel adapters, optionally capped and rate
//     limited) or strictly serially with the provider's minimum pacing delay between requests.
//   - Providers: internal/provider holds the adapter contract and registry; xmlriver (Google and
//     Yandex XML) and serpapi (JSON) ship as adapters. Responses become ordered result URLs, and
//     internal/position finds the tracked domain's rank.
//   - Persistence: merged records are written back through tracker.KeywordStore (memory or Postgres).
//     Failed keywords land in the retry queue (memory, flock-guarded JSON file, Postgres or Redis) and
//     leave their history untouched.
//   - Scheduling: internal/dispatcher fires a full refresh and a retry pass on cron schedules, one
//     batch at a time.
//   - Surfaces: `serve` runs the chi HTTP API and scheduler; `refresh` runs one batch and prints a JSON
//     summary; `retry list|clear` manages the retry queue.
//
// Operational notes:
//   - Shutdown: SIGINT/SIGTERM cancel the running batch. Serial groups stop before the next keyword,
//     parallel groups discard their in-flight results, and untouched keywords are returned unchanged.
//   - Observability: zap logs carry batch and keyword ids with credentials masked; Prometheus metrics
//     are exported on /metrics.
//
// Quick checklist:
//   - Configure env vars with the SERPTRACKER_ prefix, e.g. SERPTRACKER_TRACKER_PROVIDER,
//     SERPTRACKER_TRACKER_CREDENTIALS, SERPTRACKER_STORAGE_DSN.
//   - Run locally: go run . serve --config config.yaml
package cmd
