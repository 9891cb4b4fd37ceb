// Package handlers implements the HTTP API layer for browser-runner.
//
// Handlers delegate to services.Runner and only deal with request validation,
// error mapping and model-to-API conversion.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                     HTTP Request (Gin)                          │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                      Handler (this package)                     │
//	│  - Request validation                                           │
//	│  - Error mapping to HTTP status codes                           │
//	│  - Model-to-API conversion                                      │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                 services.Runner ──► pool.Pool (per browser)     │
//	└─────────────────────────────────────────────────────────────────┘
//
// # API Endpoints
//
//	┌────────┬───────────┬──────────────────────────────────────────────┐
//	│ Method │ Endpoint  │ Description                                  │
//	├────────┼───────────┼──────────────────────────────────────────────┤
//	│ GET    │ /status   │ Status of the current or last run            │
//	│ GET    │ /browsers │ Configured browsers                          │
//	│ POST   │ /runs     │ Start a run                                  │
//	│ DELETE │ /runs     │ Stop the current run                         │
//	└────────┴───────────┴──────────────────────────────────────────────┘
//
// # Error Mapping
//
//	┌─────────────────────────────┬────────┐
//	│ Error                       │ Status │
//	├─────────────────────────────┼────────┤
//	│ invalid body / duplicate id │ 400    │
//	│ UnknownBrowserError         │ 400    │
//	│ RunInProgressError          │ 409    │
//	│ RejectedStartError          │ 409    │
//	│ anything else               │ 500    │
//	└─────────────────────────────┴────────┘
//
// # Example
//
//	POST /api/v1/runs
//	{
//	    "tests": [{"id": "button-default", "path": ["Button", "default"]}],
//	    "browsers": ["chrome"]
//	}
//
//	202 Accepted
//	{"runId": "2f7c..."}
package handlers
