// Package server exposes scanners and lucky draws over HTTP.
//
// Routes:
//   - GET  /health, GET /api/v1/status
//   - GET  /api/v1/cameras
//   - POST /api/v1/scanners/:id/{start,switch,stop}, GET /api/v1/scanners/:id, GET /api/v1/scanners/:id/events (SSE)
//   - GET  /api/v1/draws/rewards
//   - POST/GET /api/v1/draws/:reward/pool, GET /api/v1/draws/:reward/wheel.png
//   - POST /api/v1/draws/:reward/spin (SSE), GET /api/v1/draws/:reward/winners
//
// Callers identify themselves with "Authorization: Bearer <token>" and "X-Role". Scanner routes
// accept booth_staff and organizer, draw routes organizer only. The token is passed through to
// the event backend and never checked here.
package server
