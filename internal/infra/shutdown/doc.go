// Package shutdown provides graceful shutdown for roomrelay.
//
// Components register named hooks as they start. On SIGINT, SIGTERM or
// Trigger the hooks run in reverse registration order under one timeout:
//
//	h := shutdown.NewHandler(30*time.Second)
//	h.OnShutdown("http", srv.Shutdown)
//	err := h.Wait(ctx)
package shutdown
