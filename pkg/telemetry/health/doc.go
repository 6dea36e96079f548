// Package health serves the liveness, readiness and version endpoints of the
// control API.
//
// /health answers 200 as soon as the process is up; the desktop shell polls
// it after spawning the gateway process. /ready runs every registered check
// concurrently, each bounded by the checker timeout, and answers 503 when any
// of them fails:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("gateway", health.StateCheck(manager.Running, "gateway is stopped"))
//	checker.RegisterCheck("archive", health.PingCheck(storage.Ping))
//	health.Mount(router, checker, health.NewVersionInfo(version, commit, date))
package health
