// Package service binds the transport layer to the connection manager.
//
// Each accepted connection gets its own manager session. The service
// pushes a Hello frame carrying the session token, fans command frames
// out onto worker goroutines, returns replies correlated by message id,
// and pushes a Ready frame whenever the session's event queue becomes
// readable.
//
// Example usage:
//
//	fabric, _ := enginesim.New(enginesim.Config{})
//	mgr, _ := manager.New(manager.Config{Engine: fabric})
//
//	svc, err := service.New(service.Config{
//		Manager:   mgr,
//		TLSConfig: &transport.TLSConfig{Certificate: cert},
//	})
//	svc.Start(ctx)
//	defer svc.Stop()
//
// Control frames (ping, pong, goaway) never reach this package; the
// transport server answers them on its own read loop.
package service
