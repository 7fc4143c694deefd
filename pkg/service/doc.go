// Package service exposes a DevPort endpoint over the network.
//
// EndpointService ties the lower layers together: it walks the
// endpoint through its lifecycle (register, bind class, expose), runs
// the framed TCP server, and maps wire operations onto the endpoint's
// single session:
//
//	OPEN  -> claim the endpoint (BUSY with a retry hint while held)
//	WRITE -> carry one parameter record into the endpoint
//	READ  -> read the current parameter record back
//	CLOSE -> release the claim
//	INFO  -> lifecycle state, holder count, identity
//
// The session is bound to the connection that opened it. When that
// connection goes away, the claim is released, so a crashed client
// never wedges the endpoint.
//
// Example usage:
//
//	mgr, _ := endpoint.New(registry.NewMemoryAuthority(), endpoint.DefaultConfig())
//	svc, err := service.NewEndpointService(mgr, service.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	if err := svc.Start(ctx); err != nil {
//		return err
//	}
//	defer svc.Stop()
package service
