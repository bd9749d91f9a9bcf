// Package controlapi implements the Agent-side proxy for a workload's local
// Control Interface: two named pipes under a per-workload directory,
// carrying length-prefixed ToAnkaios/FromAnkaios frames, grounded on the
// teacher's pkg/volume/local.go (per-resource directory under a base path,
// os.MkdirAll lifecycle) and pkg/network/hostports.go (per-instance
// bookkeeping map guarded by a mutex, cleaned up on teardown).
package controlapi

import (
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
)

// ControlInterfaceVersion is negotiated by the initial hello exchange on
// session open. A mismatch closes the session immediately.
const ControlInterfaceVersion = "0.1"

// InitialHello is the first frame exchanged in both directions before any
// Request/Response traffic, negotiating protocol version.
type InitialHello struct {
	ProtocolVersion string `json:"protocolVersion"`
}

// ToAnkaios is a frame sent by the workload into the inbound pipe.
type ToAnkaios struct {
	Hello   *InitialHello  `json:"hello,omitempty"`
	Request *ankpb.Request `json:"request,omitempty"`
}

// FromAnkaios is a frame sent by the Agent into the outbound pipe.
type FromAnkaios struct {
	Hello    *InitialHello   `json:"hello,omitempty"`
	Response *ankpb.Response `json:"response,omitempty"`
}
