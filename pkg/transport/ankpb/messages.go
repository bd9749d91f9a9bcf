// Package ankpb defines the wire messages exchanged over the Connect
// bidirectional stream between an Agent and the Server, in the shape
// protoc-gen-go-grpc would have produced had the .proto been compiled in
// this environment. Messages are plain Go structs marshaled by
// pkg/transport/codec instead of generated protobuf code.
package ankpb

import "github.com/ankaios-project/ankaios-core/pkg/ankaios"

// ProtocolVersion is negotiated during the AgentHello/ServerHello
// handshake. A mismatch is fatal: the Server closes the stream rather than
// attempt to interoperate with an incompatible Agent.
const ProtocolVersion = "0.1"

// MessageKind tags which field of Envelope is populated.
type MessageKind string

const (
	KindAgentHello          MessageKind = "AgentHello"
	KindServerHello         MessageKind = "ServerHello"
	KindUpdateWorkload      MessageKind = "UpdateWorkload"
	KindUpdateWorkloadState MessageKind = "UpdateWorkloadState"
	KindRequest             MessageKind = "Request"
	KindResponse            MessageKind = "Response"
	KindGoodbye             MessageKind = "Goodbye"
)

// Envelope is the single message type exchanged in both directions over
// the Connect stream. Exactly one of the payload fields is populated,
// selected by Kind.
type Envelope struct {
	Kind                MessageKind          `json:"kind"`
	AgentHello          *AgentHello          `json:"agentHello,omitempty"`
	ServerHello         *ServerHello         `json:"serverHello,omitempty"`
	UpdateWorkload      *UpdateWorkload      `json:"updateWorkload,omitempty"`
	UpdateWorkloadState *UpdateWorkloadState `json:"updateWorkloadState,omitempty"`
	Request             *Request             `json:"request,omitempty"`
	Response            *Response            `json:"response,omitempty"`
	Goodbye             *Goodbye             `json:"goodbye,omitempty"`
}

// AgentHello is the first message an Agent sends after dialing.
type AgentHello struct {
	AgentName       string `json:"agentName"`
	ProtocolVersion string `json:"protocolVersion"`
}

// AddedWorkload pairs a workload instance identity with the spec that
// produced it, so the Agent never has to recompute the hash to know which
// instance it is being asked to create.
type AddedWorkload struct {
	Instance ankaios.WorkloadInstanceName `json:"instance"`
	Workload *ankaios.Workload            `json:"workload"`
}

// WorkloadDelta is the set of instances an Agent must create and delete to
// converge on the Server's desired state. Deletes are listed separately
// from adds; the Agent applies deletes first, matching the ordering the
// Server computed them in.
type WorkloadDelta struct {
	Added   []AddedWorkload                `json:"added,omitempty"`
	Deleted []ankaios.WorkloadInstanceName `json:"deleted,omitempty"`
}

// ServerHello answers AgentHello: it carries the protocol version the
// Server will speak, the full set of workloads currently assigned to this
// agent (expressed as a delta against nothing, i.e. Deleted is always empty
// here), and a snapshot of the cluster-wide actual state so dependencies on
// workloads owned by other agents can be evaluated immediately instead of
// waiting for their next state change.
type ServerHello struct {
	ProtocolVersion string                    `json:"protocolVersion"`
	Delta           WorkloadDelta             `json:"delta"`
	WorkloadStates  ankaios.WorkloadStatesMap `json:"workloadStates,omitempty"`
}

// UpdateWorkload is pushed by the Server whenever UpdateState changes the
// set of workloads assigned to this agent.
type UpdateWorkload struct {
	Delta WorkloadDelta `json:"delta"`
}

// UpdateWorkloadState is sent by the Agent whenever a control loop
// observes a new ExecutionState for one of its instances.
type UpdateWorkloadState struct {
	Instance ankaios.WorkloadInstanceName `json:"instance"`
	State    ankaios.ExecutionState       `json:"state"`
}

// RequestKind selects which field of Request is populated.
type RequestKind string

const (
	RequestKindUpdateState   RequestKind = "UpdateStateRequest"
	RequestKindCompleteState RequestKind = "CompleteStateRequest"
)

// UpdateStateRequest asks the Server to apply a masked update to the
// desired state, proxied from a workload's Control Interface session.
type UpdateStateRequest struct {
	State      ankaios.CompleteState `json:"state"`
	UpdateMask []string              `json:"updateMask"`
}

// CompleteStateRequest asks the Server for a masked read of its complete
// state.
type CompleteStateRequest struct {
	FieldMasks []string `json:"fieldMasks,omitempty"`
}

// Request is sent to the Server by an Agent, proxying a Control Interface
// request on behalf of a connected workload, or by the CLI over a client
// session.
type Request struct {
	RequestID     string                 `json:"requestId"`
	Kind          RequestKind            `json:"kind"`
	UpdateState   *UpdateStateRequest    `json:"updateState,omitempty"`
	CompleteState *CompleteStateRequest  `json:"completeState,omitempty"`
}

// Response answers a Request by RequestID. Error is non-empty on failure,
// in which case CompleteState is nil.
type Response struct {
	RequestID     string                 `json:"requestId"`
	Error         string                 `json:"error,omitempty"`
	CompleteState *ankaios.CompleteState `json:"completeState,omitempty"`
}

// Goodbye announces an orderly shutdown of the stream so the receiver does
// not have to wait out a read timeout to notice the disconnect.
type Goodbye struct {
	Reason string `json:"reason,omitempty"`
}
