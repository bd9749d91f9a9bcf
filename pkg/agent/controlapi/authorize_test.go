package controlapi

import (
	"testing"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
	"github.com/stretchr/testify/assert"
)

func completeStateReq(masks ...string) *ankpb.Request {
	return &ankpb.Request{
		Kind:          ankpb.RequestKindCompleteState,
		CompleteState: &ankpb.CompleteStateRequest{FieldMasks: masks},
	}
}

func TestAuthorizeNilAccessDeniesEverything(t *testing.T) {
	assert.False(t, authorize(nil, completeStateReq("workloadStates")))
}

func TestAuthorizeAllowMatchingKindNoMasks(t *testing.T) {
	access := &ankaios.ControlInterfaceAccess{
		Allow: []ankaios.AccessRule{{Kind: ankaios.AccessRequestCompleteState}},
	}
	assert.True(t, authorize(access, completeStateReq("workloadStates")))
}

func TestAuthorizeDenyOverridesAllow(t *testing.T) {
	access := &ankaios.ControlInterfaceAccess{
		Allow: []ankaios.AccessRule{{Kind: ankaios.AccessRequestCompleteState}},
		Deny:  []ankaios.AccessRule{{Kind: ankaios.AccessRequestCompleteState, FieldMasks: []string{"desiredState"}}},
	}
	assert.False(t, authorize(access, completeStateReq("desiredState.workloads")))
	assert.True(t, authorize(access, completeStateReq("workloadStates")))
}

func TestAuthorizeMaskPrefixMatch(t *testing.T) {
	access := &ankaios.ControlInterfaceAccess{
		Allow: []ankaios.AccessRule{{Kind: ankaios.AccessRequestCompleteState, FieldMasks: []string{"workloadStates.agent_A"}}},
	}
	assert.True(t, authorize(access, completeStateReq("workloadStates.agent_A.nginx")))
	assert.False(t, authorize(access, completeStateReq("workloadStates.agent_B")))
}

func TestAuthorizeWrongKindDenied(t *testing.T) {
	access := &ankaios.ControlInterfaceAccess{
		Allow: []ankaios.AccessRule{{Kind: ankaios.AccessRequestUpdateState}},
	}
	assert.False(t, authorize(access, completeStateReq()))
}
