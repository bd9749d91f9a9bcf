package controlapi

import (
	"strings"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
)

// authorize decides whether req may be forwarded on behalf of a workload
// carrying access. Default is deny: a nil access (no controlInterfaceAccess
// configured) or a request matching no Allow rule is rejected. A Deny rule
// match always wins over an Allow rule match.
func authorize(access *ankaios.ControlInterfaceAccess, req *ankpb.Request) bool {
	if access == nil {
		return false
	}

	kind := requestKind(req)
	paths := requestPaths(req)

	for _, rule := range access.Deny {
		if ruleMatches(rule, kind, paths) {
			return false
		}
	}
	for _, rule := range access.Allow {
		if ruleMatches(rule, kind, paths) {
			return true
		}
	}
	return false
}

func requestKind(req *ankpb.Request) ankaios.AccessRequestKind {
	switch req.Kind {
	case ankpb.RequestKindUpdateState:
		return ankaios.AccessRequestUpdateState
	case ankpb.RequestKindCompleteState:
		return ankaios.AccessRequestCompleteState
	default:
		return ""
	}
}

func requestPaths(req *ankpb.Request) []string {
	switch req.Kind {
	case ankpb.RequestKindUpdateState:
		if req.UpdateState != nil {
			return req.UpdateState.UpdateMask
		}
	case ankpb.RequestKindCompleteState:
		if req.CompleteState != nil {
			return req.CompleteState.FieldMasks
		}
	}
	return nil
}

func ruleMatches(rule ankaios.AccessRule, kind ankaios.AccessRequestKind, paths []string) bool {
	if rule.Kind != kind {
		return false
	}
	if len(rule.FieldMasks) == 0 {
		return true
	}
	if len(paths) == 0 {
		return false
	}
	for _, path := range paths {
		for _, mask := range rule.FieldMasks {
			if pathMatchesMask(path, mask) {
				return true
			}
		}
	}
	return false
}

// pathMatchesMask matches a dotted-path field mask where a rule mask
// authorizes itself and anything nested below it.
func pathMatchesMask(path, mask string) bool {
	if path == mask {
		return true
	}
	return strings.HasPrefix(path, mask+".")
}
