package ankaios

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ComputeInstanceHash derives the config hash half of a WorkloadInstanceName
// from the fields of a Workload that define what gets created. Two
// workloads that differ only in fields outside this set (for example Tags)
// realize as the same instance; any change to a field folded in here forces
// delete-then-create rather than in-place mutation.
func ComputeInstanceHash(name string, w *Workload) string {
	h := sha256.New()
	fmt.Fprintf(h, "name=%s\n", name)
	if w != nil {
		fmt.Fprintf(h, "runtime=%s\n", w.Runtime)
		fmt.Fprintf(h, "runtimeConfig=%s\n", w.RuntimeConfig)
		fmt.Fprintf(h, "restartPolicy=%s\n", w.RestartPolicy)
		fmt.Fprintf(h, "dependencies=%s\n", encodeDependencies(w.Dependencies))
		fmt.Fprintf(h, "controlInterfaceAccess=%s\n", encodeAccess(w.ControlInterfaceAccess))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// InstanceName builds the WorkloadInstanceName for w as it would be realized
// on the agent it currently names.
func InstanceName(name string, w *Workload) WorkloadInstanceName {
	return WorkloadInstanceName{
		WorkloadName: name,
		AgentName:    w.Agent,
		ConfigHash:   ComputeInstanceHash(name, w),
	}
}

func encodeDependencies(deps map[string]DependencyCondition) string {
	if len(deps) == 0 {
		return ""
	}
	keys := make([]string, 0, len(deps))
	for k := range deps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+string(deps[k]))
	}
	return strings.Join(parts, ",")
}

func encodeAccess(a *ControlInterfaceAccess) string {
	if a == nil {
		return ""
	}
	var b strings.Builder
	encodeRules(&b, "allow", a.Allow)
	encodeRules(&b, "deny", a.Deny)
	return b.String()
}

func encodeRules(b *strings.Builder, label string, rules []AccessRule) {
	for _, r := range rules {
		fmt.Fprintf(b, "%s:%s:%s;", label, r.Kind, strings.Join(r.FieldMasks, ","))
	}
}
