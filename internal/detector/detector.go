// Package detector maps well-known Windows event (channel, event_id) pairs
// to a provisional SecurityEvent verdict without consulting any external
// service.
package detector

import "github.com/mlidstrom/castellan/internal/event"

// Verdict is the detector's output: the same descriptive fields a fused
// SecurityEvent carries, minus id and provenance flags, which the fusion
// engine (not the detector) owns.
type Verdict struct {
	EventType          event.EventType
	RiskLevel          event.RiskLevel
	Confidence         int
	MitreTechniques    []string
	RecommendedActions []string
	Summary            string
}

type key struct {
	channel string
	eventID int
}

// table is the static (channel, event_id) → Verdict mapping. Channel names
// and event IDs follow the Windows Security/System/PowerShell event log
// conventions.
var table = map[key]Verdict{
	{"Security", 4624}: {
		EventType:  event.EventTypeAuthenticationSuccess,
		RiskLevel:  event.RiskLow,
		Confidence: 60,
		Summary:    "An account was successfully logged on",
	},
	{"Security", 4625}: {
		EventType:       event.EventTypeAuthenticationFailure,
		RiskLevel:       event.RiskMedium,
		Confidence:      65,
		MitreTechniques: []string{"T1110"},
		Summary:         "An account failed to log on",
	},
	{"Security", 4672}: {
		EventType:          event.EventTypePrivilegeEscalation,
		RiskLevel:          event.RiskHigh,
		Confidence:         75,
		MitreTechniques:    []string{"T1078"},
		RecommendedActions: []string{"Review assigned special privileges for the account"},
		Summary:            "Special privileges assigned to new logon",
	},
	{"Security", 4688}: {
		EventType:  event.EventTypeProcessCreation,
		RiskLevel:  event.RiskLow,
		Confidence: 50,
		Summary:    "A new process has been created",
	},
	{"Security", 4697}: {
		EventType:          event.EventTypeServiceInstallation,
		RiskLevel:          event.RiskHigh,
		Confidence:         70,
		MitreTechniques:    []string{"T1543.003"},
		RecommendedActions: []string{"Verify the installed service is authorized"},
		Summary:            "A service was installed in the system",
	},
	{"Security", 4698}: {
		EventType:          event.EventTypeScheduledTask,
		RiskLevel:          event.RiskMedium,
		Confidence:         60,
		MitreTechniques:    []string{"T1053.005"},
		RecommendedActions: []string{"Review the scheduled task's action and trigger"},
		Summary:            "A scheduled task was created",
	},
	{"Security", 4720}: {
		EventType:          event.EventTypeAccountManagement,
		RiskLevel:          event.RiskMedium,
		Confidence:         65,
		MitreTechniques:    []string{"T1136.001"},
		RecommendedActions: []string{"Confirm the new account was authorized"},
		Summary:            "A user account was created",
	},
	{"Security", 4732}: {
		EventType:          event.EventTypeAccountManagement,
		RiskLevel:          event.RiskHigh,
		Confidence:         75,
		MitreTechniques:    []string{"T1098"},
		RecommendedActions: []string{"Confirm the group membership change was authorized"},
		Summary:            "A member was added to a security-enabled local group",
	},
	{"Security", 4946}: {
		EventType:          event.EventTypePolicyChange,
		RiskLevel:          event.RiskMedium,
		Confidence:         55,
		MitreTechniques:    []string{"T1562.004"},
		RecommendedActions: []string{"Review the new firewall exception"},
		Summary:            "A change has been made to Windows Firewall exception list",
	},
	{"Security", 5140}: {
		EventType:       event.EventTypeNetworkConnection,
		RiskLevel:       event.RiskLow,
		Confidence:      40,
		MitreTechniques: []string{"T1021.002"},
		Summary:         "A network share object was accessed",
	},
	{"Microsoft-Windows-PowerShell/Operational", 4104}: {
		EventType:          event.EventTypePowerShellExecution,
		RiskLevel:          event.RiskMedium,
		Confidence:         60,
		MitreTechniques:    []string{"T1059.001"},
		RecommendedActions: []string{"Review the script block for obfuscation or known-bad patterns"},
		Summary:            "PowerShell script block logged",
	},
}

// Detect is a pure function of the LogEvent's (channel, event_id): it
// consults no external state and returns the same result for the same
// input every time. Unknown pairs return nil.
func Detect(evt event.LogEvent) *Verdict {
	v, ok := table[key{evt.Channel, evt.EventID}]
	if !ok {
		return nil
	}

	out := v
	out.MitreTechniques = append([]string(nil), v.MitreTechniques...)
	out.RecommendedActions = append([]string(nil), v.RecommendedActions...)

	return &out
}
