package detector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlidstrom/castellan/internal/detector"
	"github.com/mlidstrom/castellan/internal/event"
)

func TestDetect_KnownPairs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		channel   string
		eventID   int
		wantType  event.EventType
		wantRisk  event.RiskLevel
	}{
		{"successful logon", "Security", 4624, event.EventTypeAuthenticationSuccess, event.RiskLow},
		{"failed logon", "Security", 4625, event.EventTypeAuthenticationFailure, event.RiskMedium},
		{"special privileges", "Security", 4672, event.EventTypePrivilegeEscalation, event.RiskHigh},
		{"process creation", "Security", 4688, event.EventTypeProcessCreation, event.RiskLow},
		{"service installed", "Security", 4697, event.EventTypeServiceInstallation, event.RiskHigh},
		{"scheduled task", "Security", 4698, event.EventTypeScheduledTask, event.RiskMedium},
		{"group membership change", "Security", 4732, event.EventTypeAccountManagement, event.RiskHigh},
		{"powershell script block", "Microsoft-Windows-PowerShell/Operational", 4104, event.EventTypePowerShellExecution, event.RiskMedium},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := detector.Detect(event.LogEvent{Channel: tt.channel, EventID: tt.eventID})
			require.NotNil(t, v)
			assert.Equal(t, tt.wantType, v.EventType)
			assert.Equal(t, tt.wantRisk, v.RiskLevel)
			assert.True(t, tt.wantType.IsValid())
		})
	}
}

func TestDetect_UnknownPairReturnsNil(t *testing.T) {
	t.Parallel()

	v := detector.Detect(event.LogEvent{Channel: "Application", EventID: 9999})
	assert.Nil(t, v)
}

func TestDetect_IsPure(t *testing.T) {
	t.Parallel()

	evt := event.LogEvent{Channel: "Security", EventID: 4625}

	v1 := detector.Detect(evt)
	v2 := detector.Detect(evt)

	assert.Equal(t, v1, v2)
}

func TestDetect_ReturnsIndependentCopiesOfSlices(t *testing.T) {
	t.Parallel()

	evt := event.LogEvent{Channel: "Security", EventID: 4625}

	v1 := detector.Detect(evt)
	v1.MitreTechniques[0] = "mutated"

	v2 := detector.Detect(evt)
	assert.Equal(t, "T1110", v2.MitreTechniques[0])
}
