package aar

import (
	"strings"

	"github.com/tiger/kobayashi/api/sim"
)

const holdingStatement = `{org} is actively addressing today's disruption. We are prioritizing passenger support, verifying all operational facts, and will share confirmed updates on a rolling basis. Affected passengers can reach our dedicated support line for immediate rebooking and care assistance.`

const reporterEmail = `Subject: {org} Statement on Today's Service Disruption

Riley,

Thank you for reaching out. We can confirm our operations and safety teams are conducting a thorough review of all relevant data and customer reports.

We are committed to transparency and will provide verified updates as they are confirmed. In the meantime, affected customers are being assisted through our dedicated support channels.

We will have a follow-up statement within the next two hours.

Best,
Head of Communications
{org}`

const supportScript = `Thank you for contacting {org}. We understand today's disruption has been stressful, and we sincerely apologize for the inconvenience.

Here's what we can do for you right now:
• Rebooking: We can place you on the next available flight at no additional cost
• Accommodation: If your flight is delayed overnight, we will arrange hotel and meal vouchers
• Refund: Full refund requests can be processed immediately

Is there a specific way I can help you today?`

const internalMemo = `INTERNAL: DO NOT DISTRIBUTE EXTERNALLY

Effective immediately, all external communications must be approved through the incident war room.

Key protocols:
1. Comms, Legal, Ops, and Support will sync every 20 minutes via #incident-war-room
2. No root-cause language is approved for external use until verification is complete
3. Customer-facing teams should use the approved support script only
4. Media inquiries route to Head of Comms, no individual responses
5. Next leadership briefing: [scheduled time]

Questions: #incident-war-room`

// Artifacts renders the four communication drafts for org.
func Artifacts(org string) sim.Artifacts {
	replacer := strings.NewReplacer("{org}", org)
	return sim.Artifacts{
		HoldingStatement: replacer.Replace(holdingStatement),
		ReporterEmail:    replacer.Replace(reporterEmail),
		SupportScript:    replacer.Replace(supportScript),
		InternalMemo:     replacer.Replace(internalMemo),
	}
}
