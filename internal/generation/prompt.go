package generation

import (
	"fmt"
	"strings"

	"github.com/kalambet/claritydesk/internal/intake"
)

const technicalSystemPrompt = `You are a hybrid and electric vehicle diagnostics advisor writing a Clarity Report for a non-technical owner. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Rules:
- You do not diagnose. Rank plausible hypotheses with honest confidence (High, Medium or Low).
- Place the vehicle on a risk band: Green, Amber or Red.
- List the evidence that is missing and the questions the owner should ask a technician.
- Offer concrete decision options, each with a short description.
- Never recommend parts or prices.`

const strategicSystemPrompt = `You are a mobility strategy advisor writing a judgment brief on a vehicle decision. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Rules:
- Frame the decision before answering it.
- Calibrate financial exposure: import duty, levies and a landed-cost note.
- Call out false fixes, red flags and unknowns explicitly.
- End with a decision summary level of Low, Moderate or High and a closing note.`

// TechnicalPrompt returns the system and user prompts for a diagnostic report.
func TechnicalPrompt(in intake.TechnicalInput) (system, user string) {
	var sb strings.Builder
	writeClient(&sb, in.Client)
	writeVehicle(&sb, in.Vehicle)

	sb.WriteString("\n[Symptoms]\n")
	sb.WriteString(in.Symptoms)
	if in.DiagnosticCodes != "" {
		fmt.Fprintf(&sb, "\n\n[Diagnostic Codes]\n%s", in.DiagnosticCodes)
	}
	fmt.Fprintf(&sb, "\n\n[Pattern]\noccurs when: %s\nonset: %s\ndriveability: %s", in.Occurrence, in.Onset, in.Driveability)
	if in.RecentWork != "" {
		fmt.Fprintf(&sb, "\n\n[Recent Work]\n%s", in.RecentWork)
	}
	writeImageNote(&sb, in.Images)

	sb.WriteString("\n\n[Schema]\n")
	sb.WriteString(technicalSchema)
	return technicalSystemPrompt, sb.String()
}

// StrategicPrompt returns the system and user prompts for an advisory judgment.
func StrategicPrompt(in intake.StrategicInput) (system, user string) {
	var sb strings.Builder
	writeClient(&sb, in.Client)
	writeVehicle(&sb, in.Vehicle)

	fmt.Fprintf(&sb, "\n[Decision]\ntype: %s\nsubject: %s", in.DecisionType, in.Subject)
	if in.Context != "" {
		fmt.Fprintf(&sb, "\n\n[Context]\n%s", in.Context)
	}
	if in.PriorityConcerns != "" {
		fmt.Fprintf(&sb, "\n\n[Priority Concerns]\n%s", in.PriorityConcerns)
	}
	writeImageNote(&sb, in.Images)

	sb.WriteString("\n\n[Schema]\n")
	sb.WriteString(strategicSchema)
	return strategicSystemPrompt, sb.String()
}

func writeClient(sb *strings.Builder, c intake.ClientInfo) {
	sb.WriteString("[Client]\n")
	fmt.Fprintf(sb, "name: %s\n", c.Name)
	writeOptional(sb, "occupation", c.Occupation)
	writeOptional(sb, "location", c.Location)
}

func writeVehicle(sb *strings.Builder, v intake.VehicleInfo) {
	sb.WriteString("\n[Vehicle]\n")
	fmt.Fprintf(sb, "%s %s %s", v.Year, v.Make, v.Model)
	if v.Trim != "" {
		fmt.Fprintf(sb, " %s", v.Trim)
	}
	sb.WriteString("\n")
	writeOptional(sb, "odometer", v.Odometer)
	writeOptional(sb, "vin", v.VIN)
	writeOptional(sb, "battery", v.BatteryType)
	writeOptional(sb, "hybrid type", v.HybridType)
	writeOptional(sb, "source country", v.SourceCountry)
	writeOptional(sb, "destination country", v.DestinationCountry)
	writeOptional(sb, "intended use", v.IntendedUse)
}

func writeOptional(sb *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(sb, "%s: %s\n", label, value)
	}
}

func writeImageNote(sb *strings.Builder, imgs *intake.Images) {
	if n := len(imageList(imgs)); n > 0 {
		fmt.Fprintf(sb, "\n\n[Images]\n%d photo(s) attached.", n)
	}
}

// imageList returns the attached base64 images in a stable order.
func imageList(imgs *intake.Images) []string {
	if imgs == nil {
		return nil
	}
	var out []string
	for _, s := range []string{imgs.Exterior, imgs.Dashboard, imgs.EngineBay, imgs.BatteryIntake} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
