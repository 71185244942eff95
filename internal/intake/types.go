// Package intake defines the client/vehicle intake payloads submitted for
// report generation and the structured reports that come back.
package intake

// ClientInfo identifies the person the report is prepared for.
type ClientInfo struct {
	Name       string `json:"name" validate:"required"`
	Occupation string `json:"occupation"`
	Email      string `json:"email" validate:"required,email"`
	Location   string `json:"location"`
	Telephone  string `json:"telephone"`
}

// VehicleInfo describes the vehicle under consideration.
type VehicleInfo struct {
	Make               string `json:"make" validate:"required"`
	Model              string `json:"model" validate:"required"`
	Year               string `json:"year" validate:"required,numeric,len=4"`
	Trim               string `json:"trim"`
	Odometer           string `json:"odometer"`
	VIN                string `json:"vin,omitempty" validate:"omitempty,alphanum,len=17"`
	BatteryType        string `json:"batteryType,omitempty" validate:"omitempty,oneof='OEM' 'Manufacturer Refurb' 'Third-Party Reman' 'Unknown'"`
	DestinationCountry string `json:"destinationCountry,omitempty"`
	HybridType         string `json:"hybridType,omitempty"`
	SourceCountry      string `json:"sourceCountry,omitempty"`
	IntendedUse        string `json:"intendedUse,omitempty"`
}

// Images holds optional base64-encoded photos attached to an intake.
type Images struct {
	Exterior      string `json:"exterior,omitempty" validate:"omitempty,base64"`
	Dashboard     string `json:"dashboard,omitempty" validate:"omitempty,base64"`
	EngineBay     string `json:"engineBay,omitempty" validate:"omitempty,base64"`
	BatteryIntake string `json:"batteryIntake,omitempty" validate:"omitempty,base64"`
}

// TechnicalInput is the diagnostic intake behind a Technical report.
type TechnicalInput struct {
	Client          ClientInfo  `json:"client"`
	Vehicle         VehicleInfo `json:"vehicle"`
	Symptoms        string      `json:"symptoms" validate:"required"`
	DiagnosticCodes string      `json:"diagnosticCodes"`
	Occurrence      string      `json:"occurrence" validate:"required,oneof=cold warm hills traffic random"`
	Onset           string      `json:"onset" validate:"required,oneof=sudden gradual"`
	Driveability    string      `json:"driveability" validate:"required,oneof=normal weak limp overheating"`
	RecentWork      string      `json:"recentWork"`
	Images          *Images     `json:"images,omitempty"`
}

// StrategicInput is the advisory intake behind a Strategic judgment.
type StrategicInput struct {
	Client           ClientInfo  `json:"client"`
	Vehicle          VehicleInfo `json:"vehicle"`
	DecisionType     string      `json:"decisionType" validate:"required,oneof='Import Strategy' 'Fleet Transition' 'Infrastructure Planning' 'Investment Risk' 'Policy Alignment'"`
	Subject          string      `json:"subject" validate:"required"`
	Context          string      `json:"context"`
	PriorityConcerns string      `json:"priorityConcerns"`
	Images           *Images     `json:"images,omitempty"`
}

// RankedHypothesis is one candidate explanation in a Technical report.
type RankedHypothesis struct {
	Title      string `json:"title"`
	Reasoning  string `json:"reasoning"`
	Confidence string `json:"confidence"`
}

// RiskProfile positions the vehicle on a Green/Amber/Red band.
type RiskProfile struct {
	Band        string `json:"band"`
	Label       string `json:"label"`
	Positioning string `json:"positioning"`
}

// DecisionOption is one path the client can take.
type DecisionOption struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// TitledList is a headed list of items.
type TitledList struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

// TechnicalReport is the generated diagnostic report.
type TechnicalReport struct {
	ID                string             `json:"id"`
	Timestamp         string             `json:"timestamp"`
	BottomLine        string             `json:"bottomLine"`
	RiskProfile       RiskProfile        `json:"riskProfile"`
	Hypotheses        []RankedHypothesis `json:"hypotheses"`
	OverallConfidence string             `json:"overallConfidence"`
	MissingEvidence   []string           `json:"missingEvidence"`
	QuestionScript    []string           `json:"questionScript"`
	DecisionOptions   []DecisionOption   `json:"decisionOptions"`
	SignatureFeature  TitledList         `json:"signatureFeature"`
	ClosingReflection string             `json:"closingReflection"`
}

// AdvisorySource names who stands behind a Strategic judgment.
type AdvisorySource struct {
	Entity          string `json:"entity"`
	YearsInBusiness string `json:"yearsInBusiness"`
}

// FinancialCalibration summarises landed-cost factors.
type FinancialCalibration struct {
	ImportDuty     string `json:"importDuty"`
	Levies         string `json:"levies"`
	LandedCostNote string `json:"landedCostNote"`
}

// DecisionSummary is the judgment's overall call.
type DecisionSummary struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// JudgmentSections is the body of a Strategic judgment.
type JudgmentSections struct {
	Suitability           string               `json:"suitability"`
	FinancialCalibration  FinancialCalibration `json:"financialCalibration"`
	MechanicalInsight     string               `json:"mechanicalInsight"`
	LogisticsAlert        string               `json:"logisticsAlert"`
	SkepticismNote        string               `json:"skepticismNote"`
	FalseFixes            TitledList           `json:"falseFixes"`
	RedFlags              []string             `json:"redFlags"`
	Unknowns              []string             `json:"unknowns"`
	VerificationQuestions []string             `json:"verificationQuestions"`
	DecisionSummary       DecisionSummary      `json:"decisionSummary"`
}

// StrategicReport is the generated advisory judgment.
type StrategicReport struct {
	ID             string           `json:"id"`
	Timestamp      string           `json:"timestamp"`
	Title          string           `json:"title"`
	AdvisorySource AdvisorySource   `json:"advisorySource"`
	DecisionFrame  string           `json:"decisionFrame"`
	Sections       JudgmentSections `json:"sections"`
	ClosingNote    string           `json:"closingNote"`
}
