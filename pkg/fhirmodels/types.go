package fhirmodels

// Common FHIR code systems and value set constants used by the payload builders.

// Code system URLs.
const (
	SystemICD10CM              = "http://hl7.org/fhir/sid/icd-10-cm"
	SystemRxNorm               = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemFDB                  = "http://www.fdbhealth.com/"
	SystemCVX                  = "http://hl7.org/fhir/sid/cvx"
	SystemNDC                  = "http://hl7.org/fhir/sid/ndc"
	SystemUnstructured         = "unstructured"
	SystemDataAbsentReason     = "http://terminology.hl7.org/CodeSystem/data-absent-reason"
	SystemConditionClinical    = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	SystemConditionCategory    = "http://terminology.hl7.org/CodeSystem/condition-category"
	SystemAllergyClinical      = "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical"
	SystemAllergyVerification  = "http://terminology.hl7.org/CodeSystem/allergyintolerance-verification"
	SystemSubscriberRelation   = "http://terminology.hl7.org/CodeSystem/subscriber-relationship"
	SystemCoverageClass        = "http://terminology.hl7.org/CodeSystem/coverage-class"
	SystemAppointmentTypeLocal = "INTERNAL"
	SystemPayorERA             = "https://www.claim.md/services/era/"
)

// ExtensionNoteID links a created record to the note it was documented in.
const ExtensionNoteID = "http://schemas.canvasmedical.com/fhir/extensions/note-id"

// ConditionClinicalStatus values per FHIR R4.
const (
	ConditionActive   = "active"
	ConditionResolved = "resolved"
)

// AllergyClinicalStatus values per FHIR R4.
const (
	AllergyActive   = "active"
	AllergyInactive = "inactive"
)

// AllergyType values per FHIR R4.
const (
	AllergyTypeAllergy     = "allergy"
	AllergyTypeIntolerance = "intolerance"
)

// AllergySeverity values per FHIR R4.
const (
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// MedicationStatementStatus values used by migrations.
const (
	MedicationActive  = "active"
	MedicationStopped = "stopped"
)

// AppointmentStatus values used by migrations.
const (
	AppointmentBooked    = "booked"
	AppointmentFulfilled = "fulfilled"
)

// SubscriberRelationship codes.
const (
	RelationshipSelf    = "self"
	RelationshipChild   = "child"
	RelationshipSpouse  = "spouse"
	RelationshipOther   = "other"
	RelationshipInjured = "injured"
)

// ImmunizationStatus values.
const (
	ImmunizationCompleted = "completed"
)

// FDB sentinel concept used when an allergy has no structured equivalent.
const (
	FDBNoAllergyInfoCode    = "1-143"
	FDBNoAllergyInfoDisplay = "No Allergy Information Available"
)

// Note state transitions accepted by the note API.
const (
	NoteStateCheckedIn = "CVD"
	NoteStateLocked    = "LKD"
	NoteStateUnlocked  = "ULK"
)
