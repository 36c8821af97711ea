// Package triage provides the decision engine for veterinary triage.
// It defines the keyword Classifier, the Resolver (layered reference record
// matching), the ReferenceStore interface it queries, the Service business
// boundary used by the HTTP layer, and the domain models.
package triage
