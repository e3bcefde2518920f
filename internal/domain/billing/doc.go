// Package billing contains the domain model for budget enforcement and
// usage accounting: budgets with their status state machine and spend
// projection, usage events, plan limits, and the storage and collaborator
// contracts (BudgetStore, AlertDispatcher, UsageEventSink, PlanProvider).
//
// The package is deliberately free of infrastructure concerns; concrete
// stores live under internal/infrastructure and the enforcement services
// under internal/application/governance.
package billing
