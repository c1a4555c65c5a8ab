// Package rate implements Redis-counter attempt budgets for the refresh
// and password-reset endpoints.
package rate
