// Package store defines the persistence contract for task records along
// with the sentinel errors shared by every implementation. Concrete
// backends live under internal/platform.
package store
