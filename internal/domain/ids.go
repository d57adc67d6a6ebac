package domain

// DriverID is the backend-issued identifier of a driver.
// We model it as an opaque identifier: its format is controlled by the dispatch backend.
type DriverID string

// LoadID is the backend-issued identifier of a load.
type LoadID string
