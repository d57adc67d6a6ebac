package domain

type LoadStatus string

const (
	LoadStatusAwaitingDriver LoadStatus = "AWAITING_DRIVER"
	LoadStatusReserved       LoadStatus = "RESERVED"
	LoadStatusInProgress     LoadStatus = "IN_PROGRESS"
	LoadStatusCompleted      LoadStatus = "COMPLETED"
)

// ParseLoadStatus returns the status for s and whether it is a known value.
func ParseLoadStatus(s string) (LoadStatus, bool) {
	switch LoadStatus(s) {
	case LoadStatusAwaitingDriver, LoadStatusReserved, LoadStatusInProgress, LoadStatusCompleted:
		return LoadStatus(s), true
	default:
		return "", false
	}
}

// Open reports whether a load in this status is held by a driver.
func (s LoadStatus) Open() bool {
	return s == LoadStatusReserved || s == LoadStatusInProgress
}

type Stop string

const (
	StopNone    Stop = ""
	StopPickup  Stop = "PICKUP"
	StopDropoff Stop = "DROPOFF"
)

func ParseStop(s string) (Stop, bool) {
	switch Stop(s) {
	case StopPickup, StopDropoff:
		return Stop(s), true
	default:
		return StopNone, false
	}
}

// Load is a pickup-to-drop-off transport task.
//
// Status and CurrentStop evolve server-side; the client only reads them.
// CurrentStop is set while Status is RESERVED or IN_PROGRESS and StopNone otherwise.
// Pickup/Dropoff are nil when the backend sent no usable coordinate.
type Load struct {
	ID             LoadID
	Status         LoadStatus
	CurrentStop    Stop
	Pickup         *Coordinate
	Dropoff        *Coordinate
	AssignedDriver *AssignedDriver
}

// Rejectable reports whether the driver may still reject the load.
func (l Load) Rejectable() bool { return l.Status == LoadStatusReserved }

// Clone returns a deep copy so callers never share nested pointers.
func (l Load) Clone() Load {
	out := l
	if l.Pickup != nil {
		p := *l.Pickup
		out.Pickup = &p
	}
	if l.Dropoff != nil {
		d := *l.Dropoff
		out.Dropoff = &d
	}
	if l.AssignedDriver != nil {
		a := *l.AssignedDriver
		out.AssignedDriver = &a
	}
	return out
}

// CloneLoad copies a nullable load.
func CloneLoad(l *Load) *Load {
	if l == nil {
		return nil
	}
	c := l.Clone()
	return &c
}
