package common

// JSON-RPC method names served by the daemon.
const (
	MethodGetVersion  = "system.getVersion"
	MethodPoolAlloc   = "pool.allocate"
	MethodPoolGet     = "pool.get"
	MethodPoolRelease = "pool.release"
	MethodPoolAssign  = "pool.assign"
	MethodPoolReserve = "pool.reserve"
	MethodPoolAudit   = "pool.audit"
	MethodTimerAdd    = "timer.schedule"
	MethodTimerStop   = "timer.stop"
	MethodTimerStatus = "timer.status"
	MethodTimerList   = "timer.list"
)

// NotifyTimerFired is the server push sent to WebSocket sessions for every
// timer firing.
const NotifyTimerFired = "timer.fired"

// Defaults shared by the daemon and the serve command.
const (
	DefaultPort            = 4790
	DefaultShutdownTimeout = 30 // seconds
)
