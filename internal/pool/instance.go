package pool

import (
	"fmt"
	"time"

	"github.com/developermelih/mk-proxy-generator/internal/model"
	"github.com/developermelih/mk-proxy-generator/internal/resolver"
)

// instance is one pool slot. All fields are guarded by the manager's
// mutex; the process and controller handles are manipulated only by the
// single lifecycle operation in flight for this instance.
type instance struct {
	// id is the stable slot identifier, 0..poolSize-1.
	id int

	// socksPort and controlPort are assigned at pool start and never
	// change while the process is alive.
	socksPort   int
	controlPort int

	// dataDir is the instance's Tor data directory.
	dataDir string

	// process is the supervised Tor daemon, nil until launched.
	process Process

	// control is the authenticated control session, nil until the
	// daemon is up.
	control Controller

	// status is the instance's lifecycle state.
	status model.InstanceStatus

	// currentIP and countryCode hold the last successfully resolved
	// identity. They are overwritten on success and left stale on a
	// failed re-resolution so the operator always sees the last
	// known-good value next to the Error status.
	currentIP   string
	countryCode string

	// lastChange is when status last changed.
	lastChange time.Time

	// busy marks an in-flight lifecycle operation (startup, renewal,
	// pre-warm). The manager refuses to begin a second one.
	busy bool
}

// socksAddr returns the instance's SOCKS endpoint.
func (i *instance) socksAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", i.socksPort)
}

// setStatus transitions the instance and stamps the change time.
func (i *instance) setStatus(s model.InstanceStatus) {
	i.status = s
	i.lastChange = time.Now()
}

// setIdentity records a successfully resolved identity.
func (i *instance) setIdentity(id resolver.Identity) {
	i.currentIP = id.IP
	i.countryCode = id.CountryCode
}

// view builds a read-only copy for snapshots and events.
func (i *instance) view(active bool) model.InstanceView {
	return model.InstanceView{
		ID:          i.id,
		SocksPort:   i.socksPort,
		ControlPort: i.controlPort,
		Status:      i.status,
		StatusText:  i.status.String(),
		CurrentIP:   i.currentIP,
		CountryCode: i.countryCode,
		CountryName: resolver.CountryName(i.countryCode),
		Active:      active,
		LastChange:  i.lastChange,
	}
}
