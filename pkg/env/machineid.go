package env

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the unique ID identifying the machine, scoped to
// this application. It returns empty string if the ID is not available.
func MachineID() string {
	id, err := machineid.ProtectedID("ipsp")
	if err != nil {
		glog.Warningf("machine id: %v", err)
		return ""
	}
	return id
}

// DefaultClientID is the MQTT client id used without one configured.
func DefaultClientID(role string) string {
	id := MachineID()
	if len(id) > 12 {
		id = id[:12]
	}
	if id == "" {
		return ""
	}
	return "ipsp-" + role + "-" + id
}
