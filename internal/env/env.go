package env

import (
	"os"

	"github.com/google/uuid"
)

const (
	// SessionVar carries the orchestrator session to spawned devices
	SessionVar = "FLOWKEEPER_SESSION"
	// BusURLVar carries the control bus url to spawned devices
	BusURLVar = "FLOWKEEPER_BUS_URL"
)

/**
 * Get the session id of this run
 * @returns {string} Session id inherited from the parent, or a new random one
 * @description
 * - Children inherit FLOWKEEPER_SESSION so they publish on the parent's control subject
 */
func Session() string {
	if s := os.Getenv(SessionVar); s != "" {
		return s
	}
	return uuid.NewString()
}

/**
 * Look up the installation root of the deployment service
 * @param {string} name - Name of the environment variable
 * @returns {string} Value of the variable
 * @returns {bool} False when the variable is unset or empty
 */
func DeploymentRoot(name string) (string, bool) {
	root := os.Getenv(name)
	return root, root != ""
}
