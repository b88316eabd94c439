package instance

import "github.com/angelmondragon/escrowpay-backend/pkg/env"

const defaultID = "local"

// GetID returns the process instance identifier. Dyno names win over WORKER_ID.
func GetID() string {
	if id := env.First("DYNO", "WORKER_ID"); id != "" {
		return id
	}
	return defaultID
}
