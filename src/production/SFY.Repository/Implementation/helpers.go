package implementation

import sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"

// ensureFailuresNotNull keeps the JSONB column an array instead of null
func ensureFailuresNotNull(failures []sfymodels.DeviceFailure) []sfymodels.DeviceFailure {
	if failures == nil {
		return []sfymodels.DeviceFailure{}
	}
	return failures
}
