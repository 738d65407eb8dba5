package service

import "github.com/iliyamo/ceremony-admission/internal/model"

// CanScan reports whether a caller may submit scans.  Staff and
// administrators always may.  Offline retries are accepted without a
// role: devices that queued scans while disconnected replay them
// after their session has expired.
func CanScan(role string, offlineRetry bool) bool {
	switch role {
	case model.RoleAdmin, model.RoleStaff:
		return true
	}
	return offlineRetry
}
