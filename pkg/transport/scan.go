package transport

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
)

// ScanTimeout bounds a discovery scan. Expiry is a user-facing condition,
// not an engine fault.
const ScanTimeout = 20 * time.Second

// ErrScanTimeout indicates a discovery scan did not complete within
// ScanTimeout.
var ErrScanTimeout = errors.New("device discovery timed out")

// Scan runs ListDevices under the ScanTimeout deadline, mapping deadline
// expiry to ErrScanTimeout.
func Scan(ctx context.Context, t Transport) ([]DeviceInfo, error) {
	scanCtx, cancel := context.WithTimeout(ctx, ScanTimeout)
	defer cancel()

	devices, err := t.ListDevices(scanCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrScanTimeout, ScanTimeout)
		}
		return nil, err
	}
	return devices, nil
}

// DescribeScanError turns a scan failure into a displayable message,
// annotated with a platform hint when the failure pattern suggests a
// permissions problem.
func DescribeScanError(err error) string {
	if err == nil {
		return ""
	}
	msg := fmt.Sprintf("device scan failed: %v", err)
	if hint := permissionHint(runtime.GOOS); errors.Is(err, ErrScanTimeout) && hint != "" {
		msg += " (" + hint + ")"
	}
	return msg
}

func permissionHint(goos string) string {
	switch goos {
	case "darwin":
		return "check Bluetooth permission under System Settings > Privacy & Security"
	case "windows":
		return "check that Bluetooth is turned on in Windows settings"
	case "linux":
		return "check that the bluetooth service is running and the user may access the adapter"
	default:
		return ""
	}
}
