package transport

import "github.com/google/uuid"

// Bluetooth SIG assigned identifiers for the battery profile. The engine does
// not speak GATT itself; these are exported so transport implementations and
// agents agree on what they are proxying.
var (
	// BatteryServiceUUID is the GATT Battery Service (0x180F).
	BatteryServiceUUID = uuid.MustParse("0000180f-0000-1000-8000-00805f9b34fb")

	// BatteryLevelUUID is the Battery Level characteristic (0x2A19).
	BatteryLevelUUID = uuid.MustParse("00002a19-0000-1000-8000-00805f9b34fb")

	// UserDescriptionUUID is the Characteristic User Description descriptor
	// (0x2901) carrying the per-source label on multi-part devices.
	UserDescriptionUUID = uuid.MustParse("00002901-0000-1000-8000-00805f9b34fb")
)
